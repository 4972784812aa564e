// Package installconfig loads run options from a TOML file, so recurring
// installs do not need the whole flag set spelled out every time. The file
// only carries scalar options; devices and redundancy markers are
// order-sensitive and stay on the command line.
package installconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/bsdkit/zfsinstall/pkg/datasizes"
)

type Config struct {
	Pool        string         `toml:"pool"`
	Dist        string         `toml:"dist"`
	Mountpoint  string         `toml:"mountpoint"`
	SwapSize    datasizes.Size `toml:"swap_size"`
	PoolSize    datasizes.Size `toml:"pool_size"`
	PoolVersion uint64         `toml:"pool_version"`
	Compat      bool           `toml:"compat"`
	Compress    bool           `toml:"compress"`
	Fletcher4   bool           `toml:"fletcher4"`
	Align       bool           `toml:"align"`
	Legacy      bool           `toml:"legacy"`
}

// Load reads the config file. Unknown keys are an error, a typoed option
// must not pass silently.
func Load(path string) (*Config, error) {
	var conf Config
	meta, err := toml.DecodeFile(path, &conf)
	if err != nil {
		return nil, fmt.Errorf("cannot load install config %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in install config %q: %v", path, undecoded)
	}
	return &conf, nil
}
