package main_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	main "github.com/bsdkit/zfsinstall/cmd/zfsinstall"
	"github.com/bsdkit/zfsinstall/pkg/datasizes"
	"github.com/bsdkit/zfsinstall/pkg/install"
	"github.com/bsdkit/zfsinstall/pkg/vdev"
)

// capture mocks the run execution and records what the CLI assembled.
type capture struct {
	options install.Options
	deps    install.Deps
	called  int
}

func (c *capture) doInstall(_ context.Context, options install.Options, deps install.Deps) error {
	c.options = options
	c.deps = deps
	c.called++
	return nil
}

func TestCLITwoMirrorPairs(t *testing.T) {
	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	err := main.Run([]string{
		"-d", "da0", "-d", "/dev/da1", "-r", "mirror",
		"-d", "da2", "-d", "da3", "-r", "mirror",
		"-p", "tank", "-s", "2GiB", "--compress", "-4",
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.called)

	assert.Equal(t, []vdev.Group{
		{Mode: vdev.ModeMirror, Devices: []string{"da0", "da1"}},
		{Mode: vdev.ModeMirror, Devices: []string{"da2", "da3"}},
	}, rec.options.Groups)
	assert.Equal(t, "tank", rec.options.PoolName)
	assert.Equal(t, uint64(2*datasizes.GiB), rec.options.SwapSize)
	assert.True(t, rec.options.Compression)
	assert.True(t, rec.options.Align)
	assert.False(t, rec.options.Legacy)
	assert.Equal(t, "/mnt", rec.options.MountPoint)

	// no -u means no OS payload, but config and boot environments are
	// always wired
	assert.Nil(t, rec.deps.Bootstrap)
	assert.NotNil(t, rec.deps.Config)
	assert.NotNil(t, rec.deps.BootEnvs)
}

func TestCLISingleDiskDefaults(t *testing.T) {
	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	require.NoError(t, main.Run([]string{"-d", "ada0"}))

	assert.Equal(t, []vdev.Group{
		{Mode: vdev.ModeStripe, Devices: []string{"ada0"}},
	}, rec.options.Groups)
	assert.Equal(t, "zroot", rec.options.PoolName)
	assert.Zero(t, rec.options.SwapSize)
	assert.Zero(t, rec.options.PoolVersion)
}

func TestCLIDistSelectsBootstrapper(t *testing.T) {
	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	require.NoError(t, main.Run([]string{"-d", "da0", "-u", "/usr/freebsd-dist"}))
	assert.NotNil(t, rec.deps.Bootstrap)
}

func TestCLITopologyErrors(t *testing.T) {
	for _, tc := range []struct {
		args   []string
		errmsg string
	}{
		{[]string{"-r", "mirror"},
			"redundancy mode mirror must follow the devices it covers"},
		{[]string{"-d", "da0", "-d", "da1", "-r", "raidz1"},
			"raidz1 requires at least 3 devices, got 2"},
		{[]string{"-d", "da0", "-d", "da0"},
			"device da0 given more than once"},
		{[]string{"-d", "da0", "-d", "da1", "-r", "mirror", "-d", "da2", "-d", "da3", "-d", "da4", "-r", "raidz1"},
			"cannot mix mirror and raidz1 groups in one pool"},
		{[]string{"-d", "da0", "-d", "da1", "-r", "mirror", "-d", "da2"},
			"1 device(s) after the last mirror group are missing a redundancy mode"},
		{[]string{"-d", "da0", "-r", "nonsense"},
			"unknown redundancy mode"},
		{[]string{},
			"no devices given"},
	} {
		t.Run(tc.errmsg, func(t *testing.T) {
			var rec capture
			restore := main.MockDoInstall(rec.doInstall)
			defer restore()

			err := main.Run(tc.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errmsg)
			assert.Zero(t, rec.called)
		})
	}
}

func TestCLIBadSize(t *testing.T) {
	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	err := main.Run([]string{"-d", "da0", "-s", "2 girafes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown data size units in string: 2 girafes")
	assert.Zero(t, rec.called)
}

func TestCLIConfigFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool = "tank"
compress = true
swap_size = "1 GiB"
legacy = true
`), 0o644))

	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	require.NoError(t, main.Run([]string{"-d", "da0", "--config", path}))

	assert.Equal(t, "tank", rec.options.PoolName)
	assert.True(t, rec.options.Compression)
	assert.True(t, rec.options.Legacy)
	assert.Equal(t, uint64(datasizes.GiB), rec.options.SwapSize)
}

func TestCLIConfigFileFlagWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool = "tank"
swap_size = "1 GiB"
`), 0o644))

	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	require.NoError(t, main.Run([]string{"-d", "da0", "--config", path, "-p", "zroot", "-s", "512MiB"}))

	assert.Equal(t, "zroot", rec.options.PoolName)
	assert.Equal(t, uint64(512*datasizes.MiB), rec.options.SwapSize)
}

func TestCLIUnknownConfigKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.toml")
	require.NoError(t, os.WriteFile(path, []byte(`pol = "tank"`), 0o644))

	var rec capture
	restore := main.MockDoInstall(rec.doInstall)
	defer restore()

	err := main.Run([]string{"-d", "da0", "--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Zero(t, rec.called)
}
