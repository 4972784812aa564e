// Package zpool creates and manipulates the storage pool the installer
// builds, and checks the kernel's ZFS support before anything is written.
package zpool

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/bsdkit/zfsinstall/pkg/vdev"
)

const (
	// VersionFeatureFlags is the pool version value meaning "feature
	// flags". Pools at this version carry no numeric version property, so
	// requesting it disables the version option entirely.
	VersionFeatureFlags = 5000

	// MinVersion is the oldest pool version the boot blocks can start
	// from; both the kernel's maximum and the requested version must be at
	// least this.
	MinVersion = 13
)

// compatFeatures is the exact feature set enabled in compatibility mode.
// The pool is created with all other features disabled so that it stays
// importable by any feature-flags implementation.
var compatFeatures = []string{"async_destroy", "empty_bpobj", "lz4_compress"}

// VdevSpec is one top-level vdev of the pool: a redundancy mode plus the
// partition labels of its members.
type VdevSpec struct {
	Mode   vdev.Mode
	Labels []string
}

// Spec describes the pool to create. Altroot and CacheFile scope the pool
// to the installation; they are replaced when the pool is re-imported for
// its first boot.
type Spec struct {
	Name      string
	Version   uint64
	Compat    bool
	Altroot   string
	CacheFile string
	RootProps map[string]string // properties of the pool root dataset
	Vdevs     []VdevSpec
}

// CreateArgs renders the zpool arguments creating the pool. The pool is
// never mounted directly (-m none); datasets carry the mountpoints.
func (s *Spec) CreateArgs() []string {
	args := []string{"create", "-f", "-m", "none"}
	if s.Altroot != "" {
		args = append(args, "-o", "altroot="+s.Altroot)
	}
	if s.CacheFile != "" {
		args = append(args, "-o", "cachefile="+s.CacheFile)
	}
	if s.Version != VersionFeatureFlags {
		args = append(args, "-o", fmt.Sprintf("version=%d", s.Version))
	}
	if s.Compat {
		args = append(args, "-d")
		for _, feature := range compatFeatures {
			args = append(args, "-o", fmt.Sprintf("feature@%s=enabled", feature))
		}
	}

	props := maps.Keys(s.RootProps)
	sort.Strings(props)
	for _, prop := range props {
		args = append(args, "-O", fmt.Sprintf("%s=%s", prop, s.RootProps[prop]))
	}

	args = append(args, s.Name)
	for _, v := range s.Vdevs {
		if v.Mode != vdev.ModeStripe {
			args = append(args, string(v.Mode))
		}
		args = append(args, v.Labels...)
	}
	return args
}
