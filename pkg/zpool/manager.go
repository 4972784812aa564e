package zpool

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bsdkit/zfsinstall/internal/cmdutil"
	"github.com/bsdkit/zfsinstall/internal/common"
	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// openZFSFloor is the module version below which a warning is logged; such
// kernels work but miss years of raidz and boot fixes.
const openZFSFloor = "2.0.0"

// RunCommandFunc executes an external command and returns its stdout.
type RunCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Manager drives zpool and sysctl on the live system.
type Manager struct {
	run RunCommandFunc
}

// NewManager returns a Manager. A nil run function uses the real system
// tools.
func NewManager(run RunCommandFunc) *Manager {
	if run == nil {
		run = cmdutil.Run
	}
	return &Manager{run: run}
}

// ModuleInfo reports the kernel's ZFS support.
type ModuleInfo struct {
	MaxPoolVersion uint64
	ModuleVersion  string // empty on kernels that do not expose it
}

// ModuleInfo queries the kernel for its ZFS support. Failure to read the
// spa version sysctl means ZFS support is not loaded at all.
func (m *Manager) ModuleInfo(ctx context.Context) (*ModuleInfo, error) {
	out, err := m.run(ctx, "sysctl", "-n", "vfs.zfs.version.spa")
	if err != nil {
		return nil, errdefs.PreconditionError{
			Check: "zfs-module",
			Msg:   "ZFS kernel support is unavailable",
			Hint:  "kldload zfs",
		}
	}
	spa, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return nil, errdefs.OperationError{
			Op:     "sysctl vfs.zfs.version.spa",
			Output: strings.TrimSpace(string(out)),
			Inner:  err,
		}
	}

	info := &ModuleInfo{MaxPoolVersion: spa}
	if out, err := m.run(ctx, "sysctl", "-n", "vfs.zfs.version.module"); err == nil {
		info.ModuleVersion = strings.TrimSpace(string(out))
	}
	return info, nil
}

// Check validates the spec against the loaded module and the pools already
// known to the system. It must pass before any device is touched.
func (m *Manager) Check(ctx context.Context, spec *Spec) error {
	info, err := m.ModuleInfo(ctx)
	if err != nil {
		return err
	}
	if info.MaxPoolVersion < MinVersion {
		return errdefs.PreconditionError{
			Check: "zfs-module",
			Msg:   fmt.Sprintf("kernel supports pool version %d, need at least %d", info.MaxPoolVersion, MinVersion),
		}
	}
	if info.ModuleVersion != "" {
		if old, err := common.VersionLessThan(info.ModuleVersion, openZFSFloor); err == nil && old {
			logrus.Warnf("ZFS module version %s predates OpenZFS %s, consider updating before installing", info.ModuleVersion, openZFSFloor)
		}
	}

	if spec.Version < MinVersion || spec.Version > info.MaxPoolVersion {
		return errdefs.Configf("pool version %d out of range, kernel supports %d through %d",
			spec.Version, MinVersion, info.MaxPoolVersion)
	}
	if spec.Compat && info.MaxPoolVersion != VersionFeatureFlags {
		return errdefs.Configf("compatibility feature set needs feature flags support (pool version %d), kernel supports %d",
			VersionFeatureFlags, info.MaxPoolVersion)
	}

	taken, err := m.knownPools(ctx)
	if err != nil {
		return err
	}
	if common.IsStringInSortedSlice(taken, spec.Name) {
		return errdefs.Configf("a pool named %s already exists or is waiting to be imported", spec.Name)
	}
	return nil
}

// knownPools lists imported pools plus exported pools visible for import,
// sorted. The name check is inherently racy against pools appearing after
// it; creation still runs with -f and would take the name.
func (m *Manager) knownPools(ctx context.Context) ([]string, error) {
	out, err := m.run(ctx, "zpool", "list", "-H", "-o", "name")
	if err != nil {
		return nil, errdefs.OperationError{Op: "zpool list", Inner: err}
	}
	names := strings.Fields(string(out))

	// zpool import without arguments scans for exported pools and fails
	// when it finds none, which is not an error for us.
	out, err = m.run(ctx, "zpool", "import")
	if err != nil && len(bytes.TrimSpace(out)) == 0 {
		sort.Strings(names)
		return names, nil
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if found && strings.TrimSpace(key) == "pool" {
			names = append(names, strings.TrimSpace(value))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Create creates the pool described by the spec.
func (m *Manager) Create(ctx context.Context, spec *Spec) error {
	if _, err := m.run(ctx, "zpool", spec.CreateArgs()...); err != nil {
		return errdefs.OperationError{Op: "zpool create", Inner: err}
	}
	return nil
}

// Export exports the pool. After a successful export the pool must not be
// exported again before the next import.
func (m *Manager) Export(ctx context.Context, name string) error {
	if _, err := m.run(ctx, "zpool", "export", name); err != nil {
		return errdefs.OperationError{Op: "zpool export", Inner: err}
	}
	return nil
}

// Import imports the pool with the given runtime options.
func (m *Manager) Import(ctx context.Context, name, altroot, cachefile string) error {
	args := []string{"import"}
	if altroot != "" {
		args = append(args, "-o", "altroot="+altroot)
	}
	if cachefile != "" {
		args = append(args, "-o", "cachefile="+cachefile)
	}
	args = append(args, name)
	if _, err := m.run(ctx, "zpool", args...); err != nil {
		return errdefs.OperationError{Op: "zpool import", Inner: err}
	}
	return nil
}

// SetBootFS marks the dataset the boot blocks descend into.
func (m *Manager) SetBootFS(ctx context.Context, name, dataset string) error {
	if _, err := m.run(ctx, "zpool", "set", "bootfs="+dataset, name); err != nil {
		return errdefs.OperationError{Op: "zpool set bootfs", Inner: err}
	}
	return nil
}
