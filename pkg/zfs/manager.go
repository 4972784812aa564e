package zfs

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/bsdkit/zfsinstall/internal/cmdutil"
	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// RunCommandFunc executes an external command and returns its stdout.
type RunCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Manager drives zfs and the mount tools on the live system.
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

// TreeOptions tune the fixed tree for one run.
type TreeOptions struct {
	// Legacy replaces every real mountpoint with "legacy"; the runtime
	// mounts then come from fstab instead of the pool.
	Legacy bool
}

// CreateTree creates the fixed dataset tree under the pool, parents first.
// The first failing create aborts, leaving the datasets created so far.
func (m *Manager) CreateTree(ctx context.Context, pool string, opts TreeOptions) error {
	for _, def := range layout {
		args := []string{"create"}

		mountpoint := def.Mountpoint
		if opts.Legacy && mountpoint != "" && mountpoint != "none" {
			mountpoint = "legacy"
		}
		if mountpoint != "" {
			args = append(args, "-o", "mountpoint="+mountpoint)
		}

		props := maps.Keys(def.Properties)
		sort.Strings(props)
		for _, prop := range props {
			args = append(args, "-o", prop+"="+def.Properties[prop])
		}

		dataset := pool + "/" + def.Path
		args = append(args, dataset)
		if _, err := m.run(ctx, "zfs", args...); err != nil {
			return errdefs.OperationError{Op: "zfs create " + dataset, Inner: err}
		}
	}
	return nil
}

// MountLegacy mounts a legacy dataset under the installer's mount root,
// creating the target directory when the extracted tree does not have it
// yet.
func (m *Manager) MountLegacy(ctx context.Context, root string, mnt Mount) error {
	target := filepath.Join(root, mnt.Mountpoint)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return errdefs.OperationError{Op: "mount " + mnt.Dataset, Inner: err}
	}
	if _, err := m.run(ctx, "mount", "-t", "zfs", mnt.Dataset, target); err != nil {
		return errdefs.OperationError{Op: "mount " + mnt.Dataset, Inner: err}
	}
	return nil
}

// Unmount unmounts a previously mounted legacy dataset.
func (m *Manager) Unmount(ctx context.Context, root string, mnt Mount) error {
	target := filepath.Join(root, mnt.Mountpoint)
	if _, err := m.run(ctx, "umount", target); err != nil {
		return errdefs.OperationError{Op: "umount " + target, Inner: err}
	}
	return nil
}
