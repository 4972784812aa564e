package install

import (
	"context"

	"github.com/bsdkit/zfsinstall/pkg/zfs"
)

// The installer treats everything that touches the OS payload as a
// collaborator behind an interface: what lands on the pool is not its
// business, only that the steps run in order.

// Bootstrapper unpacks the operating system into the mounted tree.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, root string) error
}

// ConfigWriter persists the configuration that makes the new system boot on
// its own: fstab, loader knobs, service switches.
type ConfigWriter interface {
	WriteConfig(ctx context.Context, root string, cfg BootConfig) error
}

// BootEnvironments manages boot environments on the new pool.
type BootEnvironments interface {
	Create(ctx context.Context, name, snapshot string) error
	Activate(ctx context.Context, name string) error
}

// BootConfig is everything the configuration writer needs to know about the
// finished pool.
type BootConfig struct {
	PoolName    string
	RootDataset string

	// SwapLabel is the gptid label of the first device's swap partition,
	// empty when no swap was requested. Swap partitions on the remaining
	// devices are created but stay unreferenced.
	SwapLabel string

	// LegacyMounts lists the datasets needing fstab entries in legacy
	// mode, root first. Empty in the default mode, where the pool mounts
	// its datasets itself.
	LegacyMounts []zfs.Mount
}

const (
	// BootEnvironmentName is the single boot environment a default-mode
	// run leaves behind.
	BootEnvironmentName = "default"

	// InitialSnapshot marks the boot environment's pristine state.
	InitialSnapshot = "initial"
)
