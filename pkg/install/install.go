// Package install sequences a full installation run: device preflight, GPT
// partitioning, pool and dataset creation, OS bootstrap, configuration, and
// the export/import handoff that makes the pool bootable.
//
// The sequence is strictly serial and fail-fast. Nothing is retried and
// nothing is rolled back: a failed run stops where it is so the operator
// can inspect the system, matching how irreversible the underlying steps
// are.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
	"github.com/bsdkit/zfsinstall/pkg/gpt"
	"github.com/bsdkit/zfsinstall/pkg/vdev"
	"github.com/bsdkit/zfsinstall/pkg/zfs"
	"github.com/bsdkit/zfsinstall/pkg/zpool"
)

// Options is the full description of one run.
type Options struct {
	Groups []vdev.Group

	PoolName string
	// PoolVersion caps the pool's on-disk version; 0 means the module's
	// maximum. zpool.VersionFeatureFlags disables the version property.
	PoolVersion uint64
	Compat      bool
	Compression bool
	Fletcher4   bool

	SwapSize uint64 // bytes, 0 disables swap
	PoolSize uint64 // bytes per device, 0 uses the rest of each device
	Align    bool

	Legacy     bool
	MountPoint string
	// WorkDir holds the installation-scoped pool cache file. Left empty, a
	// temporary directory is created during validation.
	WorkDir string
}

// Installer wires the planners and drivers into the fixed sequence.
type Installer struct {
	opts Options

	parts *gpt.Partitioner
	pools *zpool.Manager
	data  *zfs.Manager
	boot  Bootstrapper
	conf  ConfigWriter
	benv  BootEnvironments

	state     State
	spec      *zpool.Spec
	layouts   []*gpt.Layout
	swapLabel string
}

// Deps are the collaborators of a run. Partitioner, Pools and Datasets
// default to drivers of the real system tools; Bootstrap may be nil to skip
// the OS payload entirely.
type Deps struct {
	Partitioner *gpt.Partitioner
	Pools       *zpool.Manager
	Datasets    *zfs.Manager
	Bootstrap   Bootstrapper
	Config      ConfigWriter
	BootEnvs    BootEnvironments
}

func New(opts Options, deps Deps) *Installer {
	if deps.Partitioner == nil {
		deps.Partitioner = gpt.NewPartitioner(nil)
	}
	if deps.Pools == nil {
		deps.Pools = zpool.NewManager(nil)
	}
	if deps.Datasets == nil {
		deps.Datasets = zfs.NewManager(nil)
	}
	return &Installer{
		opts:  opts,
		parts: deps.Partitioner,
		pools: deps.Pools,
		data:  deps.Datasets,
		boot:  deps.Bootstrap,
		conf:  deps.Config,
		benv:  deps.BootEnvs,
		state: StateStart,
	}
}

// Status reports the last state the run fully reached.
func (inst *Installer) Status() State {
	return inst.state
}

// Run executes the whole sequence. The returned error names the failing
// step; completed steps are never undone.
func (inst *Installer) Run(ctx context.Context) error {
	steps := []struct {
		name string
		next State
		do   func(context.Context) error
	}{
		{"validate", StateValidated, inst.validate},
		{"partition", StatePartitioned, inst.partition},
		{"create pool", StatePoolCreated, inst.createPool},
		{"create datasets", StateDatasetsCreated, inst.createDatasets},
		{"set boot fs", StateBootFsSet, inst.setBootFS},
		{"bootstrap", StateBootstrapped, inst.bootstrap},
		{"write config", StateConfigWritten, inst.writeConfig},
		{"reimport", StateReimported, inst.reimport},
		{"create boot environment", StateBootEnvCreated, inst.createBootEnv},
		{"activate", StateActivated, inst.activate},
	}

	for _, step := range steps {
		logrus.Debugf("step %s", step.name)
		if err := step.do(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		inst.state = step.next
	}
	inst.state = StateDone

	logrus.Infof("installation of pool %s complete", inst.opts.PoolName)
	return nil
}

// validate runs every preflight before anything destructive: topology and
// option sanity, kernel ZFS support, pool name availability, and a clean
// bill for every target device.
func (inst *Installer) validate(ctx context.Context) error {
	if inst.opts.PoolName == "" {
		return errdefs.Configf("pool name must not be empty")
	}
	if len(inst.opts.Groups) == 0 {
		return errdefs.Configf("no devices given")
	}

	if fi, err := os.Stat(inst.opts.MountPoint); err != nil || !fi.IsDir() {
		return errdefs.PreconditionError{
			Check: "mountpoint",
			Msg:   fmt.Sprintf("%s is not a usable directory", inst.opts.MountPoint),
			Hint:  "mkdir -p " + inst.opts.MountPoint,
		}
	}
	if inst.opts.WorkDir == "" {
		dir, err := os.MkdirTemp("", "zfsinstall-")
		if err != nil {
			return errdefs.OperationError{Op: "create work dir", Inner: err}
		}
		inst.opts.WorkDir = dir
	}

	version := inst.opts.PoolVersion
	if version == 0 {
		info, err := inst.pools.ModuleInfo(ctx)
		if err != nil {
			return err
		}
		version = info.MaxPoolVersion
		logrus.Debugf("defaulting pool version to the module maximum %d", version)
	}

	rootProps := map[string]string{}
	if inst.opts.Compression {
		rootProps["compression"] = "on"
	}
	if inst.opts.Fletcher4 {
		rootProps["checksum"] = "fletcher4"
	}

	inst.spec = &zpool.Spec{
		Name:      inst.opts.PoolName,
		Version:   version,
		Compat:    inst.opts.Compat,
		Altroot:   inst.opts.MountPoint,
		CacheFile: inst.scratchCache(),
		RootProps: rootProps,
	}
	if err := inst.pools.Check(ctx, inst.spec); err != nil {
		return err
	}

	for _, device := range vdev.Devices(inst.opts.Groups) {
		if err := inst.parts.CheckDevice(ctx, device); err != nil {
			return err
		}
	}
	return nil
}

// partition prepares every device in argument order, collecting the pool
// partition labels group by group.
func (inst *Installer) partition(ctx context.Context) error {
	for _, group := range inst.opts.Groups {
		gspec := zpool.VdevSpec{Mode: group.Mode}
		for _, device := range group.Devices {
			layout, err := inst.parts.Prepare(ctx, device, gpt.Options{
				SwapSize: inst.opts.SwapSize,
				PoolSize: inst.opts.PoolSize,
				Align:    inst.opts.Align,
			})
			if err != nil {
				return err
			}
			inst.layouts = append(inst.layouts, layout)
			gspec.Labels = append(gspec.Labels, layout.Pool.Label)
			if layout.Swap != nil && inst.swapLabel == "" {
				inst.swapLabel = layout.Swap.Label
			}
		}
		inst.spec.Vdevs = append(inst.spec.Vdevs, gspec)
	}
	return nil
}

func (inst *Installer) createPool(ctx context.Context) error {
	return inst.pools.Create(ctx, inst.spec)
}

func (inst *Installer) createDatasets(ctx context.Context) error {
	return inst.data.CreateTree(ctx, inst.opts.PoolName, zfs.TreeOptions{Legacy: inst.opts.Legacy})
}

func (inst *Installer) setBootFS(ctx context.Context) error {
	return inst.pools.SetBootFS(ctx, inst.opts.PoolName, zfs.RootDataset(inst.opts.PoolName))
}

// bootstrap unpacks the OS payload. In legacy mode the tree does not mount
// itself, so the datasets are mounted first, root down.
func (inst *Installer) bootstrap(ctx context.Context) error {
	if inst.opts.Legacy {
		for _, mnt := range zfs.LegacyMounts(inst.opts.PoolName) {
			if err := inst.data.MountLegacy(ctx, inst.opts.MountPoint, mnt); err != nil {
				return err
			}
		}
	}
	if inst.boot == nil {
		logrus.Info("no distribution source given, leaving the tree empty")
		return nil
	}
	return inst.boot.Bootstrap(ctx, inst.opts.MountPoint)
}

func (inst *Installer) writeConfig(ctx context.Context) error {
	if inst.conf == nil {
		return nil
	}
	cfg := BootConfig{
		PoolName:    inst.opts.PoolName,
		RootDataset: zfs.RootDataset(inst.opts.PoolName),
		SwapLabel:   inst.swapLabel,
	}
	if inst.opts.Legacy {
		cfg.LegacyMounts = zfs.LegacyMounts(inst.opts.PoolName)
	}
	return inst.conf.WriteConfig(ctx, inst.opts.MountPoint, cfg)
}

// reimport hands the pool over from the installer to the new system: unmount
// what was mounted manually, export, import with a freshly rewritten cache
// file, and put that cache file where the loader will look for it.
func (inst *Installer) reimport(ctx context.Context) error {
	if inst.opts.Legacy {
		mounts := zfs.LegacyMounts(inst.opts.PoolName)
		for i := len(mounts) - 1; i >= 0; i-- {
			if err := inst.data.Unmount(ctx, inst.opts.MountPoint, mounts[i]); err != nil {
				return err
			}
		}
	}

	if err := inst.pools.Export(ctx, inst.opts.PoolName); err != nil {
		return err
	}
	// From here on the pool must never be exported a second time.
	if err := inst.pools.Import(ctx, inst.opts.PoolName, inst.opts.MountPoint, inst.scratchCache()); err != nil {
		return fmt.Errorf("%w; the pool is exported now, import it manually and do not export it again", err)
	}
	return inst.installCacheFile(ctx)
}

// installCacheFile copies the rewritten cache file into the root dataset at
// the path the loader reads on boot. The legacy tree is not mounted at this
// point, so its root is mounted just for the copy.
func (inst *Installer) installCacheFile(ctx context.Context) error {
	cache, err := os.ReadFile(inst.scratchCache())
	if err != nil {
		return errdefs.OperationError{Op: "read pool cache file", Inner: err}
	}

	rootMount := zfs.Mount{Dataset: zfs.RootDataset(inst.opts.PoolName), Mountpoint: "/"}
	if inst.opts.Legacy {
		if err := inst.data.MountLegacy(ctx, inst.opts.MountPoint, rootMount); err != nil {
			return err
		}
	}

	target := filepath.Join(inst.opts.MountPoint, "boot/zfs/zpool.cache")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errdefs.OperationError{Op: "install pool cache file", Inner: err}
	}
	if err := os.WriteFile(target, cache, 0o644); err != nil {
		return errdefs.OperationError{Op: "install pool cache file", Inner: err}
	}

	if inst.opts.Legacy {
		return inst.data.Unmount(ctx, inst.opts.MountPoint, rootMount)
	}
	return nil
}

// createBootEnv and activate only apply to the default mode; legacy mode is
// the non-boot-environment mode and boots straight from fstab.
func (inst *Installer) createBootEnv(ctx context.Context) error {
	if inst.opts.Legacy || inst.benv == nil {
		logrus.Debug("skipping boot environment creation")
		return nil
	}
	return inst.benv.Create(ctx, BootEnvironmentName, InitialSnapshot)
}

func (inst *Installer) activate(ctx context.Context) error {
	if inst.opts.Legacy || inst.benv == nil {
		return nil
	}
	return inst.benv.Activate(ctx, BootEnvironmentName)
}

func (inst *Installer) scratchCache() string {
	return filepath.Join(inst.opts.WorkDir, "zpool.cache")
}
