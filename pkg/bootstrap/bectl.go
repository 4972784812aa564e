package bootstrap

import (
	"context"

	"github.com/bsdkit/zfsinstall/internal/cmdutil"
	"github.com/bsdkit/zfsinstall/pkg/errdefs"
	"github.com/bsdkit/zfsinstall/pkg/zfs"
)

// Bectl manages boot environments on the new pool through the system bectl
// tool, pointed at the pool's boot container since the target system is not
// the one running.
type Bectl struct {
	pool string
	run  RunCommandFunc
}

// NewBectl returns a boot environment manager for the pool. A nil run
// function uses the real system tools.
func NewBectl(pool string, run RunCommandFunc) *Bectl {
	if run == nil {
		run = cmdutil.Run
	}
	return &Bectl{
		pool: pool,
		run:  run,
	}
}

// Create records the boot environment's pristine state. The environment's
// dataset already exists as part of the fixed tree; the snapshot is what
// lets bectl clone or roll it back later.
func (b *Bectl) Create(ctx context.Context, name, snapshot string) error {
	target := zfs.BootContainer(b.pool) + "/" + name + "@" + snapshot
	if _, err := b.run(ctx, "zfs", "snapshot", target); err != nil {
		return errdefs.OperationError{Op: "zfs snapshot " + target, Inner: err}
	}
	return nil
}

// Activate marks the boot environment as the one the loader boots from.
func (b *Bectl) Activate(ctx context.Context, name string) error {
	if _, err := b.run(ctx, "bectl", "-r", zfs.BootContainer(b.pool), "activate", name); err != nil {
		return errdefs.OperationError{Op: "bectl activate " + name, Inner: err}
	}
	return nil
}
