// Package gpt prepares installer target disks: a GPT table with the fixed
// boot partition, optional swap, and the pool partition, plus protective
// bootcode and the stable gptid labels the pool is later built from.
package gpt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/bsdkit/zfsinstall/internal/cmdutil"
	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// gpart addresses disks in 512-byte logical sectors.
const SectorSize = 512

// Fixed boot partition geometry, in sectors. The protective MBR and the
// partition table occupy the first 40 sectors; gptzfsboot must fit in 472.
const (
	bootStart = 40
	bootSize  = 472
)

// labelWipeSectors is the size of the stale-metadata region zeroed right
// after the boot and swap partitions. Old pool or filesystem labels living
// there would otherwise be detected again on the freshly partitioned disk.
const labelWipeSectors = 560

// Options select the optional parts of the on-disk layout.
type Options struct {
	SwapSize uint64 // bytes, 0 disables swap
	PoolSize uint64 // bytes, 0 uses the rest of the device
	Align    bool   // align swap and pool partitions to 4 KiB boundaries
}

// Partition is one created partition: its gpart provider name, its position
// in sectors, and the gptid label derived from its GPT GUID. The label is
// how the partition is referenced from then on; provider names are not
// stable across controller or cabling changes.
type Partition struct {
	Provider string // e.g. da0p2
	Label    string // e.g. gptid/d9d18998-8f3c-11ee-a3a1-0800273dca4a
	Index    int
	Start    uint64
	End      uint64
}

// Layout describes the partitions created on one device.
type Layout struct {
	Device string
	Boot   Partition
	Swap   *Partition
	Pool   Partition
}

// RunCommandFunc executes an external command and returns its stdout.
type RunCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Partitioner drives gpart and dd on the live system.
type Partitioner struct {
	run RunCommandFunc
}

// NewPartitioner returns a Partitioner. A nil run function uses the real
// system tools.
func NewPartitioner(run RunCommandFunc) *Partitioner {
	if run == nil {
		run = cmdutil.Run
	}
	return &Partitioner{run: run}
}

type statModeFunc func(path string) (uint32, error)

var statMode statModeFunc = unixStatMode

func unixStatMode(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint32(st.Mode), nil
}

// TrimDev normalizes a device argument to its bare provider name, so da0
// and /dev/da0 mean the same disk.
func TrimDev(device string) string {
	return strings.TrimPrefix(device, "/dev/")
}

func devPath(device string) string {
	return "/dev/" + TrimDev(device)
}

// CheckDevice verifies the target is an untouched disk device. FreeBSD
// exposes disks as character devices; block devices are accepted for the
// sake of other platforms. A disk that already carries a partition table is
// refused, with the destroy command the operator would need as a hint.
func (p *Partitioner) CheckDevice(ctx context.Context, device string) error {
	path := devPath(device)
	mode, err := statMode(path)
	if err != nil {
		return errdefs.PreconditionError{Check: "device", Msg: fmt.Sprintf("%s: %v", path, err)}
	}
	switch mode & unix.S_IFMT {
	case unix.S_IFCHR, unix.S_IFBLK:
	default:
		return errdefs.PreconditionError{Check: "device", Msg: fmt.Sprintf("%s is not a disk device", path)}
	}

	// "No such geom" is the one acceptable outcome here: it means the disk
	// has no partition table at all.
	_, err = p.run(ctx, "gpart", "show", device)
	if err == nil {
		return errdefs.PreconditionError{
			Check: "device",
			Msg:   fmt.Sprintf("%s already contains a partition table", device),
			Hint:  fmt.Sprintf("gpart destroy -F %s", device),
		}
	}
	if !strings.Contains(err.Error(), "No such geom") {
		return errdefs.OperationError{Op: "gpart show", Inner: err}
	}
	return nil
}

// Prepare partitions one device, strictly in order: table, boot partition,
// stale-label wipe, optional swap plus wipe, pool partition, bootcode. Any
// failure aborts immediately; partitions already created on this or earlier
// devices are left for the operator to inspect.
func (p *Partitioner) Prepare(ctx context.Context, device string, opts Options) (*Layout, error) {
	device = TrimDev(device)

	if _, err := p.run(ctx, "gpart", "create", "-s", "gpt", device); err != nil {
		return nil, errdefs.OperationError{Op: "gpart create", Inner: err}
	}

	layout := &Layout{Device: device}

	boot, err := p.addPartition(ctx, device, addSpec{typ: "freebsd-boot", start: bootStart, size: bootSize})
	if err != nil {
		return nil, err
	}
	layout.Boot = *boot
	if err := p.wipeAfter(ctx, device, boot); err != nil {
		return nil, err
	}

	if opts.SwapSize > 0 {
		swap, err := p.addPartition(ctx, device, addSpec{
			typ:   "freebsd-swap",
			size:  bytesToSectors(opts.SwapSize, opts.Align),
			align: opts.Align,
		})
		if err != nil {
			return nil, err
		}
		layout.Swap = swap
		if err := p.wipeAfter(ctx, device, swap); err != nil {
			return nil, err
		}
	}

	pool, err := p.addPartition(ctx, device, addSpec{
		typ:   "freebsd-zfs",
		size:  bytesToSectors(opts.PoolSize, opts.Align),
		align: opts.Align,
	})
	if err != nil {
		return nil, err
	}
	layout.Pool = *pool

	if _, err := p.run(ctx, "gpart", "bootcode", "-b", "/boot/pmbr", "-p", "/boot/gptzfsboot", "-i", "1", device); err != nil {
		return nil, errdefs.OperationError{Op: "gpart bootcode", Inner: err}
	}

	return layout, nil
}

type addSpec struct {
	typ   string
	start uint64 // sectors, 0 lets gpart pick the next free block
	size  uint64 // sectors, 0 takes the rest of the device
	align bool
}

func (p *Partitioner) addPartition(ctx context.Context, device string, spec addSpec) (*Partition, error) {
	args := []string{"add"}
	if spec.align {
		args = append(args, "-a", "4k")
	}
	if spec.start > 0 {
		args = append(args, "-b", strconv.FormatUint(spec.start, 10))
	}
	if spec.size > 0 {
		args = append(args, "-s", strconv.FormatUint(spec.size, 10))
	}
	args = append(args, "-t", spec.typ, device)

	out, err := p.run(ctx, "gpart", args...)
	if err != nil {
		return nil, errdefs.OperationError{Op: "gpart add " + spec.typ, Inner: err}
	}
	provider, err := parseAdded(string(out), device)
	if err != nil {
		return nil, err
	}
	return p.describe(ctx, device, provider)
}

// describe resolves a freshly added partition into its Partition record
// using gpart list.
func (p *Partitioner) describe(ctx context.Context, device, provider string) (*Partition, error) {
	out, err := p.run(ctx, "gpart", "list", device)
	if err != nil {
		return nil, errdefs.OperationError{Op: "gpart list", Inner: err}
	}
	providers, err := parseProviders(string(out))
	if err != nil {
		return nil, err
	}
	for _, pr := range providers {
		if pr.Name != provider {
			continue
		}
		label, err := pr.gptid()
		if err != nil {
			return nil, err
		}
		return &Partition{
			Provider: pr.Name,
			Label:    label,
			Index:    pr.Index,
			Start:    pr.Start,
			End:      pr.End,
		}, nil
	}
	return nil, errdefs.OperationError{Op: "gpart list", Inner: fmt.Errorf("partition %s not listed after creation", provider)}
}

// wipeAfter zeroes the label region beginning right after the partition.
func (p *Partitioner) wipeAfter(ctx context.Context, device string, part *Partition) error {
	_, err := p.run(ctx, "dd",
		"if=/dev/zero",
		"of="+devPath(device),
		"bs="+strconv.Itoa(SectorSize),
		"seek="+strconv.FormatUint(part.End+1, 10),
		"count="+strconv.Itoa(labelWipeSectors))
	if err != nil {
		return errdefs.OperationError{Op: "dd", Inner: err}
	}
	return nil
}

// bytesToSectors converts a byte count to 512-byte sectors, rounding up.
// With align set the count is additionally rounded up to a 4 KiB boundary.
func bytesToSectors(size uint64, align bool) uint64 {
	if size == 0 {
		return 0
	}
	sectors := (size + SectorSize - 1) / SectorSize
	if align {
		sectors = alignUp(sectors, 4096/SectorSize)
	}
	return sectors
}

func alignUp(n, grain uint64) uint64 {
	if n%grain != 0 {
		n += grain - n%grain
	}
	return n
}
