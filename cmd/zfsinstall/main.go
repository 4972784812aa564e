package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bsdkit/zfsinstall/internal/installconfig"
	"github.com/bsdkit/zfsinstall/pkg/bootstrap"
	"github.com/bsdkit/zfsinstall/pkg/datasizes"
	"github.com/bsdkit/zfsinstall/pkg/gpt"
	"github.com/bsdkit/zfsinstall/pkg/install"
	"github.com/bsdkit/zfsinstall/pkg/vdev"
)

// deviceFlag appends a disk to the shared topology builder every time -d
// appears. pflag calls Set in argument order, which is exactly the order
// the topology depends on.
type deviceFlag struct {
	builder *vdev.Builder
}

func (f deviceFlag) String() string { return "" }
func (f deviceFlag) Type() string   { return "disk" }

func (f deviceFlag) Set(s string) error {
	return f.builder.AddDevice(gpt.TrimDev(s))
}

// raidFlag closes the disks accumulated since the last marker into one
// redundancy group.
type raidFlag struct {
	builder *vdev.Builder
}

func (f raidFlag) String() string { return "" }
func (f raidFlag) Type() string   { return "mode" }

func (f raidFlag) Set(s string) error {
	mode, err := vdev.ParseMode(s)
	if err != nil {
		return err
	}
	return f.builder.CloseGroup(mode)
}

// sizeFlag accepts a plain byte count or a human-readable size like 2GiB.
type sizeFlag struct {
	size *uint64
}

func (f sizeFlag) String() string {
	if f.size == nil || *f.size == 0 {
		return ""
	}
	return strconv.FormatUint(*f.size, 10)
}

func (f sizeFlag) Type() string { return "size" }

func (f sizeFlag) Set(s string) error {
	size, err := datasizes.Parse(s)
	if err != nil {
		return err
	}
	*f.size = size
	return nil
}

type cliOptions struct {
	dist       string
	pool       string
	mountpoint string
	swapSize   uint64
	poolSize   uint64
	version    uint64
	compat     bool
	compress   bool
	fletcher4  bool
	align      bool
	legacy     bool
	configPath string
	verbose    bool
}

// applyConfig fills in options the command line left untouched from the
// config file. Boolean options only switch on; a config cannot veto an
// explicit flag.
func (o *cliOptions) applyConfig(flags *pflag.FlagSet, conf *installconfig.Config) {
	if !flags.Changed("pool") && conf.Pool != "" {
		o.pool = conf.Pool
	}
	if !flags.Changed("dist") && conf.Dist != "" {
		o.dist = conf.Dist
	}
	if !flags.Changed("mountpoint") && conf.Mountpoint != "" {
		o.mountpoint = conf.Mountpoint
	}
	if !flags.Changed("swap") && conf.SwapSize > 0 {
		o.swapSize = uint64(conf.SwapSize)
	}
	if !flags.Changed("pool-size") && conf.PoolSize > 0 {
		o.poolSize = uint64(conf.PoolSize)
	}
	if !flags.Changed("pool-version") && conf.PoolVersion > 0 {
		o.version = conf.PoolVersion
	}
	o.compat = o.compat || conf.Compat
	o.compress = o.compress || conf.Compress
	o.fletcher4 = o.fletcher4 || conf.Fletcher4
	o.align = o.align || conf.Align
	o.legacy = o.legacy || conf.Legacy
}

// doInstall executes the assembled run; tests replace it.
var doInstall = func(ctx context.Context, options install.Options, deps install.Deps) error {
	return install.New(options, deps).Run(ctx)
}

func runInstall(cmd *cobra.Command, opts *cliOptions, builder *vdev.Builder) error {
	if opts.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if opts.configPath != "" {
		conf, err := installconfig.Load(opts.configPath)
		if err != nil {
			return err
		}
		opts.applyConfig(cmd.Flags(), conf)
	}

	groups, err := builder.Finish()
	if err != nil {
		return err
	}

	options := install.Options{
		Groups:      groups,
		PoolName:    opts.pool,
		PoolVersion: opts.version,
		Compat:      opts.compat,
		Compression: opts.compress,
		Fletcher4:   opts.fletcher4,
		SwapSize:    opts.swapSize,
		PoolSize:    opts.poolSize,
		Align:       opts.align,
		Legacy:      opts.legacy,
		MountPoint:  opts.mountpoint,
	}

	deps := install.Deps{
		Config:   bootstrap.ConfigFiles{},
		BootEnvs: bootstrap.NewBectl(opts.pool, nil),
	}
	if opts.dist != "" {
		deps.Bootstrap = bootstrap.NewDistSets(opts.dist, nil, nil, nil)
	}

	return doInstall(cmd.Context(), options, deps)
}

func newCmd() *cobra.Command {
	opts := &cliOptions{}
	builder := vdev.NewBuilder()

	cmd := &cobra.Command{
		Use:   "zfsinstall -d disk [-d disk ...] [options]",
		Short: "Install a FreeBSD system onto a new ZFS pool",
		Long: `Install a FreeBSD system onto a new ZFS pool

zfsinstall partitions the given disks, creates a pool with the standard
root dataset tree, unpacks the distribution sets and makes the result
bootable. Disks and redundancy markers are read in order: every -r closes
the disks listed before it into one group, so two mirrored pairs are
  zfsinstall -d da0 -d da1 -r mirror -d da2 -d da3 -r mirror`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, opts, builder)
		},
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.VarP(deviceFlag{builder}, "disk", "d", "disk to install onto, repeatable, order matters")
	flags.VarP(raidFlag{builder}, "raid", "r", "redundancy mode closing the disks given so far (mirror, raidz1, raidz2, raidz3)")
	flags.StringVarP(&opts.dist, "dist", "u", "", "distribution sets URL or local directory")
	flags.StringVarP(&opts.pool, "pool", "p", "zroot", "name of the pool to create")
	flags.VarP(sizeFlag{&opts.swapSize}, "swap", "s", "swap partition size per disk, e.g. 2GiB (default: no swap)")
	flags.VarP(sizeFlag{&opts.poolSize}, "pool-size", "z", "pool partition size per disk (default: rest of the disk)")
	flags.StringVarP(&opts.mountpoint, "mountpoint", "m", "/mnt", "where the new system is mounted during the install")
	flags.Uint64VarP(&opts.version, "pool-version", "V", 0, "on-disk pool version (default: kernel maximum)")
	flags.BoolVarP(&opts.compat, "compat", "C", false, "restrict the pool to the portable compatibility feature set")
	flags.BoolVarP(&opts.compress, "compress", "c", false, "enable compression on the whole pool")
	flags.BoolVarP(&opts.fletcher4, "fletcher4", "k", false, "use fletcher4 checksums on the whole pool")
	flags.BoolVarP(&opts.align, "align", "4", false, "align partitions to 4 KiB boundaries")
	flags.BoolVarP(&opts.legacy, "legacy", "l", false, "legacy mountpoints managed through fstab, no boot environments")
	flags.StringVar(&opts.configPath, "config", "", "TOML file with option defaults")
	flags.BoolVar(&opts.verbose, "verbose", false, "log every external command")

	return cmd
}

func run(args []string) error {
	cmd := newCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		// failures go to stdout, naming the step that stopped the run
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
}
