package bootstrap

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bsdkit/zfsinstall/internal/cmdutil"
	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// DefaultSets are the distribution sets a minimal bootable system needs.
var DefaultSets = []string{"base.txz", "kernel.txz"}

// RunCommandFunc executes an external command and returns its stdout.
type RunCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// DistSets unpacks distribution set archives into the target root and
// reconciles ownership and permissions against the base mtree spec.
type DistSets struct {
	// Source is the http(s) URL or local directory holding the archives.
	Source string
	// Sets are the archive names to unpack, in order. Empty means
	// DefaultSets.
	Sets []string

	fetch *Fetcher
	run   RunCommandFunc
}

// NewDistSets returns a bootstrapper for the given source. A nil fetcher or
// run function selects the real implementations.
func NewDistSets(source string, sets []string, fetch *Fetcher, run RunCommandFunc) *DistSets {
	if len(sets) == 0 {
		sets = DefaultSets
	}
	if fetch == nil {
		fetch = NewFetcher(nil)
	}
	if run == nil {
		run = cmdutil.Run
	}
	return &DistSets{
		Source: source,
		Sets:   sets,
		fetch:  fetch,
		run:    run,
	}
}

// Bootstrap fetches and unpacks every set into root, then reconciles the
// tree. Downloads land in a scratch directory on the new pool itself, the
// installer usually runs from a memory disk with no room for them.
func (d *DistSets) Bootstrap(ctx context.Context, root string) error {
	destDir := ""
	if IsURL(d.Source) {
		dir, err := os.MkdirTemp(root, ".dist-")
		if err != nil {
			return errdefs.OperationError{Op: "create download dir", Inner: err}
		}
		defer os.RemoveAll(dir)
		destDir = dir
	}

	manifest, err := d.loadManifest(ctx, destDir)
	if err != nil {
		return err
	}

	for _, set := range d.Sets {
		path, err := d.fetch.Fetch(ctx, d.Source, set, destDir)
		if err != nil {
			return err
		}
		if err := manifest.Verify(set, path); err != nil {
			return err
		}

		logrus.Infof("extracting %s", set)
		if _, err := d.run(ctx, "tar", "-C", root, "-xpf", path); err != nil {
			return errdefs.OperationError{Op: "extract " + set, Inner: err}
		}
	}

	return d.reconcile(ctx, root)
}

// loadManifest resolves the MANIFEST file published next to the sets. A
// source without one only loses checksum verification; a manifest that is
// there but broken stops the run.
func (d *DistSets) loadManifest(ctx context.Context, destDir string) (Manifest, error) {
	path, err := d.fetch.Fetch(ctx, d.Source, manifestName, destDir)
	if err != nil {
		logrus.Warnf("no MANIFEST at %s, skipping checksum verification: %v", d.Source, err)
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.OperationError{Op: "read MANIFEST", Inner: err}
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, errdefs.OperationError{Op: "read MANIFEST", Inner: err}
	}
	return manifest, nil
}

// reconcile replays the base mtree spec over the unpacked tree so ownership
// and modes match the distribution exactly. Skipped when the sets did not
// ship a spec.
func (d *DistSets) reconcile(ctx context.Context, root string) error {
	spec := filepath.Join(root, "etc/mtree/BSD.root.dist")
	if _, err := os.Stat(spec); err != nil {
		logrus.Debugf("no mtree spec at %s, skipping reconciliation", spec)
		return nil
	}

	if _, err := d.run(ctx, "mtree", "-deU", "-f", spec, "-p", root); err != nil {
		return errdefs.OperationError{Op: "mtree reconcile", Inner: err}
	}
	return nil
}
