package bootstrap_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsdkit/zfsinstall/pkg/bootstrap"
	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

type callRecorder struct {
	calls  [][]string
	failAt int // 1-based call index that fails, 0 never fails
}

func (r *callRecorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.failAt == len(r.calls) {
		return nil, fmt.Errorf("running %s failed: exit status 1, stderr: simulated", name)
	}
	return nil, nil
}

func writeSets(t *testing.T, dir string, sets ...string) {
	for _, set := range sets {
		require.NoError(t, os.WriteFile(filepath.Join(dir, set), []byte(set), 0o644))
	}
}

func TestBootstrapLocalSource(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz", "kernel.txz")
	root := t.TempDir()

	rec := &callRecorder{}
	d := bootstrap.NewDistSets(source, nil, nil, rec.run)
	require.NoError(t, d.Bootstrap(context.Background(), root))

	// no mtree spec in the unpacked (here: empty) tree, so no third call
	require.Len(t, rec.calls, 2)
	assert.Equal(t, []string{"tar", "-C", root, "-xpf", filepath.Join(source, "base.txz")}, rec.calls[0])
	assert.Equal(t, []string{"tar", "-C", root, "-xpf", filepath.Join(source, "kernel.txz")}, rec.calls[1])
}

func TestBootstrapReconciles(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz")

	root := t.TempDir()
	spec := filepath.Join(root, "etc/mtree/BSD.root.dist")
	require.NoError(t, os.MkdirAll(filepath.Dir(spec), 0o755))
	require.NoError(t, os.WriteFile(spec, []byte("#mtree 2.0"), 0o644))

	rec := &callRecorder{}
	d := bootstrap.NewDistSets(source, []string{"base.txz"}, nil, rec.run)
	require.NoError(t, d.Bootstrap(context.Background(), root))

	require.Len(t, rec.calls, 2)
	assert.Equal(t, []string{"mtree", "-deU", "-f", spec, "-p", root}, rec.calls[1])
}

func TestBootstrapDownloadsOntoNewPool(t *testing.T) {
	server := makeDistServer(t, map[string]string{
		"base.txz":   "base payload",
		"kernel.txz": "kernel payload",
	})
	root := t.TempDir()

	rec := &callRecorder{}
	fetch := bootstrap.NewFetcher(server.Client())
	d := bootstrap.NewDistSets(server.URL+"/13.2-RELEASE", nil, fetch, rec.run)
	require.NoError(t, d.Bootstrap(context.Background(), root))

	require.Len(t, rec.calls, 2)
	for i, set := range []string{"base.txz", "kernel.txz"} {
		call := rec.calls[i]
		require.Len(t, call, 5)
		assert.Equal(t, []string{"tar", "-C", root, "-xpf"}, call[:4])
		assert.True(t, strings.HasPrefix(call[4], filepath.Join(root, ".dist-")), call[4])
		assert.Equal(t, set, filepath.Base(call[4]))
	}

	// the scratch download directory is gone afterwards
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBootstrapVerifiesSets(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz", "kernel.txz")
	writeManifest(t, source, map[string]string{
		"base.txz":   "base.txz",
		"kernel.txz": "kernel.txz",
	})
	root := t.TempDir()

	rec := &callRecorder{}
	d := bootstrap.NewDistSets(source, nil, nil, rec.run)
	require.NoError(t, d.Bootstrap(context.Background(), root))

	// MANIFEST is consulted, never extracted
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "base.txz", filepath.Base(rec.calls[0][4]))
	assert.Equal(t, "kernel.txz", filepath.Base(rec.calls[1][4]))
}

func TestBootstrapDownloadVerified(t *testing.T) {
	payloads := map[string]string{
		"base.txz":   "base payload",
		"kernel.txz": "kernel payload",
	}
	server := makeDistServer(t, map[string]string{
		"base.txz":   payloads["base.txz"],
		"kernel.txz": payloads["kernel.txz"],
		"MANIFEST":   manifestFor(payloads),
	})
	root := t.TempDir()

	rec := &callRecorder{}
	fetch := bootstrap.NewFetcher(server.Client())
	d := bootstrap.NewDistSets(server.URL+"/13.2-RELEASE", nil, fetch, rec.run)
	require.NoError(t, d.Bootstrap(context.Background(), root))

	require.Len(t, rec.calls, 2)
}

func TestBootstrapChecksumMismatchStops(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz", "kernel.txz")
	writeManifest(t, source, map[string]string{
		"base.txz":   "not what is on disk",
		"kernel.txz": "kernel.txz",
	})

	rec := &callRecorder{}
	d := bootstrap.NewDistSets(source, nil, nil, rec.run)

	err := d.Bootstrap(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errdefs.IsOperation(err))
	assert.Contains(t, err.Error(), "checksum mismatch")
	// nothing was extracted from the tampered source
	assert.Empty(t, rec.calls)
}

func TestBootstrapBrokenManifestStops(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz")
	require.NoError(t, os.WriteFile(filepath.Join(source, "MANIFEST"),
		[]byte("this is not a manifest\n"), 0o644))

	rec := &callRecorder{}
	d := bootstrap.NewDistSets(source, nil, nil, rec.run)

	err := d.Bootstrap(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed MANIFEST line")
	assert.Empty(t, rec.calls)
}

func TestBootstrapExtractFailureStops(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz", "kernel.txz")

	rec := &callRecorder{failAt: 1}
	d := bootstrap.NewDistSets(source, nil, nil, rec.run)

	err := d.Bootstrap(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errdefs.IsOperation(err))
	assert.Contains(t, err.Error(), "extract base.txz")
	assert.Len(t, rec.calls, 1)
}

func TestBootstrapMissingSet(t *testing.T) {
	source := t.TempDir()
	writeSets(t, source, "base.txz")

	rec := &callRecorder{}
	d := bootstrap.NewDistSets(source, nil, nil, rec.run)

	err := d.Bootstrap(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locate distribution set")
	// base.txz extracted before the missing kernel.txz stopped the run
	assert.Len(t, rec.calls, 1)
}
