package zfs_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
	"github.com/bsdkit/zfsinstall/pkg/zfs"
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

func TestCreateTree(t *testing.T) {
	rec := &callRecorder{}
	m := zfs.NewManager(rec.run)

	require.NoError(t, m.CreateTree(context.Background(), "zroot", zfs.TreeOptions{}))
	require.Len(t, rec.calls, 13)

	assert.Equal(t, []string{"zfs", "create", "-o", "mountpoint=none", "zroot/ROOT"}, rec.calls[0])
	assert.Equal(t, []string{"zfs", "create", "-o", "mountpoint=/", "zroot/ROOT/default"}, rec.calls[1])
	assert.Equal(t, []string{"zfs", "create", "-o", "mountpoint=/tmp", "-o", "exec=on", "-o", "setuid=off", "zroot/tmp"}, rec.calls[3])
	assert.Equal(t, []string{"zfs", "create", "zroot/usr/src"}, rec.calls[6])
	assert.Equal(t, []string{"zfs", "create", "-o", "atime=on", "zroot/var/mail"}, rec.calls[11])
}

func TestCreateTreeLegacy(t *testing.T) {
	rec := &callRecorder{}
	m := zfs.NewManager(rec.run)

	require.NoError(t, m.CreateTree(context.Background(), "zroot", zfs.TreeOptions{Legacy: true}))

	// the unmountable container keeps mountpoint=none, everything else
	// becomes a legacy mount
	assert.Equal(t, []string{"zfs", "create", "-o", "mountpoint=none", "zroot/ROOT"}, rec.calls[0])
	assert.Equal(t, []string{"zfs", "create", "-o", "mountpoint=legacy", "zroot/ROOT/default"}, rec.calls[1])
	assert.Equal(t, []string{"zfs", "create", "-o", "mountpoint=legacy", "zroot/usr"}, rec.calls[4])
	// inheriting datasets still carry no mountpoint of their own
	assert.Equal(t, []string{"zfs", "create", "zroot/usr/src"}, rec.calls[6])
}

func TestCreateTreeStopsOnFirstFailure(t *testing.T) {
	rec := &callRecorder{failAt: 3}
	m := zfs.NewManager(rec.run)

	err := m.CreateTree(context.Background(), "zroot", zfs.TreeOptions{})
	require.Error(t, err)
	assert.True(t, errdefs.IsOperation(err))
	assert.Contains(t, err.Error(), "zfs create zroot/home")
	assert.Len(t, rec.calls, 3)
}

func TestMountLegacy(t *testing.T) {
	root := t.TempDir()
	rec := &callRecorder{}
	m := zfs.NewManager(rec.run)

	err := m.MountLegacy(context.Background(), root, zfs.Mount{Dataset: "zroot/usr", Mountpoint: "/usr"})
	require.NoError(t, err)

	target := filepath.Join(root, "usr")
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, [][]string{{"mount", "-t", "zfs", "zroot/usr", target}}, rec.calls)
}

func TestMountLegacyRoot(t *testing.T) {
	root := t.TempDir()
	rec := &callRecorder{}
	m := zfs.NewManager(rec.run)

	err := m.MountLegacy(context.Background(), root, zfs.Mount{Dataset: "zroot/ROOT/default", Mountpoint: "/"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"mount", "-t", "zfs", "zroot/ROOT/default", root}}, rec.calls)
}

func TestUnmount(t *testing.T) {
	rec := &callRecorder{}
	m := zfs.NewManager(rec.run)

	err := m.Unmount(context.Background(), "/mnt", zfs.Mount{Dataset: "zroot/var", Mountpoint: "/var"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"umount", "/mnt/var"}}, rec.calls)
}

func TestUnmountFailure(t *testing.T) {
	rec := &callRecorder{failAt: 1}
	m := zfs.NewManager(rec.run)

	err := m.Unmount(context.Background(), "/mnt", zfs.Mount{Dataset: "zroot/var", Mountpoint: "/var"})
	require.Error(t, err)
	assert.True(t, errdefs.IsOperation(err))
}
