package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
	"github.com/bsdkit/zfsinstall/pkg/install"
)

// ConfigFiles writes the boot configuration of the new system: the
// filesystem table, the loader knobs that find the root dataset, and the rc
// switch that mounts the rest of the tree.
type ConfigFiles struct{}

// WriteConfig implements install.ConfigWriter.
func (ConfigFiles) WriteConfig(_ context.Context, root string, cfg install.BootConfig) error {
	if err := writeFstab(root, cfg); err != nil {
		return err
	}

	loader := []string{
		`zfs_load="YES"`,
		fmt.Sprintf(`vfs.root.mountfrom="zfs:%s"`, cfg.RootDataset),
	}
	if err := appendLines(filepath.Join(root, "boot/loader.conf"), loader); err != nil {
		return err
	}

	return appendLines(filepath.Join(root, "etc/rc.conf"), []string{`zfs_enable="YES"`})
}

// writeFstab writes etc/fstab fresh. rc expects the file to exist even when
// nothing needs mounting, so it is always written; entries only appear for
// what ZFS does not mount on its own, swap and the legacy-mode datasets.
func writeFstab(root string, cfg install.BootConfig) error {
	var b strings.Builder
	b.WriteString("# Device\tMountpoint\tFStype\tOptions\tDump\tPass#\n")

	for _, mnt := range cfg.LegacyMounts {
		fmt.Fprintf(&b, "%s\t%s\tzfs\trw\t0\t0\n", mnt.Dataset, mnt.Mountpoint)
	}
	if cfg.SwapLabel != "" {
		fmt.Fprintf(&b, "/dev/%s\tnone\tswap\tsw\t0\t0\n", cfg.SwapLabel)
	}

	path := filepath.Join(root, "etc/fstab")
	logrus.Debugf("writing %s", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdefs.OperationError{Op: "write " + path, Inner: err}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errdefs.OperationError{Op: "write " + path, Inner: err}
	}
	return nil
}

// appendLines appends lines to a config file, creating it and its directory
// when the unpacked sets did not ship it.
func appendLines(path string, lines []string) error {
	logrus.Debugf("appending to %s", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdefs.OperationError{Op: "write " + path, Inner: err}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errdefs.OperationError{Op: "write " + path, Inner: err}
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return errdefs.OperationError{Op: "write " + path, Inner: err}
		}
	}
	return f.Close()
}
