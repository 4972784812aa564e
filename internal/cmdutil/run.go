// Package cmdutil runs the external platform tools the installer drives
// (gpart, dd, sysctl, zpool, zfs, bectl, ...) and normalizes their failures.
package cmdutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Run executes an external command and returns its standard output. On
// failure the error includes the full command line and the trimmed stderr,
// which callers surface to the operator verbatim.
func Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.Debugf("running %s", cmd.String())
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("running %s failed: %w, stderr: %s",
			cmd.String(), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
