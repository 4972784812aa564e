package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// manifestName is the checksum file published alongside release
// distribution sets.
const manifestName = "MANIFEST"

// Manifest maps distribution set names to their sha256 digests. Release
// MANIFEST files carry one tab-separated line per set: name, digest, file
// count, label, description, default flag; only the first two matter here.
type Manifest map[string]string

// ParseManifest reads a MANIFEST file. A file that is present but does not
// parse is an error; verification is only skipped when there is no manifest
// at all.
func ParseManifest(data []byte) (Manifest, error) {
	m := Manifest{}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed MANIFEST line: %s", line)
		}
		name, digest := fields[0], fields[1]
		if raw, err := hex.DecodeString(digest); err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("MANIFEST digest for %s is not a sha256 sum: %s", name, digest)
		}
		m[name] = strings.ToLower(digest)
	}
	return m, nil
}

// Verify checks the archive at path against the manifest entry for name. A
// nil manifest verifies nothing; a loaded manifest must know every set it is
// asked about.
func (m Manifest) Verify(name, path string) error {
	if m == nil {
		return nil
	}
	want, ok := m[name]
	if !ok {
		return errdefs.OperationError{
			Op:    "verify " + name,
			Inner: fmt.Errorf("MANIFEST has no entry for %s", name),
		}
	}

	got, err := sha256sum(path)
	if err != nil {
		return errdefs.OperationError{Op: "verify " + name, Inner: err}
	}
	if got != want {
		return errdefs.OperationError{
			Op:    "verify " + name,
			Inner: fmt.Errorf("checksum mismatch: got %s, MANIFEST says %s", got, want),
		}
	}
	return nil
}

// sha256sum returns the hex digest of the file, matching the sha256sum
// util.
func sha256sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
