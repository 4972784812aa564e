// Package bootstrap holds the collaborators that turn an empty pool into a
// bootable system: fetching and unpacking distribution sets, writing the
// boot configuration, and managing boot environments. The installer drives
// them through interfaces; everything here is the default implementation
// backed by the real system tools.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetcher makes distribution set archives available on the local
// filesystem, downloading them when the source is a URL.
type Fetcher struct {
	doer Doer
}

// NewFetcher returns a fetcher downloading through the given doer. Passing
// nil selects a retrying client, distribution mirrors drop connections often
// enough that plain http.Client is not good enough for multi-hundred-MB
// archives.
func NewFetcher(doer Doer) *Fetcher {
	if doer == nil {
		retry := retryablehttp.NewClient()
		retry.RetryMax = 4
		retry.Logger = nil
		doer = retry.StandardClient()
	}

	return &Fetcher{
		doer: doer,
	}
}

// IsURL reports whether the distribution source needs downloading rather
// than a plain directory lookup.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetch resolves the archive called name from source, which is either an
// http(s) URL or a local directory. Local archives are used in place,
// remote ones are downloaded into destDir. The returned path points at the
// archive.
func (f *Fetcher) Fetch(ctx context.Context, source, name, destDir string) (string, error) {
	if !IsURL(source) {
		path := filepath.Join(source, name)
		if _, err := os.Stat(path); err != nil {
			return "", errdefs.OperationError{Op: "locate distribution set", Inner: err}
		}
		return path, nil
	}

	u, err := url.ParseRequestURI(strings.TrimSuffix(source, "/") + "/" + name)
	if err != nil {
		return "", fmt.Errorf("invalid distribution url %s: %w", source, err)
	}

	path := filepath.Join(destDir, name)
	logrus.Infof("fetching %s", u)
	if err := f.download(ctx, u, path); err != nil {
		return "", err
	}
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, u *url.URL, path string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := f.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, u.String())
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("downloading %s: %w", u.String(), err)
	}
	return out.Close()
}
