package common

import (
	"strings"

	"github.com/hashicorp/go-version"
)

// VersionLessThan reports whether the version in a is semantically older
// than the one in b. Vendor suffixes after the first dash are ignored, so
// "2.1.4-FreeBSD_g52bad4f23" compares as "2.1.4". Missing components count
// as zero, so "2" < "2.1".
func VersionLessThan(a, b string) (bool, error) {
	aV, err := version.NewVersion(trimVendorSuffix(a))
	if err != nil {
		return false, err
	}
	bV, err := version.NewVersion(trimVendorSuffix(b))
	if err != nil {
		return false, err
	}
	return aV.LessThan(bV), nil
}

func trimVendorSuffix(v string) string {
	if idx := strings.IndexByte(v, '-'); idx >= 0 {
		return v[:idx]
	}
	return v
}
