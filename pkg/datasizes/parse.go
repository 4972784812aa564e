package datasizes

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts a data size string into the number of bytes it denotes.
// Sizes are a plain number of bytes or a number followed by a unit, with
// optional whitespace in between. Decimal units (kB, MB, GB, TB) and binary
// units (KiB, MiB, GiB, TiB) are supported; anything else is rejected.
func Parse(size string) (uint64, error) {
	size = strings.TrimSpace(size)

	digits := 0
	for digits < len(size) && size[digits] >= '0' && size[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("no number in data size string: %s", size)
	}

	num, err := strconv.ParseUint(size[:digits], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse number in data size string %q: %w", size, err)
	}

	switch strings.TrimSpace(size[digits:]) {
	case "":
		return num, nil
	case "kB":
		return num * kB, nil
	case "KiB":
		return num * KiB, nil
	case "MB":
		return num * MB, nil
	case "MiB":
		return num * MiB, nil
	case "GB":
		return num * GB, nil
	case "GiB":
		return num * GiB, nil
	case "TB":
		return num * TB, nil
	case "TiB":
		return num * TiB, nil
	default:
		return 0, fmt.Errorf("unknown data size units in string: %s", size)
	}
}
