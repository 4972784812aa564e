package datasizes

import (
	"fmt"
)

// Size is a wrapper around uint64 for TOML config fields, unmarshalling
// from an integer byte count or from a string with units as understood by
// Parse.
type Size uint64

// UnmarshalTOML is a custom TOML unmarshaler for Size.
func (size *Size) UnmarshalTOML(data any) error {
	num, err := decodeSize(data)
	if err != nil {
		return fmt.Errorf("error decoding TOML size: %w", err)
	}
	*size = Size(num)
	return nil
}

// decodeSize converts an integer or a string with data size units into the
// number of bytes it represents.
func decodeSize(v any) (uint64, error) {
	switch num := v.(type) {
	case string:
		return Parse(num)
	case int64:
		if num < 0 {
			return 0, fmt.Errorf("cannot be negative")
		}
		return uint64(num), nil
	case uint64:
		return num, nil
	case float64:
		return 0, fmt.Errorf("cannot be float")
	default:
		return 0, fmt.Errorf("failed to convert value \"%v\" to number", v)
	}
}
