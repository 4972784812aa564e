// Package datasizes provides constants and helpers for converting between
// human data size notations ("2 GiB", "512 MB") and byte counts.
package datasizes

const (
	KiloByte = 1000
	KibiByte = 1024
	MegaByte = 1000 * 1000
	MebiByte = 1024 * 1024
	GigaByte = 1000 * 1000 * 1000
	GibiByte = 1024 * 1024 * 1024
	TeraByte = 1000 * 1000 * 1000 * 1000
	TebiByte = 1024 * 1024 * 1024 * 1024

	// shorthands
	kB  = KiloByte
	KiB = KibiByte
	MB  = MegaByte
	MiB = MebiByte
	GB  = GigaByte
	GiB = GibiByte
	TB  = TeraByte
	TiB = TebiByte
)
