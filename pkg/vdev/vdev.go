// Package vdev turns the ordered device and redundancy arguments of an
// installer run into the top-level vdev groups of the pool to create.
//
// Arguments are a stream: device adds accumulate into an open group, and a
// redundancy marker closes the accumulated devices into one group. The first
// marker locks the redundancy mode for the whole run, mirroring how the pool
// itself treats mixed top-level vdevs.
package vdev

import (
	"github.com/sirupsen/logrus"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// Mode is the redundancy mode of one top-level vdev group.
type Mode string

const (
	ModeStripe Mode = "stripe"
	ModeMirror Mode = "mirror"
	ModeRaidz1 Mode = "raidz1"
	ModeRaidz2 Mode = "raidz2"
	ModeRaidz3 Mode = "raidz3"
)

// ParseMode converts a mode name given on the command line.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStripe, ModeMirror, ModeRaidz1, ModeRaidz2, ModeRaidz3:
		return Mode(s), nil
	default:
		return "", errdefs.Configf("unknown redundancy mode %q (want stripe, mirror, raidz1, raidz2 or raidz3)", s)
	}
}

// MinDevices returns the smallest member count a group of this mode can
// hold. A stripe has no redundancy and only needs to be non-empty.
func (m Mode) MinDevices() int {
	switch m {
	case ModeMirror:
		return 2
	case ModeRaidz1:
		return 3
	case ModeRaidz2:
		return 4
	case ModeRaidz3:
		return 5
	default:
		return 1
	}
}

// Group is one closed top-level vdev: a redundancy mode plus its member
// devices in the order they were given.
type Group struct {
	Mode    Mode
	Devices []string
}

// Devices flattens groups into the full device list, preserving argument
// order. The partitioner visits devices in exactly this order.
func Devices(groups []Group) []string {
	var all []string
	for _, g := range groups {
		all = append(all, g.Devices...)
	}
	return all
}

// Builder accumulates devices and redundancy markers in command-line order.
type Builder struct {
	groups  []Group
	pending []string
	mode    Mode
	seen    map[string]bool
}

func NewBuilder() *Builder {
	return &Builder{seen: map[string]bool{}}
}

// AddDevice appends a device to the currently open group. Device names must
// be unique across the whole run, groups included.
func (b *Builder) AddDevice(name string) error {
	if name == "" {
		return errdefs.Configf("empty device name")
	}
	if b.seen[name] {
		return errdefs.Configf("device %s given more than once", name)
	}
	b.seen[name] = true
	b.pending = append(b.pending, name)
	return nil
}

// CloseGroup closes the devices accumulated since the previous marker into
// one group of the given mode.
func (b *Builder) CloseGroup(mode Mode) error {
	if len(b.pending) == 0 {
		return errdefs.Configf("redundancy mode %s must follow the devices it covers", mode)
	}
	if b.mode != "" && mode != b.mode {
		return errdefs.Configf("cannot mix %s and %s groups in one pool", b.mode, mode)
	}
	if len(b.pending) < mode.MinDevices() {
		return errdefs.Configf("%s requires at least %d devices, got %d", mode, mode.MinDevices(), len(b.pending))
	}
	b.mode = mode
	b.groups = append(b.groups, Group{Mode: mode, Devices: b.pending})
	b.pending = nil
	return nil
}

// Finish validates the stream and returns the final group list. Devices
// left after the last marker form an implicit stripe group; when no marker
// was given at all, the whole run collapses into a single stripe.
func (b *Builder) Finish() ([]Group, error) {
	if len(b.pending) > 0 {
		if b.mode != "" && b.mode != ModeStripe {
			return nil, errdefs.Configf("%d device(s) after the last %s group are missing a redundancy mode", len(b.pending), b.mode)
		}
		if b.mode == "" {
			logrus.Infof("no redundancy mode requested, creating a striped pool across %d device(s)", len(b.pending))
		}
		b.groups = append(b.groups, Group{Mode: ModeStripe, Devices: b.pending})
		b.pending = nil
	}
	if len(b.groups) == 0 {
		return nil, errdefs.Configf("no devices given")
	}
	return b.groups, nil
}
