// Package zfs creates the fixed dataset tree of a new installation and
// mounts it where legacy mountpoints are requested.
//
// The tree itself is compiled in: its shape is part of what this installer
// promises, only per-run knobs (pool name, legacy mode) vary.
package zfs

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/bsdkit/zfsinstall/internal/common"
)

//go:embed layout.yaml
var layoutYAML []byte

// DatasetDef is one node of the compiled-in dataset tree.
type DatasetDef struct {
	Path       string            `yaml:"path"`
	Mountpoint string            `yaml:"mountpoint"`
	Properties map[string]string `yaml:"properties"`
}

type layoutFile struct {
	Datasets []DatasetDef `yaml:"datasets"`
}

var layout = common.Must(parseLayout(layoutYAML))

func parseLayout(data []byte) ([]DatasetDef, error) {
	var f layoutFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("cannot parse dataset layout: %w", err)
	}

	seen := map[string]bool{}
	for _, def := range f.Datasets {
		if def.Path == "" || strings.HasPrefix(def.Path, "/") {
			return nil, fmt.Errorf("dataset layout: bad path %q", def.Path)
		}
		if seen[def.Path] {
			return nil, fmt.Errorf("dataset layout: duplicate path %q", def.Path)
		}
		if parent := path.Dir(def.Path); parent != "." && !seen[parent] {
			return nil, fmt.Errorf("dataset layout: %q listed before its parent", def.Path)
		}
		seen[def.Path] = true
	}
	return f.Datasets, nil
}

// Layout returns the fixed dataset tree in creation order.
func Layout() []DatasetDef {
	return layout
}

// RootDataset returns the dataset the installed system boots from.
func RootDataset(pool string) string {
	return pool + "/ROOT/default"
}

// BootContainer returns the dataset boot environments live under.
func BootContainer(pool string) string {
	return pool + "/ROOT"
}

// Mount pairs a dataset with its runtime mountpoint.
type Mount struct {
	Dataset    string
	Mountpoint string
}

// LegacyMounts lists the dataset/mountpoint pairs of the tree for legacy
// mode, root first, parents before children. Nodes without an explicit
// mountpoint get the one they would inherit.
func LegacyMounts(pool string) []Mount {
	mountpoints := map[string]string{}
	var mounts []Mount
	for _, def := range layout {
		mp := def.Mountpoint
		if mp == "" {
			parent := mountpoints[path.Dir(def.Path)]
			if parent == "" || parent == "none" {
				continue
			}
			mp = path.Join(parent, path.Base(def.Path))
		}
		mountpoints[def.Path] = mp
		if mp == "none" {
			continue
		}
		mounts = append(mounts, Mount{Dataset: pool + "/" + def.Path, Mountpoint: mp})
	}
	return mounts
}
