package gpt

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bsdkit/zfsinstall/pkg/errdefs"
)

// The functions below parse gpart's text output. The formats are stable
// across the gpart versions we support and are pinned by tests; any change
// upstream must show up there first.

// parseAdded extracts the provider name from gpart add output of the form
// "da0p2 added".
func parseAdded(out, device string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) >= 2 && fields[1] == "added" && strings.HasPrefix(fields[0], device+"p") {
		return fields[0], nil
	}
	return "", errdefs.OperationError{
		Op:     "gpart add",
		Output: strings.TrimSpace(out),
		Inner:  fmt.Errorf("unexpected gpart add output"),
	}
}

// provider is one entry of the Providers section of gpart list output.
type provider struct {
	Name    string
	RawUUID string
	Type    string
	Index   int
	Start   uint64
	End     uint64
}

// gptid returns the stable label for the provider, validating that gpart
// reported a usable GUID.
func (pr provider) gptid() (string, error) {
	if _, err := uuid.Parse(pr.RawUUID); err != nil {
		return "", errdefs.OperationError{
			Op:    "gpart list",
			Inner: fmt.Errorf("partition %s has no usable rawuuid %q: %w", pr.Name, pr.RawUUID, err),
		}
	}
	return "gptid/" + pr.RawUUID, nil
}

// parseProviders reads the Providers section of gpart list output. Entries
// start with "N. Name: daXpY"; the indented "key: value" lines that follow
// belong to that entry. The Consumers section ends the providers.
func parseProviders(out string) ([]provider, error) {
	var providers []provider
	var current *provider
	inProviders := false

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch trimmed {
		case "Providers:":
			inProviders = true
			continue
		case "Consumers:":
			inProviders = false
			continue
		}
		if !inProviders || trimmed == "" {
			continue
		}

		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		if name, ok := strings.CutSuffix(key, ". Name"); ok && !strings.Contains(name, " ") {
			if current != nil {
				providers = append(providers, *current)
			}
			current = &provider{Name: value}
			continue
		}
		if current == nil {
			continue
		}

		var err error
		switch key {
		case "rawuuid":
			current.RawUUID = value
		case "type":
			current.Type = value
		case "index":
			current.Index, err = strconv.Atoi(value)
		case "start":
			current.Start, err = strconv.ParseUint(value, 10, 64)
		case "end":
			current.End, err = strconv.ParseUint(value, 10, 64)
		}
		if err != nil {
			return nil, errdefs.OperationError{
				Op:    "gpart list",
				Inner: fmt.Errorf("bad %s value %q for %s: %w", key, value, current.Name, err),
			}
		}
	}
	if current != nil {
		providers = append(providers, *current)
	}
	if err := scanner.Err(); err != nil {
		return nil, errdefs.OperationError{Op: "gpart list", Inner: err}
	}
	return providers, nil
}
