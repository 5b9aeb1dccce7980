package protocol

import (
	"fmt"
	"strings"
)

// Revision identifies the message-shape dialect used for a response.
type Revision string

// Known protocol revisions, oldest first.
const (
	Revision20250326 Revision = "2025-03-26"
	Revision20250618 Revision = "2025-06-18"
)

// Latest is the revision used when the caller does not pin one.
const Latest = Revision20250618

// Revisions lists the supported revisions, oldest first.
func Revisions() []Revision {
	return []Revision{Revision20250326, Revision20250618}
}

// ParseRevision accepts a revision string and its common aliases.
// An empty value selects Latest.
func ParseRevision(raw string) (Revision, error) {
	switch strings.TrimSpace(raw) {
	case "":
		return Latest, nil
	case "2025-03-26", "v2025-03-26", "2025_03_26":
		return Revision20250326, nil
	case "2025-06-18", "v2025-06-18", "2025_06_18", "2025-06", "25.06.18":
		return Revision20250618, nil
	default:
		return "", fmt.Errorf("unsupported protocol revision %q; expected 2025-03-26 or 2025-06-18", raw)
	}
}

// String returns the canonical revision string.
func (r Revision) String() string {
	if r == "" {
		return string(Latest)
	}
	return string(r)
}

// Supports reports whether fields introduced in since are part of r.
func (r Revision) Supports(since Revision) bool {
	return r.String() >= since.String()
}
