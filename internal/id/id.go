// Package id mints the opaque identifiers handed out by the daemon.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

// Prefixes for identifiers minted by the daemon.
const (
	PrefixClient  = "sse"
	PrefixSurface = "srf"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "srf-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// Sortable returns a ULID string. Lexical order follows creation time,
// which is what the audit log relies on.
func Sortable() string {
	return ulid.Make().String()
}
