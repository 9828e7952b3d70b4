// Package valueobjects contains immutable domain value objects.
package valueobjects

import (
	"fmt"
	"strings"
)

// Identity is the stable unique key for an actor in the source network.
// It is a decentralized identifier such as "did:plc:abc123".
type Identity string

// NewIdentity validates and creates an Identity from a raw string.
func NewIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("identity is required")
	}
	if !strings.HasPrefix(raw, "did:") {
		return "", fmt.Errorf("identity %q is not a DID", raw)
	}
	return Identity(raw), nil
}

// String returns the raw DID.
func (i Identity) String() string {
	return string(i)
}

// IsEmpty reports whether the identity is unset.
func (i Identity) IsEmpty() bool {
	return i == ""
}

// Handle is a human-readable account name such as "alice.bsky.social".
type Handle string

// NewHandle normalizes and validates a raw handle. A leading '@' is
// stripped and the handle is lowercased.
func NewHandle(raw string) (Handle, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "@")
	raw = strings.ToLower(raw)
	if raw == "" {
		return "", fmt.Errorf("handle is required")
	}
	if strings.ContainsAny(raw, " \t/") {
		return "", fmt.Errorf("handle %q contains invalid characters", raw)
	}
	return Handle(raw), nil
}

// String returns the normalized handle.
func (h Handle) String() string {
	return string(h)
}
