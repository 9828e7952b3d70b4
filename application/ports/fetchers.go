// Package ports defines the interfaces the application layer requires from
// infrastructure collaborators.
package ports

import (
	"context"

	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

// RecordFetcher retrieves all introduction records authored by one
// repository identity.
//
// Implementations degrade to an empty slice on any failure: one identity's
// transient failure must not abort a multi-identity fan-out. Callers must
// treat an empty result as "no data or failure", never as "provably no
// records".
type RecordFetcher interface {
	ListIntroductions(ctx context.Context, repo valueobjects.Identity) []entities.IntroductionRecord
}

// ProfileFetcher retrieves profile summaries for many identities in batch.
// Unlike RecordFetcher, failures propagate to the caller.
type ProfileFetcher interface {
	FetchAllProfiles(ctx context.Context, ids []valueobjects.Identity) ([]entities.Profile, error)
}

// HandleResolver resolves a human-readable handle to an identity.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle valueobjects.Handle) (valueobjects.Identity, error)
}

// SessionManager guarantees a valid remote-API session exists. It is
// idempotent and must be invoked before every fetch operation that
// requires authentication.
type SessionManager interface {
	EnsureSession(ctx context.Context) error
}

// ImageFetcher converts an avatar reference URL into an inline-encoded
// representation. The conversion is best-effort: any failure yields the
// empty string and never fails the enclosing build.
type ImageFetcher interface {
	FetchAsDataURI(ctx context.Context, url string) string
}
