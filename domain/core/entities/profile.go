package entities

import "github.com/suibari/graph-be-more-blue/domain/core/valueobjects"

// Profile is the display summary of one identity, fetched in bulk from the
// remote network. It is ephemeral: fetched fresh for every build and never
// stored beyond the snapshot derived from it.
type Profile struct {
	Identity       valueobjects.Identity
	Handle         valueobjects.Handle
	DisplayName    string
	AvatarURL      string
	FollowersCount int
	FollowingCount int
}

// Name returns the display name, falling back to the handle when the
// profile has no display name set.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Handle.String()
}

// EffectiveFollowing returns the following count with zero substituted by
// one, satisfying the rank calculator's positive-divisor contract.
func (p Profile) EffectiveFollowing() int {
	if p.FollowingCount <= 0 {
		return 1
	}
	return p.FollowingCount
}
