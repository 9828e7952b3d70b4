// Package services contains pure domain services operating on the graph
// model: rank scoring and snapshot merging.
package services

import "math"

// Rank scoring constants. The raw score is a log-scaled follower/following
// ratio mapped onto a bounded display range.
const (
	RankCoef    = 30.0
	RankBias    = 50.0
	RankLowest  = 20.0
	RankHighest = 60.0
)

// Rank scores an identity from its follower and following counts. The
// result is clamped into [RankLowest, RankHighest] and is monotonic in the
// followers/following ratio.
//
// followingCount must be positive: callers substitute 1 when the fetched
// count is zero (see Profile.EffectiveFollowing). The division-by-zero
// guard is a caller obligation, not handled here.
func Rank(followersCount, followingCount int) float64 {
	ratio := float64(followersCount) / float64(followingCount)
	rank := math.Log10(ratio*1000)*RankCoef - RankBias

	if rank > RankHighest {
		return RankHighest
	}
	if rank < RankLowest {
		return RankLowest
	}
	return rank
}
