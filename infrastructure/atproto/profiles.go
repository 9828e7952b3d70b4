package atproto

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
	"github.com/suibari/graph-be-more-blue/pkg/observability"
)

// ProfileFetcher retrieves profile summaries in upstream-sized chunks.
// Unlike record listing, a failed chunk aborts the whole fetch: a graph
// with silently missing profiles would render nodes without names or
// ranks, which is worse than an explicit failure.
type ProfileFetcher struct {
	client  *Client
	session *Session
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewProfileFetcher creates a profile fetcher.
func NewProfileFetcher(client *Client, session *Session, logger *zap.Logger, metrics *observability.Metrics) *ProfileFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &ProfileFetcher{client: client, session: session, logger: logger, metrics: metrics}
}

// FetchAllProfiles fetches profiles for all ids, chunked to the upstream
// batch maximum, preserving upstream response order within each chunk.
func (f *ProfileFetcher) FetchAllProfiles(ctx context.Context, ids []valueobjects.Identity) ([]entities.Profile, error) {
	profiles := make([]entities.Profile, 0, len(ids))

	for start := 0; start < len(ids); start += profileChunkSize {
		end := start + profileChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		actors := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			actors = append(actors, id.String())
		}

		f.metrics.ProfileBatches.Inc()
		views, err := f.client.GetProfiles(ctx, f.session.AccessToken(), actors)
		if err != nil {
			return nil, errors.NewExternalError("getProfiles", err)
		}

		for _, view := range views {
			profile, ok := toProfile(view)
			if !ok {
				f.logger.Debug("skipping profile with invalid identity", zap.String("did", view.DID))
				continue
			}
			profiles = append(profiles, profile)
		}
	}

	return profiles, nil
}

func toProfile(view profileView) (entities.Profile, bool) {
	id, err := valueobjects.NewIdentity(view.DID)
	if err != nil {
		return entities.Profile{}, false
	}
	return entities.Profile{
		Identity:       id,
		Handle:         valueobjects.Handle(view.Handle),
		DisplayName:    view.DisplayName,
		AvatarURL:      view.Avatar,
		FollowersCount: view.FollowersCount,
		FollowingCount: view.FollowsCount,
	}, true
}

// Resolver resolves handles to identities through the upstream identity
// endpoint.
type Resolver struct {
	client  *Client
	session *Session
}

// NewResolver creates a handle resolver.
func NewResolver(client *Client, session *Session) *Resolver {
	return &Resolver{client: client, session: session}
}

// ResolveHandle resolves handle to its identity. An upstream rejection for
// an unknown handle maps to a not-found error so the HTTP layer can answer
// 404 instead of 502.
func (r *Resolver) ResolveHandle(ctx context.Context, handle valueobjects.Handle) (valueobjects.Identity, error) {
	did, err := r.client.ResolveHandle(ctx, r.session.AccessToken(), handle.String())
	if err != nil {
		var xe *XRPCError
		if asXRPCError(err, &xe) && xe.StatusCode == 400 {
			return "", errors.NewNotFoundError(fmt.Sprintf("account %q", handle))
		}
		return "", errors.NewExternalError("resolveHandle", err)
	}

	id, err := valueobjects.NewIdentity(did)
	if err != nil {
		return "", errors.NewExternalError("resolveHandle", err)
	}
	return id, nil
}
