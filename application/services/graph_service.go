package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/application/ports"
	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	domainservices "github.com/suibari/graph-be-more-blue/domain/services"
)

// GraphService orchestrates the public graph operations: full builds for a
// handle, expansions around a known identity, and expansion merges. Every
// operation first ensures a live upstream session, then goes through the
// snapshot caches. Full builds and expansions use separate caches because
// their snapshots differ in shape (an expansion never carries the full
// introduction lists a full build does).
type GraphService struct {
	session        ports.SessionManager
	resolver       ports.HandleResolver
	builder        *GraphBuilder
	fullCache      *SnapshotCache
	expansionCache *SnapshotCache
	merger         *domainservices.Merger
	logger         *zap.Logger
}

// NewGraphService creates the orchestration service.
func NewGraphService(
	session ports.SessionManager,
	resolver ports.HandleResolver,
	builder *GraphBuilder,
	fullCache *SnapshotCache,
	expansionCache *SnapshotCache,
	logger *zap.Logger,
) *GraphService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphService{
		session:        session,
		resolver:       resolver,
		builder:        builder,
		fullCache:      fullCache,
		expansionCache: expansionCache,
		merger:         domainservices.NewMerger(),
		logger:         logger,
	}
}

// GraphForHandle resolves handle to an identity and returns the full graph
// centered on it, from cache when available.
func (s *GraphService) GraphForHandle(ctx context.Context, handle valueobjects.Handle) (*aggregates.Graph, valueobjects.Identity, error) {
	if err := s.session.EnsureSession(ctx); err != nil {
		return nil, "", err
	}

	center, err := s.resolver.ResolveHandle(ctx, handle)
	if err != nil {
		return nil, "", err
	}

	graph, err := s.fullCache.Get(ctx, center, s.buildFull(center))
	if err != nil {
		return nil, "", err
	}
	return graph, center, nil
}

// Expand returns the incremental subgraph around seed, from cache when
// available.
func (s *GraphService) Expand(ctx context.Context, seed valueobjects.Identity) (*aggregates.Graph, error) {
	if err := s.session.EnsureSession(ctx); err != nil {
		return nil, err
	}

	return s.expansionCache.Get(ctx, seed, s.buildExpansion(seed))
}

// buildFull wraps a full build so every invocation, including background
// refreshes that run long after the triggering request, holds a live
// session of its own.
func (s *GraphService) buildFull(center valueobjects.Identity) func(context.Context) (*aggregates.Graph, error) {
	return func(ctx context.Context) (*aggregates.Graph, error) {
		if err := s.session.EnsureSession(ctx); err != nil {
			return nil, err
		}
		return s.builder.Build(ctx, center)
	}
}

func (s *GraphService) buildExpansion(seed valueobjects.Identity) func(context.Context) (*aggregates.Graph, error) {
	return func(ctx context.Context) (*aggregates.Graph, error) {
		if err := s.session.EnsureSession(ctx); err != nil {
			return nil, err
		}
		return s.builder.BuildExpansion(ctx, seed)
	}
}

// ExpandAndMerge builds the expansion around seed and folds it into the
// caller-supplied graph. When the expansion adds nothing, the result
// carries Changed=false and a notice instead of a graph.
func (s *GraphService) ExpandAndMerge(ctx context.Context, existing *aggregates.Graph, seed valueobjects.Identity) (domainservices.MergeResult, error) {
	incoming, err := s.Expand(ctx, seed)
	if err != nil {
		return domainservices.MergeResult{}, err
	}
	return s.merger.Merge(existing, incoming, seed), nil
}
