// Package services contains the application services that drive graph
// acquisition: snapshot building, caching, and request orchestration.
package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suibari/graph-be-more-blue/application/ports"
	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	domainservices "github.com/suibari/graph-be-more-blue/domain/services"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
	"github.com/suibari/graph-be-more-blue/pkg/observability"
)

// GraphBuilder turns fetched records and profiles into a self-consistent
// node/edge snapshot.
type GraphBuilder struct {
	records     ports.RecordFetcher
	profiles    ports.ProfileFetcher
	images      ports.ImageFetcher
	fanOutLimit int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewGraphBuilder creates a graph builder. fanOutLimit bounds the number of
// concurrent per-identity record fetches during the frontier fan-out.
func NewGraphBuilder(
	records ports.RecordFetcher,
	profiles ports.ProfileFetcher,
	images ports.ImageFetcher,
	fanOutLimit int,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *GraphBuilder {
	if fanOutLimit <= 0 {
		fanOutLimit = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &GraphBuilder{
		records:     records,
		profiles:    profiles,
		images:      images,
		fanOutLimit: fanOutLimit,
		logger:      logger,
		metrics:     metrics,
	}
}

// Build constructs the full graph centered at one identity.
//
// The frontier is the center plus every subject it has introduced. Records
// are then fetched for the whole frontier so that introductions about each
// frontier member are known, but only center-authored edges are
// materialized in this path; edges among other frontier members come from
// expansion builds. Record fetch failures silently shrink the graph
// (degrade-to-empty policy of the record fetcher); a profile batch failure
// aborts the build.
func (b *GraphBuilder) Build(ctx context.Context, center valueobjects.Identity) (*aggregates.Graph, error) {
	start := time.Now()
	defer func() {
		b.metrics.BuildDuration.WithLabelValues("full").Observe(time.Since(start).Seconds())
	}()

	centerRecords := b.records.ListIntroductions(ctx, center)
	frontier := frontierSet(center, centerRecords)

	combined := b.fanOutRecords(ctx, frontier)
	bySubject := groupBySubject(combined)

	profiles, err := b.profiles.FetchAllProfiles(ctx, frontier)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch frontier profiles")
	}

	graph := aggregates.NewGraph()
	for _, profile := range profiles {
		graph.AddNode(b.buildNode(ctx, profile, bySubject[profile.Identity]))
	}

	// Edges are only materialized when both endpoints resolved a profile;
	// AddEdge drops pairs with absent endpoints.
	for _, record := range centerRecords {
		graph.AddEdge(center, record.Subject)
	}

	b.logger.Debug("built full graph",
		zap.String("center", center.String()),
		zap.Int("frontier", len(frontier)),
		zap.Int("nodes", graph.NodeCount()),
		zap.Int("edges", graph.EdgeCount()),
	)

	return graph, nil
}

// BuildExpansion constructs the incremental subgraph around one already
// visible node. Only the seed's own records are fetched; edges are emitted
// author→subject with the author derived from each record's origin, and
// every node carries at most the single introduction for which it is the
// subject. This is a deliberately narrower contract than Build: expansion
// supplies incremental detail, not a full picture.
func (b *GraphBuilder) BuildExpansion(ctx context.Context, seed valueobjects.Identity) (*aggregates.Graph, error) {
	start := time.Now()
	defer func() {
		b.metrics.BuildDuration.WithLabelValues("expansion").Observe(time.Since(start).Seconds())
	}()

	records := b.records.ListIntroductions(ctx, seed)
	frontier := frontierSet(seed, records)

	bySubject := groupBySubject(records)

	profiles, err := b.profiles.FetchAllProfiles(ctx, frontier)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch expansion profiles")
	}

	graph := aggregates.NewGraph()
	for _, profile := range profiles {
		intros := bySubject[profile.Identity]
		if len(intros) > 1 {
			intros = intros[:1]
		}
		graph.AddNode(b.buildNode(ctx, profile, intros))
	}

	for _, record := range records {
		graph.AddEdge(record.Author, record.Subject)
	}

	b.logger.Debug("built expansion graph",
		zap.String("seed", seed.String()),
		zap.Int("nodes", graph.NodeCount()),
		zap.Int("edges", graph.EdgeCount()),
	)

	return graph, nil
}

// fanOutRecords fetches every frontier identity's records concurrently and
// flattens the results in frontier order. Individual fetches never error
// (they degrade to empty), so the join always succeeds.
func (b *GraphBuilder) fanOutRecords(ctx context.Context, frontier []valueobjects.Identity) []entities.IntroductionRecord {
	results := make([][]entities.IntroductionRecord, len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.fanOutLimit)
	for i, id := range frontier {
		g.Go(func() error {
			results[i] = b.records.ListIntroductions(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var combined []entities.IntroductionRecord
	for _, records := range results {
		combined = append(combined, records...)
	}
	return combined
}

// buildNode assembles one graph node from a profile and the introductions
// about it. Avatar conversion is best-effort and never fails the build.
func (b *GraphBuilder) buildNode(ctx context.Context, profile entities.Profile, intros []entities.IntroductionRecord) *entities.Node {
	var tags []string
	for _, intro := range intros {
		tags = unionInto(tags, intro.Tags)
	}

	image := ""
	if profile.AvatarURL != "" {
		image = b.images.FetchAsDataURI(ctx, profile.AvatarURL)
	}

	return &entities.Node{
		ID:            profile.Identity,
		Image:         image,
		Name:          profile.Name(),
		Handle:        profile.Handle,
		Rank:          domainservices.Rank(profile.FollowersCount, profile.EffectiveFollowing()),
		Introductions: intros,
		Tags:          tags,
	}
}

// frontierSet returns the seed plus every distinct subject referenced by
// the records, in first-seen order with the seed first.
func frontierSet(seed valueobjects.Identity, records []entities.IntroductionRecord) []valueobjects.Identity {
	frontier := []valueobjects.Identity{seed}
	seen := map[valueobjects.Identity]struct{}{seed: {}}
	for _, record := range records {
		if record.Subject.IsEmpty() {
			continue
		}
		if _, ok := seen[record.Subject]; ok {
			continue
		}
		seen[record.Subject] = struct{}{}
		frontier = append(frontier, record.Subject)
	}
	return frontier
}

// groupBySubject maps each subject identity to the introductions about it,
// preserving record order.
func groupBySubject(records []entities.IntroductionRecord) map[valueobjects.Identity][]entities.IntroductionRecord {
	bySubject := make(map[valueobjects.Identity][]entities.IntroductionRecord)
	for _, record := range records {
		if record.Subject.IsEmpty() {
			continue
		}
		bySubject[record.Subject] = append(bySubject[record.Subject], record)
	}
	return bySubject
}

// unionInto appends the tags not already present, preserving order.
func unionInto(tags []string, more []string) []string {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		seen[t] = struct{}{}
	}
	for _, t := range more {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}
