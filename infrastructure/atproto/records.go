package atproto

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/observability"
)

// PDSLocator resolves the personal data server base URL hosting a
// repository's records.
type PDSLocator interface {
	PDSEndpoint(ctx context.Context, id valueobjects.Identity) (string, error)
}

// RecordFetcher lists introduction records from each repository's own
// personal data server, following cursor pagination to exhaustion.
//
// Failures degrade to an empty result instead of propagating: one broken
// or unreachable repository must not abort a whole graph build. A circuit
// breaker stops hammering the network when failures cluster.
type RecordFetcher struct {
	client  *Client
	session *Session
	locator PDSLocator
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRecordFetcher creates a record fetcher.
func NewRecordFetcher(client *Client, session *Session, locator PDSLocator, logger *zap.Logger, metrics *observability.Metrics) *RecordFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	f := &RecordFetcher{
		client:  client,
		session: session,
		locator: locator,
		logger:  logger,
		metrics: metrics,
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "record-listing",
		Interval: 30 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return f
}

// ListIntroductions returns every introduction record authored by repo, or
// an empty slice on any failure.
func (f *RecordFetcher) ListIntroductions(ctx context.Context, repo valueobjects.Identity) []entities.IntroductionRecord {
	result, err := f.breaker.Execute(func() (any, error) {
		return f.fetchAll(ctx, repo)
	})
	if err != nil {
		f.metrics.RecordFetchFailures.Inc()
		f.logger.Warn("record listing degraded to empty",
			zap.String("repo", repo.String()),
			zap.Error(err),
		)
		return nil
	}
	return result.([]entities.IntroductionRecord)
}

func (f *RecordFetcher) fetchAll(ctx context.Context, repo valueobjects.Identity) ([]entities.IntroductionRecord, error) {
	host, err := f.locator.PDSEndpoint(ctx, repo)
	if err != nil {
		return nil, err
	}

	var records []entities.IntroductionRecord
	cursor := ""
	for {
		page, err := f.client.ListRecordsPage(ctx, host, f.session.AccessToken(), repo.String(), CollectionIntroduction, cursor)
		if err != nil {
			return nil, err
		}
		f.metrics.RecordPages.Inc()

		for _, envelope := range page.Records {
			record, ok := toIntroductionRecord(envelope)
			if !ok {
				f.logger.Debug("skipping malformed record", zap.String("uri", envelope.URI))
				continue
			}
			records = append(records, record)
		}

		if page.Cursor == "" || len(page.Records) == 0 {
			return records, nil
		}
		cursor = page.Cursor
	}
}

// toIntroductionRecord maps one wire envelope onto the domain entity. The
// author is taken from the record URI, not from the repo argument, so
// expansion merges can attribute edges correctly.
func toIntroductionRecord(envelope recordEnvelope) (entities.IntroductionRecord, bool) {
	author, err := entities.AuthorFromRecordURI(envelope.URI)
	if err != nil {
		return entities.IntroductionRecord{}, false
	}
	subject, err := valueobjects.NewIdentity(envelope.Value.Subject)
	if err != nil {
		return entities.IntroductionRecord{}, false
	}

	return entities.IntroductionRecord{
		Author:    author,
		Subject:   subject,
		Body:      envelope.Value.Text,
		Language:  envelope.Value.Lang,
		Tags:      envelope.Value.Tags,
		CreatedAt: parseTime(envelope.Value.CreatedAt),
		UpdatedAt: parseTime(envelope.Value.UpdatedAt),
	}, true
}

// parseTime parses an upstream timestamp, zero on failure. Timestamps are
// display data here, never control flow.
func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
