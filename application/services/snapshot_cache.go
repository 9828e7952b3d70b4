package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/observability"
)

// DefaultSnapshotTTL is the staleness horizon after which a cached snapshot
// is reported as stale. Entries are never evicted on expiry; staleness only
// affects metrics and logging, since every read already schedules a refresh.
const DefaultSnapshotTTL = 5 * time.Minute

// BuildFunc produces a fresh snapshot for a cache key.
type BuildFunc func(ctx context.Context) (*aggregates.Graph, error)

type snapshotEntry struct {
	snapshot *aggregates.Graph
	builtAt  time.Time
}

// SnapshotCache serves graph snapshots with a refresh-ahead policy: a miss
// builds synchronously, a hit returns the cached snapshot immediately and
// schedules a background rebuild regardless of age. Repeat readers
// therefore see data at most one build cycle old without ever waiting for
// a rebuild.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[valueobjects.Identity]snapshotEntry
	pending map[valueobjects.Identity]struct{}
	ttl     time.Duration

	tasks chan refreshTask
	done  chan struct{}
	wg    sync.WaitGroup

	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics
}

type refreshTask struct {
	id    string
	key   valueobjects.Identity
	build BuildFunc
}

// NewSnapshotCache creates a cache and starts its refresh workers. workers
// bounds concurrent background rebuilds; queueSize bounds the backlog, and
// refreshes beyond it are dropped (the next read re-schedules).
func NewSnapshotCache(ttl time.Duration, workers, queueSize int, logger *zap.Logger, metrics *observability.Metrics) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}

	c := &SnapshotCache{
		entries: make(map[valueobjects.Identity]snapshotEntry),
		pending: make(map[valueobjects.Identity]struct{}),
		ttl:     ttl,
		tasks:   make(chan refreshTask, queueSize),
		done:    make(chan struct{}),
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}

	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}

	return c
}

// Get returns the snapshot for key. On a miss the build runs synchronously
// on the caller's context and the result is stored before returning. On a
// hit the cached snapshot is returned at once and a background refresh is
// scheduled, whether or not the entry has aged past the TTL.
func (c *SnapshotCache) Get(ctx context.Context, key valueobjects.Identity, build BuildFunc) (*aggregates.Graph, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.metrics.CacheLookups.WithLabelValues(observability.CacheOutcomeMiss).Inc()
		snapshot, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, snapshot)
		return snapshot, nil
	}

	outcome := observability.CacheOutcomeFresh
	if c.now().Sub(entry.builtAt) >= c.TTL() {
		outcome = observability.CacheOutcomeStale
	}
	c.metrics.CacheLookups.WithLabelValues(outcome).Inc()

	c.scheduleRefresh(key, build)
	return entry.snapshot, nil
}

// Len reports the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the current staleness horizon.
func (c *SnapshotCache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

// SetTTL updates the staleness horizon. Used by configuration hot reload.
func (c *SnapshotCache) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// Close stops the refresh workers. Queued refreshes that have not started
// are abandoned.
func (c *SnapshotCache) Close() {
	close(c.done)
	c.wg.Wait()
}

func (c *SnapshotCache) store(key valueobjects.Identity, snapshot *aggregates.Graph) {
	c.mu.Lock()
	c.entries[key] = snapshotEntry{snapshot: snapshot, builtAt: c.now()}
	c.mu.Unlock()
}

// scheduleRefresh enqueues a background rebuild for key unless one is
// already pending. A full queue drops the refresh; the entry stays served
// as-is and the next read tries again.
func (c *SnapshotCache) scheduleRefresh(key valueobjects.Identity, build BuildFunc) {
	c.mu.Lock()
	if _, inFlight := c.pending[key]; inFlight {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	task := refreshTask{id: uuid.NewString(), key: key, build: build}

	select {
	case c.tasks <- task:
		c.metrics.RefreshesQueued.Inc()
		c.logger.Debug("scheduled snapshot refresh",
			zap.String("task_id", task.id),
			zap.String("key", key.String()),
		)
	default:
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		c.logger.Warn("refresh queue full, dropping refresh",
			zap.String("key", key.String()),
		)
	}
}

func (c *SnapshotCache) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case task := <-c.tasks:
			c.runRefresh(task)
		}
	}
}

func (c *SnapshotCache) runRefresh(task refreshTask) {
	// Refreshes are detached from the request that triggered them; the
	// requester already has its response.
	snapshot, err := task.build(context.Background())

	c.mu.Lock()
	delete(c.pending, task.key)
	c.mu.Unlock()

	if err != nil {
		c.metrics.RefreshFailures.Inc()
		c.logger.Warn("snapshot refresh failed, keeping previous snapshot",
			zap.String("task_id", task.id),
			zap.String("key", task.key.String()),
			zap.Error(err),
		)
		return
	}

	c.store(task.key, snapshot)
	c.metrics.RefreshesCompleted.Inc()
	c.logger.Debug("snapshot refreshed",
		zap.String("task_id", task.id),
		zap.String("key", task.key.String()),
	)
}
