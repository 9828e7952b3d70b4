package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

func snapshotWithNode(id string) *aggregates.Graph {
	g := aggregates.NewGraph()
	g.AddNode(&entities.Node{ID: valueobjects.Identity(id)})
	return g
}

func TestSnapshotCache_MissBuildsSynchronously(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	var builds atomic.Int32
	graph, err := cache.Get(context.Background(), "did:plc:a", func(ctx context.Context) (*aggregates.Graph, error) {
		builds.Add(1)
		return snapshotWithNode("did:plc:a"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount())
	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestSnapshotCache_BuildErrorStoresNothing(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	_, err := cache.Get(context.Background(), "did:plc:a", func(ctx context.Context) (*aggregates.Graph, error) {
		return nil, errors.New("upstream down")
	})

	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestSnapshotCache_HitReturnsImmediatelyAndRefreshes(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	var builds atomic.Int32
	build := func(ctx context.Context) (*aggregates.Graph, error) {
		builds.Add(1)
		return snapshotWithNode("did:plc:a"), nil
	}

	_, err := cache.Get(context.Background(), "did:plc:a", build)
	require.NoError(t, err)

	// A hit must not block on the rebuild, but must schedule one.
	graph, err := cache.Get(context.Background(), "did:plc:a", build)
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount())

	assert.Eventually(t, func() bool {
		return builds.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotCache_SlowRefreshDoesNotBlockReads(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	release := make(chan struct{})
	fast := func(ctx context.Context) (*aggregates.Graph, error) {
		return snapshotWithNode("did:plc:a"), nil
	}
	slow := func(ctx context.Context) (*aggregates.Graph, error) {
		<-release
		return snapshotWithNode("did:plc:a"), nil
	}

	_, err := cache.Get(context.Background(), "did:plc:a", fast)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Triggers a background refresh that parks on the release channel.
		_, _ = cache.Get(context.Background(), "did:plc:a", slow)
		// Further reads keep returning the stored snapshot.
		_, _ = cache.Get(context.Background(), "did:plc:a", slow)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reads blocked on a background refresh")
	}
	close(release)
}

func TestSnapshotCache_RefreshUpdatesEntry(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	first := func(ctx context.Context) (*aggregates.Graph, error) {
		return snapshotWithNode("did:plc:a"), nil
	}
	bigger := func(ctx context.Context) (*aggregates.Graph, error) {
		g := snapshotWithNode("did:plc:a")
		g.AddNode(&entities.Node{ID: "did:plc:b"})
		return g, nil
	}

	_, err := cache.Get(context.Background(), "did:plc:a", first)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "did:plc:a", bigger)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		g, err := cache.Get(context.Background(), "did:plc:a", bigger)
		return err == nil && g.NodeCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotCache_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	var failures atomic.Int32
	good := func(ctx context.Context) (*aggregates.Graph, error) {
		return snapshotWithNode("did:plc:a"), nil
	}
	failing := func(ctx context.Context) (*aggregates.Graph, error) {
		failures.Add(1)
		return nil, errors.New("upstream down")
	}

	_, err := cache.Get(context.Background(), "did:plc:a", good)
	require.NoError(t, err)

	graph, err := cache.Get(context.Background(), "did:plc:a", failing)
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount())

	assert.Eventually(t, func() bool {
		return failures.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// Entry survives the failed rebuild.
	graph, err = cache.Get(context.Background(), "did:plc:a", failing)
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount())
}

func TestSnapshotCache_SetTTL(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	defer cache.Close()

	cache.SetTTL(10 * time.Second)
	assert.Equal(t, 10*time.Second, cache.TTL())

	// Non-positive values are ignored.
	cache.SetTTL(0)
	assert.Equal(t, 10*time.Second, cache.TTL())
}
