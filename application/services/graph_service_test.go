package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

type countingSession struct {
	ensures atomic.Int32
	err     error
}

func (s *countingSession) EnsureSession(context.Context) error {
	s.ensures.Add(1)
	return s.err
}

type stubResolver struct {
	byHandle map[valueobjects.Handle]valueobjects.Identity
}

func (r stubResolver) ResolveHandle(_ context.Context, handle valueobjects.Handle) (valueobjects.Identity, error) {
	if id, ok := r.byHandle[handle]; ok {
		return id, nil
	}
	return "", errors.NewNotFoundError("account")
}

func newTestGraphService(session *countingSession) (*GraphService, func()) {
	records := &fakeRecords{byRepo: map[valueobjects.Identity][]entities.IntroductionRecord{
		"did:plc:a": {record("did:plc:a", "did:plc:b")},
		"did:plc:b": {record("did:plc:b", "did:plc:c")},
	}}
	profiles := &fakeProfiles{byID: map[valueobjects.Identity]entities.Profile{
		"did:plc:a": profile("did:plc:a", "alice.example", "Alice", 10, 10),
		"did:plc:b": profile("did:plc:b", "bob.example", "Bob", 10, 10),
		"did:plc:c": profile("did:plc:c", "carol.example", "Carol", 10, 10),
	}}

	fullCache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)
	expansionCache := NewSnapshotCache(time.Minute, 1, 8, nil, nil)

	service := NewGraphService(
		session,
		stubResolver{byHandle: map[valueobjects.Handle]valueobjects.Identity{
			"alice.example": "did:plc:a",
		}},
		testBuilder(records, profiles),
		fullCache, expansionCache, nil,
	)
	return service, func() {
		fullCache.Close()
		expansionCache.Close()
	}
}

func TestGraphService_GraphForHandle(t *testing.T) {
	session := &countingSession{}
	service, cleanup := newTestGraphService(session)
	defer cleanup()

	graph, center, err := service.GraphForHandle(context.Background(), "alice.example")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.Identity("did:plc:a"), center)
	assert.Equal(t, 2, graph.NodeCount())
	assert.True(t, graph.HasEdge("did:plc:a", "did:plc:b"))
}

func TestGraphService_BackgroundRefreshEnsuresSession(t *testing.T) {
	session := &countingSession{}
	service, cleanup := newTestGraphService(session)
	defer cleanup()

	// Miss: one ensure for the operation, one inside the synchronous build.
	_, _, err := service.GraphForHandle(context.Background(), "alice.example")
	require.NoError(t, err)
	assert.Equal(t, int32(2), session.ensures.Load())

	// Hit: the background rebuild runs long after this call returns and
	// must hold a live session of its own rather than riding the token the
	// foreground request validated.
	_, _, err = service.GraphForHandle(context.Background(), "alice.example")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return session.ensures.Load() >= 4
	}, time.Second, 5*time.Millisecond)
}

func TestGraphService_ExpandEnsuresSessionInBuild(t *testing.T) {
	session := &countingSession{}
	service, cleanup := newTestGraphService(session)
	defer cleanup()

	graph, err := service.Expand(context.Background(), "did:plc:b")
	require.NoError(t, err)
	assert.True(t, graph.HasEdge("did:plc:b", "did:plc:c"))
	assert.Equal(t, int32(2), session.ensures.Load())

	_, err = service.Expand(context.Background(), "did:plc:b")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return session.ensures.Load() >= 4
	}, time.Second, 5*time.Millisecond)
}

func TestGraphService_SessionFailurePropagates(t *testing.T) {
	session := &countingSession{err: errors.NewExternalError("createSession", assert.AnError)}
	service, cleanup := newTestGraphService(session)
	defer cleanup()

	_, _, err := service.GraphForHandle(context.Background(), "alice.example")
	require.Error(t, err)
	assert.True(t, errors.IsExternal(err))
}
