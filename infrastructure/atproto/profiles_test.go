package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

func identities(n int) []valueobjects.Identity {
	ids := make([]valueobjects.Identity, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, valueobjects.Identity(fmt.Sprintf("did:plc:user%d", i)))
	}
	return ids
}

func TestProfileFetcher_ChunksBatches(t *testing.T) {
	var batchSizes []int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/app.bsky.actor.getProfiles", r.URL.Path)
		actors := r.URL.Query()["actors"]
		batchSizes = append(batchSizes, len(actors))

		profiles := make([]map[string]any, 0, len(actors))
		for _, actor := range actors {
			profiles = append(profiles, map[string]any{
				"did":            actor,
				"handle":         "someone.example",
				"displayName":    "Someone",
				"followersCount": 10,
				"followsCount":   5,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"profiles": profiles})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil)
	session := NewSession(client, "svc.example", "secret", nil)
	fetcher := NewProfileFetcher(client, session, nil, nil)

	profiles, err := fetcher.FetchAllProfiles(context.Background(), identities(60))
	require.NoError(t, err)

	assert.Len(t, profiles, 60)
	assert.Equal(t, []int{25, 25, 10}, batchSizes)
	assert.Equal(t, valueobjects.Identity("did:plc:user0"), profiles[0].Identity)
	assert.Equal(t, 10, profiles[0].FollowersCount)
	assert.Equal(t, 5, profiles[0].FollowingCount)
}

func TestProfileFetcher_FailurePropagates(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// The second batch fails persistently, outlasting the retry budget.
		if requests >= 2 {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "UpstreamFailure", "message": "boom"})
			return
		}
		actors := r.URL.Query()["actors"]
		profiles := make([]map[string]any, 0, len(actors))
		for _, actor := range actors {
			profiles = append(profiles, map[string]any{"did": actor, "handle": "someone.example"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"profiles": profiles})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil)
	session := NewSession(client, "svc.example", "secret", nil)
	fetcher := NewProfileFetcher(client, session, nil, nil)

	_, err := fetcher.FetchAllProfiles(context.Background(), identities(30))
	require.Error(t, err)
	assert.True(t, errors.IsExternal(err))
}

func TestProfileFetcher_EmptyInput(t *testing.T) {
	client := NewClient("http://unreachable.invalid", 0, nil)
	session := NewSession(client, "svc.example", "secret", nil)
	fetcher := NewProfileFetcher(client, session, nil, nil)

	profiles, err := fetcher.FetchAllProfiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestResolver_MapsUnknownHandleToNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "InvalidRequest",
			"message": "Unable to resolve handle",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil)
	session := NewSession(client, "svc.example", "secret", nil)
	resolver := NewResolver(client, session)

	_, err := resolver.ResolveHandle(context.Background(), "ghost.example")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestResolver_ResolvesHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/com.atproto.identity.resolveHandle", r.URL.Path)
		require.Equal(t, "alice.example", r.URL.Query().Get("handle"))
		_ = json.NewEncoder(w).Encode(map[string]string{"did": "did:plc:alice"})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil)
	session := NewSession(client, "svc.example", "secret", nil)
	resolver := NewResolver(client, session)

	id, err := resolver.ResolveHandle(context.Background(), "alice.example")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.Identity("did:plc:alice"), id)
}
