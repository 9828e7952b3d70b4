package atproto

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// sessionServer is a scripted upstream session endpoint.
type sessionServer struct {
	mu           sync.Mutex
	creates      int
	refreshes    int
	probes       int
	probeFails   bool
	probeOutage  bool
	refreshFails bool
}

func (s *sessionServer) setFailing(probe, refresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeFails = probe
	s.refreshFails = refresh
}

func (s *sessionServer) setProbeOutage(outage bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeOutage = outage
}

func (s *sessionServer) counts() (creates, probes, refreshes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.probes, s.refreshes
}

func (s *sessionServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			s.creates++
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessJwt":  "access-created",
				"refreshJwt": "refresh-created",
				"did":        "did:plc:service",
			})
		case "/xrpc/com.atproto.server.getSession":
			s.probes++
			if s.probeOutage {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "InternalServerError", "message": "upstream outage",
				})
				return
			}
			if s.probeFails {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "ExpiredToken", "message": "Token has expired",
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"did": "did:plc:service"})
		case "/xrpc/com.atproto.server.refreshSession":
			s.refreshes++
			if s.refreshFails {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "ExpiredToken", "message": "refresh token expired",
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessJwt":  "access-refreshed",
				"refreshJwt": "refresh-refreshed",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestSession_CreatesOnFirstUse(t *testing.T) {
	upstream := &sessionServer{}
	server := httptest.NewServer(upstream.handler())
	defer server.Close()

	session := NewSession(NewClient(server.URL, 0, nil), "svc.example", "secret", nil)

	require.NoError(t, session.EnsureSession(context.Background()))
	assert.Equal(t, "access-created", session.AccessToken())
	assert.Equal(t, "did:plc:service", session.DID())
	creates, _, _ := upstream.counts()
	assert.Equal(t, 1, creates)
}

func TestSession_ProbeKeepsValidToken(t *testing.T) {
	upstream := &sessionServer{}
	server := httptest.NewServer(upstream.handler())
	defer server.Close()

	session := NewSession(NewClient(server.URL, 0, nil), "svc.example", "secret", nil)

	require.NoError(t, session.EnsureSession(context.Background()))
	require.NoError(t, session.EnsureSession(context.Background()))

	creates, probes, refreshes := upstream.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, probes)
	assert.Equal(t, 0, refreshes)
}

func TestSession_RefreshesOnExpiredProbe(t *testing.T) {
	upstream := &sessionServer{}
	server := httptest.NewServer(upstream.handler())
	defer server.Close()

	session := NewSession(NewClient(server.URL, 0, nil), "svc.example", "secret", nil)
	require.NoError(t, session.EnsureSession(context.Background()))

	upstream.setFailing(true, false)
	require.NoError(t, session.EnsureSession(context.Background()))

	assert.Equal(t, "access-refreshed", session.AccessToken())
	creates, _, refreshes := upstream.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, refreshes)
}

func TestSession_RefreshFailurePropagates(t *testing.T) {
	upstream := &sessionServer{}
	server := httptest.NewServer(upstream.handler())
	defer server.Close()

	session := NewSession(NewClient(server.URL, 0, nil), "svc.example", "secret", nil)
	require.NoError(t, session.EnsureSession(context.Background()))

	upstream.setFailing(true, true)
	err := session.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsExternal(err))

	// A dead refresh token must not silently turn into a new login.
	creates, _, refreshes := upstream.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, refreshes)
}

func TestSession_ProbeOutagePropagates(t *testing.T) {
	upstream := &sessionServer{}
	server := httptest.NewServer(upstream.handler())
	defer server.Close()

	session := NewSession(NewClient(server.URL, 0, nil), "svc.example", "secret", nil)
	require.NoError(t, session.EnsureSession(context.Background()))

	upstream.setProbeOutage(true)
	err := session.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsExternal(err))

	// An outage is not an expired token: no refresh, no fresh login.
	creates, _, refreshes := upstream.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, refreshes)
}

func TestSession_MissingCredentials(t *testing.T) {
	session := NewSession(NewClient("http://unreachable.invalid", 0, nil), "", "", nil)

	err := session.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestIsExpiredToken(t *testing.T) {
	assert.True(t, IsExpiredToken(&XRPCError{StatusCode: 400, Code: "ExpiredToken"}))
	assert.False(t, IsExpiredToken(&XRPCError{StatusCode: 400, Code: "InvalidRequest"}))
	assert.False(t, IsExpiredToken(context.Canceled))
}
