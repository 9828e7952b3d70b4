package atproto

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// expiryMargin treats a token expiring within this window as already
// expired, so a fetch started now does not outlive it.
const expiryMargin = 30 * time.Second

// Session manages the authenticated upstream session for the service
// account. EnsureSession is cheap when the current token still looks
// valid: a local expiry check short-circuits, otherwise the token is
// probed upstream. Only an ExpiredToken verdict triggers a refresh;
// any other probe or refresh failure is reported to the caller rather
// than papered over with a fresh login.
type Session struct {
	client     *Client
	identifier string
	password   string
	logger     *zap.Logger

	mu      sync.Mutex
	access  string
	refresh string
	did     string

	now func() time.Time
}

// NewSession creates a session manager bound to one service account.
func NewSession(client *Client, identifier, password string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		client:     client,
		identifier: identifier,
		password:   password,
		logger:     logger,
		now:        time.Now,
	}
}

// EnsureSession guarantees a usable access token. Calls serialize so that
// concurrent requests never race a refresh against each other.
func (s *Session) EnsureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identifier == "" || s.password == "" {
		return errors.NewConfigurationError("upstream credentials are not configured")
	}

	if s.access == "" {
		return s.create(ctx)
	}

	if s.expiresSoon(s.access) {
		return s.refreshLocked(ctx)
	}

	if err := s.client.GetSession(ctx, s.access); err != nil {
		if !IsExpiredToken(err) {
			return errors.NewExternalError("getSession", err)
		}
		s.logger.Debug("access token expired, refreshing", zap.Error(err))
		return s.refreshLocked(ctx)
	}
	return nil
}

// AccessToken returns the current access token. Callers must have run
// EnsureSession first.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// DID returns the service account's own identity, known after the first
// successful session creation.
func (s *Session) DID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.did
}

func (s *Session) create(ctx context.Context) error {
	tokens, err := s.client.CreateSession(ctx, s.identifier, s.password)
	if err != nil {
		return errors.NewExternalError("createSession", err)
	}
	s.access = tokens.AccessJwt
	s.refresh = tokens.RefreshJwt
	s.did = tokens.DID
	s.logger.Info("created upstream session", zap.String("did", s.did))
	return nil
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refresh == "" {
		return errors.NewUnauthorizedError("no refresh token available")
	}
	tokens, err := s.client.RefreshSession(ctx, s.refresh)
	if err != nil {
		return errors.NewExternalError("refreshSession", err)
	}
	s.access = tokens.AccessJwt
	s.refresh = tokens.RefreshJwt
	if tokens.DID != "" {
		s.did = tokens.DID
	}
	s.logger.Debug("refreshed upstream session")
	return nil
}

// expiresSoon inspects the token's exp claim locally, without signature
// verification; the upstream service remains the authority, this only
// avoids a doomed probe.
func (s *Session) expiresSoon(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return s.now().Add(expiryMargin).After(exp.Time)
}
