// Package atproto implements the outbound collaborators for the
// decentralized identity network: session management, record listing,
// profile batching and handle resolution over the XRPC HTTP convention.
package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// CollectionIntroduction is the record collection holding introduction
// records.
const CollectionIntroduction = "com.skybemoreblue.intro.introduction"

// recordPageLimit is the page size requested from record listings; the
// server may return fewer.
const recordPageLimit = 100

// profileChunkSize is the upstream maximum number of actors per profile
// batch request.
const profileChunkSize = 25

// XRPCError is a structured error response from an XRPC endpoint.
type XRPCError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *XRPCError) Error() string {
	return fmt.Sprintf("xrpc error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsExpiredToken reports whether err is an XRPC rejection of an expired
// access token.
func IsExpiredToken(err error) bool {
	var xe *XRPCError
	if stderrors.As(err, &xe) {
		return xe.Code == "ExpiredToken"
	}
	return false
}

func asXRPCError(err error, target **XRPCError) bool {
	return stderrors.As(err, target)
}

// Client is a minimal XRPC HTTP client. All methods target the configured
// service URL except ListRecords, which takes the record host explicitly
// because records live on each repository's own personal data server.
type Client struct {
	serviceURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an XRPC client for the given service URL.
func NewClient(serviceURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sessionTokens struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

// CreateSession authenticates with the service account credentials.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) (sessionTokens, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var out sessionTokens
	err := c.post(ctx, c.serviceURL, "com.atproto.server.createSession", "", body, &out)
	return out, err
}

// GetSession probes whether the access token is still accepted.
func (c *Client) GetSession(ctx context.Context, accessToken string) error {
	var out struct {
		DID string `json:"did"`
	}
	return c.get(ctx, c.serviceURL, "com.atproto.server.getSession", accessToken, nil, &out)
}

// RefreshSession exchanges a refresh token for a new token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (sessionTokens, error) {
	var out sessionTokens
	err := c.post(ctx, c.serviceURL, "com.atproto.server.refreshSession", refreshToken, nil, &out)
	return out, err
}

type recordEnvelope struct {
	URI   string            `json:"uri"`
	CID   string            `json:"cid"`
	Value introductionValue `json:"value"`
}

type introductionValue struct {
	Subject   string   `json:"subject"`
	Text      string   `json:"text"`
	Lang      string   `json:"lang"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

type listRecordsPage struct {
	Records []recordEnvelope `json:"records"`
	Cursor  string           `json:"cursor"`
}

// ListRecordsPage fetches one page of records for repo from host, the
// repository's own personal data server.
func (c *Client) ListRecordsPage(ctx context.Context, host, accessToken, repo, collection, cursor string) (listRecordsPage, error) {
	params := url.Values{}
	params.Set("repo", repo)
	params.Set("collection", collection)
	params.Set("limit", strconv.Itoa(recordPageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var out listRecordsPage
	err := c.get(ctx, strings.TrimRight(host, "/"), "com.atproto.repo.listRecords", accessToken, params, &out)
	return out, err
}

type profileView struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Avatar         string `json:"avatar"`
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
}

// GetProfiles fetches profile views for up to profileChunkSize actors.
func (c *Client) GetProfiles(ctx context.Context, accessToken string, actors []string) ([]profileView, error) {
	if len(actors) > profileChunkSize {
		return nil, errors.NewInternalError(
			fmt.Sprintf("profile batch exceeds upstream maximum of %d actors", profileChunkSize))
	}

	params := url.Values{}
	for _, actor := range actors {
		params.Add("actors", actor)
	}

	var out struct {
		Profiles []profileView `json:"profiles"`
	}
	err := c.get(ctx, c.serviceURL, "app.bsky.actor.getProfiles", accessToken, params, &out)
	return out.Profiles, err
}

// ResolveHandle resolves a handle to its identity.
func (c *Client) ResolveHandle(ctx context.Context, accessToken, handle string) (string, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var out struct {
		DID string `json:"did"`
	}
	if err := c.get(ctx, c.serviceURL, "com.atproto.identity.resolveHandle", accessToken, params, &out); err != nil {
		return "", err
	}
	return out.DID, nil
}

// getAttempts bounds how many times an idempotent GET is tried; the delay
// between attempts grows linearly from getRetryDelay.
const (
	getAttempts   = 3
	getRetryDelay = 100 * time.Millisecond
)

// get issues an idempotent GET with a bounded retry. Transport failures
// and 5xx rejections are retried; 4xx rejections are final.
func (c *Client) get(ctx context.Context, host, method, token string, params url.Values, out any) error {
	endpoint := host + "/xrpc/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= getAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(time.Duration(attempt-1) * getRetryDelay):
			}
			c.logger.Debug("retrying upstream call",
				zap.String("method", method),
				zap.Int("attempt", attempt),
			)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.NewInternalError("failed to build upstream request").WithCause(err)
		}

		err = c.do(req, method, token, out)
		if err == nil || !retryableGet(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// retryableGet reports whether a GET failure is worth retrying: transport
// and server-side failures are, client rejections are not.
func retryableGet(err error) bool {
	var xe *XRPCError
	if asXRPCError(err, &xe) {
		return xe.StatusCode >= http.StatusInternalServerError
	}
	return errors.IsExternal(err)
}

func (c *Client) post(ctx context.Context, host, method, token string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to encode upstream request").WithCause(err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/xrpc/"+method, payload)
	if err != nil {
		return errors.NewInternalError("failed to build upstream request").WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, method, token, out)
}

func (c *Client) do(req *http.Request, method, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewExternalError(method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewExternalError(method, err)
	}

	if resp.StatusCode != http.StatusOK {
		xe := &XRPCError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, xe); err != nil || xe.Code == "" {
			xe.Code = "UnknownError"
			xe.Message = strings.TrimSpace(string(data))
		}
		c.logger.Debug("upstream call rejected",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.String("code", xe.Code),
		)
		return xe
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewExternalError(method, err)
	}
	return nil
}
