// Package images converts avatar URLs into inline data URIs so graph
// snapshots are self-contained.
package images

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxImageBytes caps how much of an avatar response is inlined. Thumbnails
// are well under this; anything larger is not worth embedding.
const maxImageBytes = 1 << 20

// Fetcher downloads avatars and re-encodes them as data URIs. Full-size
// avatar URLs are rewritten to their thumbnail variant before download,
// with the full-size URL as a fallback. Every failure yields the empty
// string: a missing picture never fails a graph build.
type Fetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFetcher creates an image fetcher.
func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchAsDataURI downloads url's thumbnail variant and returns it as a
// base64 data URI, or "" on any failure. When the thumbnail variant is
// unavailable the full-size URL is fetched instead; not every avatar has
// a thumbnail rendition.
func (f *Fetcher) FetchAsDataURI(ctx context.Context, url string) string {
	if thumb := ThumbnailURL(url); thumb != url {
		uri, unavailable := f.fetch(ctx, thumb)
		if !unavailable {
			return uri
		}
		f.logger.Debug("thumbnail unavailable, fetching original", zap.String("url", thumb))
	}
	uri, _ := f.fetch(ctx, url)
	return uri
}

// fetch downloads one URL and encodes the body. unavailable reports that
// the URL itself could not be fetched (transport failure or non-200), as
// opposed to an empty or oversized body.
func (f *Fetcher) fetch(ctx context.Context, url string) (uri string, unavailable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", true
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Debug("avatar fetch failed", zap.String("url", url), zap.Error(err))
		return "", true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("avatar fetch rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return "", true
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxImageBytes {
		return "", false
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), false
}

// ThumbnailURL rewrites a full-size avatar URL to the thumbnail variant
// served alongside it. URLs without the avatar path segment pass through
// unchanged.
func ThumbnailURL(url string) string {
	return strings.Replace(url, "/avatar/", "/avatar_thumbnail/", 1)
}
