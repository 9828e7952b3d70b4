// Package plc resolves identities to their personal data server through
// the public identity directory.
package plc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// Directory resolves an identity's DID document and extracts the personal
// data server endpoint. Resolutions are memoized for the process lifetime:
// an identity's hosting endpoint changes rarely, and a frontier fan-out
// would otherwise resolve the same document dozens of times.
type Directory struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[valueobjects.Identity]string
}

// NewDirectory creates a directory client.
func NewDirectory(baseURL string, timeout time.Duration, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Directory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		cache:      make(map[valueobjects.Identity]string),
	}
}

type didDocument struct {
	Service []didService `json:"service"`
}

type didService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// PDSEndpoint returns the base URL of the personal data server hosting
// id's repository.
func (d *Directory) PDSEndpoint(ctx context.Context, id valueobjects.Identity) (string, error) {
	d.mu.RLock()
	endpoint, ok := d.cache[id]
	d.mu.RUnlock()
	if ok {
		return endpoint, nil
	}

	doc, err := d.fetchDocument(ctx, id)
	if err != nil {
		return "", err
	}

	endpoint = pdsFromDocument(doc)
	if endpoint == "" {
		return "", errors.NewExternalError("directory",
			fmt.Errorf("did document for %s names no personal data server", id))
	}

	d.mu.Lock()
	d.cache[id] = endpoint
	d.mu.Unlock()

	d.logger.Debug("resolved personal data server",
		zap.String("did", id.String()),
		zap.String("endpoint", endpoint),
	)
	return endpoint, nil
}

func (d *Directory) fetchDocument(ctx context.Context, id valueobjects.Identity) (*didDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/"+id.String(), nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build directory request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalError("directory", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFoundError(fmt.Sprintf("identity %q", id))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalError("directory",
			fmt.Errorf("directory returned status %d for %s", resp.StatusCode, id))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewExternalError("directory", err)
	}

	var doc didDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewExternalError("directory", err)
	}
	return &doc, nil
}

// pdsFromDocument picks the personal data server entry from the document's
// service list, matching on the conventional type first and the well-known
// fragment id as a fallback.
func pdsFromDocument(doc *didDocument) string {
	for _, svc := range doc.Service {
		if svc.Type == "AtprotoPersonalDataServer" {
			return strings.TrimRight(svc.ServiceEndpoint, "/")
		}
	}
	for _, svc := range doc.Service {
		if svc.ID == "#atproto_pds" {
			return strings.TrimRight(svc.ServiceEndpoint, "/")
		}
	}
	return ""
}
