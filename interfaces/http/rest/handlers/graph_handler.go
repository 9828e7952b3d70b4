// Package handlers contains the HTTP request handlers for the graph API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/application/services"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// GraphHandler handles the graph acquisition endpoints.
type GraphHandler struct {
	service    *services.GraphService
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewGraphHandler creates a graph handler.
func NewGraphHandler(service *services.GraphService, errHandler *errors.ErrorHandler, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		service:    service,
		errHandler: errHandler,
		logger:     logger,
	}
}

type graphResponse struct {
	Graph     GraphDTO `json:"graph"`
	CenterDID string   `json:"centerDid,omitempty"`
}

// GetGraph handles GET /graph/{handle}: resolve the handle and return the
// full introduction graph around it.
//
// Build failures answer 502 with an empty graph body plus the standard
// error envelope fields, so clients always receive a renderable structure.
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	handle, err := valueobjects.NewHandle(chi.URLParam(r, "handle"))
	if err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError(err.Error()))
		return
	}

	graph, center, err := h.service.GraphForHandle(r.Context(), handle)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, graphResponse{
		Graph:     toGraphDTO(graph),
		CenterDID: center.String(),
	})
}

type expandRequest struct {
	DID string `json:"did"`
}

// Expand handles POST /graph/expand: build the incremental subgraph around
// one identity.
func (h *GraphHandler) Expand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid request body"))
		return
	}

	seed, err := valueobjects.NewIdentity(req.DID)
	if err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError(err.Error()))
		return
	}

	graph, err := h.service.Expand(r.Context(), seed)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, graphResponse{Graph: toGraphDTO(graph)})
}

type mergeRequest struct {
	Graph GraphDTO `json:"graph"`
	DID   string   `json:"did"`
}

type mergeResponse struct {
	Graph   *GraphDTO `json:"graph,omitempty"`
	Changed bool      `json:"changed"`
	Notice  string    `json:"notice,omitempty"`
}

// Merge handles POST /graph/merge: expand around one identity and fold the
// result into the caller-supplied snapshot server-side.
func (h *GraphHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid request body"))
		return
	}

	seed, err := valueobjects.NewIdentity(req.DID)
	if err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError(err.Error()))
		return
	}

	existing := fromGraphDTO(req.Graph)
	result, err := h.service.ExpandAndMerge(r.Context(), existing, seed)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	resp := mergeResponse{Changed: result.Changed, Notice: result.Notice}
	if result.Changed {
		dto := toGraphDTO(result.Graph)
		resp.Graph = &dto
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// respondFailure distinguishes upstream build failures, which answer with
// an empty graph alongside the error classification, from plain request
// errors handled by the standard envelope.
func (h *GraphHandler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.IsExternal(err) {
		appErr := errors.GetAppError(err)
		h.logger.Warn("graph build failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.respondJSON(w, http.StatusBadGateway, struct {
			Graph   GraphDTO `json:"graph"`
			Error   bool     `json:"error"`
			Type    string   `json:"type"`
			Message string   `json:"message"`
		}{
			Graph:   GraphDTO{Nodes: []NodeElement{}, Edges: []EdgeElement{}},
			Error:   true,
			Type:    string(appErr.Type),
			Message: appErr.Message,
		})
		return
	}
	h.errHandler.Handle(w, r, err)
}

func (h *GraphHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
