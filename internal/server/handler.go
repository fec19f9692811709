package server

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/obsidian-tools/vaultbridge/internal/apperrors"
	"github.com/obsidian-tools/vaultbridge/internal/ledger"
	"github.com/obsidian-tools/vaultbridge/internal/vault"
	"github.com/obsidian-tools/vaultbridge/internal/version"
)

const (
	apiKeyHeader = "X-API-Key"

	defaultSearchLimit  = 50
	defaultHistoryLimit = 50
)

// Handler holds the HTTP handlers for the vault, search and history routes.
type Handler struct {
	client *vault.Client
	ledger *ledger.Ledger
	apiKey string
	logger *slog.Logger
}

// NewHandler creates a new handler. An empty apiKey disables authentication.
func NewHandler(client *vault.Client, ledg *ledger.Ledger, apiKey string, logger *slog.Logger) *Handler {
	return &Handler{
		client: client,
		ledger: ledg,
		apiKey: apiKey,
		logger: logger,
	}
}

// auth wraps a handler with the shared-secret check. The key comparison is
// constant time.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, req *http.Request) {
		if h.apiKey != "" {
			provided := req.Header.Get(apiKeyHeader)
			if provided == "" {
				h.writeDetail(writer, http.StatusUnauthorized, apperrors.ErrAPIKeyMissing.Error())
				return
			}
			if !hmac.Equal([]byte(provided), []byte(h.apiKey)) {
				h.writeDetail(writer, http.StatusForbidden, apperrors.ErrAPIKeyInvalid.Error())
				return
			}
		}
		next(writer, req)
	}
}

// writeJSON writes a JSON response with the given status.
func (h *Handler) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeDetail writes an error response in the {"detail": ...} shape.
func (h *Handler) writeDetail(writer http.ResponseWriter, status int, detail string) {
	h.writeJSON(writer, status, map[string]string{"detail": detail})
}

// writeError renders a gateway error with the HTTP status matching its kind.
func (h *Handler) writeError(writer http.ResponseWriter, req *http.Request, err error) {
	status := kindStatus(apperrors.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(req.Context(), "request failed", "path", req.URL.Path, "error", err)
	}
	h.writeDetail(writer, status, err.Error())
}

// kindStatus maps an error kind to the HTTP status reported to the caller.
func kindStatus(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindBadRequest:
		return http.StatusBadRequest
	case apperrors.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case apperrors.KindBadGateway:
		return http.StatusBadGateway
	case apperrors.KindNotImplemented:
		return http.StatusNotImplemented
	case apperrors.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// filePath extracts and validates the vault file path from the request.
// Directory-shaped paths are rejected; directories have their own routes.
func (h *Handler) filePath(writer http.ResponseWriter, req *http.Request) (string, bool) {
	path := req.PathValue("path")
	if path == "" || strings.HasSuffix(path, "/") {
		h.writeDetail(writer, http.StatusBadRequest, apperrors.ErrInvalidFilePath.Error())
		return "", false
	}
	return path, true
}

// snapshot captures the current content of a path for the ledger, returning
// nil when the file is absent or the probe fails. A failed probe is logged
// and never blocks the mutation it precedes: losing an audit snapshot is
// preferable to failing the operation.
func (h *Handler) snapshot(ctx context.Context, path string) *string {
	content, ok, err := h.client.Snapshot(ctx, path)
	if err != nil {
		h.logger.WarnContext(ctx, "snapshot failed", "path", path, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &content
}

// ==================== Vault file routes ====================

type fileResponse struct {
	Path    string          `json:"path"`
	Format  string          `json:"format"`
	Content json.RawMessage `json:"content"`
}

// HandleGetFile serves GET /vault/{path}.
func (h *Handler) HandleGetFile(writer http.ResponseWriter, req *http.Request) {
	path, ok := h.filePath(writer, req)
	if !ok {
		return
	}

	rep, err := vault.ParseRepresentation(req.URL.Query().Get("format"))
	if err != nil {
		h.writeDetail(writer, http.StatusBadRequest, err.Error())
		return
	}

	fc, err := h.client.Read(req.Context(), path, rep)
	if err != nil {
		h.writeError(writer, req, err)
		return
	}

	content := json.RawMessage(fc.Content)
	if rep == vault.RepRawText {
		encoded, merr := json.Marshal(string(fc.Content))
		if merr != nil {
			h.writeDetail(writer, http.StatusInternalServerError, merr.Error())
			return
		}
		content = encoded
	}

	h.writeJSON(writer, http.StatusOK, fileResponse{
		Path:    fc.Path,
		Format:  rep.String(),
		Content: content,
	})
}

type writeFileRequest struct {
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

// HandleWriteFile serves POST /vault/{path}. The default mode creates or
// replaces the file; mode=append appends to it.
func (h *Handler) HandleWriteFile(writer http.ResponseWriter, req *http.Request) {
	path, ok := h.filePath(writer, req)
	if !ok {
		return
	}

	var body writeFileRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.writeDetail(writer, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch mode := req.URL.Query().Get("mode"); mode {
	case "", "create":
		h.createFile(writer, req, path, &body)
	case "append":
		h.appendFile(writer, req, path, body.Content)
	default:
		h.writeDetail(writer, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", mode))
	}
}

func (h *Handler) createFile(writer http.ResponseWriter, req *http.Request, path string, body *writeFileRequest) {
	ctx := req.Context()

	// Previous content only exists when replacing.
	var previous *string
	if body.Overwrite {
		previous = h.snapshot(ctx, path)
	}

	if err := h.client.Create(ctx, path, body.Content, body.Overwrite); err != nil {
		h.writeError(writer, req, err)
		return
	}

	h.ledger.Record(ledger.OpCreate, path, previous, &body.Content, map[string]any{
		"overwrite": body.Overwrite,
	})

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"path":    path,
		"created": true,
		"message": "File created successfully: " + path,
	})
}

func (h *Handler) appendFile(writer http.ResponseWriter, req *http.Request, path, content string) {
	ctx := req.Context()

	previous := h.snapshot(ctx, path)

	if err := h.client.Append(ctx, path, content); err != nil {
		h.writeError(writer, req, err)
		return
	}

	current := h.snapshot(ctx, path)

	h.ledger.Record(ledger.OpAppend, path, previous, current, map[string]any{})

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"path":     path,
		"appended": true,
		"message":  "Content appended to: " + path,
	})
}

type patchFileRequest struct {
	Operation   string `json:"operation"`
	Target      string `json:"target"`
	TargetValue string `json:"target_value"`
	Content     string `json:"content"`
}

// HandlePatchFile serves PATCH /vault/{path}.
func (h *Handler) HandlePatchFile(writer http.ResponseWriter, req *http.Request) {
	path, ok := h.filePath(writer, req)
	if !ok {
		return
	}

	var body patchFileRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.writeDetail(writer, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	op, err := vault.ParsePatchOperation(body.Operation)
	if err != nil {
		h.writeDetail(writer, http.StatusBadRequest, err.Error())
		return
	}
	target, err := vault.ParsePatchTarget(body.Target)
	if err != nil {
		h.writeDetail(writer, http.StatusBadRequest, err.Error())
		return
	}

	ctx := req.Context()
	previous := h.snapshot(ctx, path)

	if err := h.client.Patch(ctx, path, op, target, body.TargetValue, body.Content); err != nil {
		h.writeError(writer, req, err)
		return
	}

	current := h.snapshot(ctx, path)

	h.ledger.Record(ledger.OpPatch, path, previous, current, map[string]any{
		"operation":    op.String(),
		"target":       target.String(),
		"target_value": body.TargetValue,
	})

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"path":    path,
		"patched": true,
		"message": "File patched successfully: " + path,
	})
}

// HandleDeleteFile serves DELETE /vault/{path}.
func (h *Handler) HandleDeleteFile(writer http.ResponseWriter, req *http.Request) {
	path, ok := h.filePath(writer, req)
	if !ok {
		return
	}

	ctx := req.Context()
	previous := h.snapshot(ctx, path)

	if err := h.client.Delete(ctx, path); err != nil {
		h.writeError(writer, req, err)
		return
	}

	h.ledger.Record(ledger.OpDelete, path, previous, nil, map[string]any{
		"deleted": true,
	})

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"path":    path,
		"deleted": true,
		"message": "File deleted successfully: " + path,
	})
}

// ==================== Directory routes ====================

// HandleList serves GET /vault, listing a directory given by the path query
// parameter ("/" when omitted).
func (h *Handler) HandleList(writer http.ResponseWriter, req *http.Request) {
	dir := req.URL.Query().Get("path")
	if dir == "" {
		dir = "/"
	}

	entries, err := h.client.List(req.Context(), dir)
	if err != nil {
		h.writeError(writer, req, err)
		return
	}

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"path":  dir,
		"files": entries,
		"total": len(entries),
	})
}

// ==================== Search routes ====================

// HandleSearchSimple serves POST /search/simple/.
func (h *Handler) HandleSearchSimple(writer http.ResponseWriter, req *http.Request) {
	params := req.URL.Query()

	query := params.Get("query")
	if query == "" {
		h.writeDetail(writer, http.StatusBadRequest, "query parameter is required")
		return
	}

	scope := params.Get("path")
	if scope == "" {
		scope = "/"
	}

	limit := defaultSearchLimit
	if raw := params.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeDetail(writer, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	results, err := h.client.SearchSimple(req.Context(), query, scope, limit)
	if err != nil {
		h.writeError(writer, req, err)
		return
	}

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

type advancedSearchRequest struct {
	QueryType string          `json:"query_type"`
	Query     json.RawMessage `json:"query"`
	Limit     int             `json:"limit"`
}

// HandleSearchAdvanced serves POST /search/.
func (h *Handler) HandleSearchAdvanced(writer http.ResponseWriter, req *http.Request) {
	var body advancedSearchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.writeDetail(writer, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	kind, err := vault.ParseQueryKind(body.QueryType)
	if err != nil {
		h.writeDetail(writer, http.StatusBadRequest, err.Error())
		return
	}

	var query any
	if len(body.Query) > 0 {
		if err := json.Unmarshal(body.Query, &query); err != nil {
			h.writeDetail(writer, http.StatusBadRequest, "invalid query: "+err.Error())
			return
		}
	}

	limit := body.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := h.client.SearchAdvanced(req.Context(), kind, query, limit)
	if err != nil {
		h.writeError(writer, req, err)
		return
	}

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"query_type": kind.String(),
		"query":      query,
		"results":    results,
		"total":      len(results),
	})
}

// ==================== History routes ====================

// HandleHistory serves GET /history.
func (h *Handler) HandleHistory(writer http.ResponseWriter, req *http.Request) {
	limit := defaultHistoryLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeDetail(writer, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	operations := h.ledger.Get(limit)

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"operations":  operations,
		"total":       len(operations),
		"max_entries": h.ledger.MaxEntries(),
	})
}

// HandleHistoryByID serves GET /history/{id}.
func (h *Handler) HandleHistoryByID(writer http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	record, ok := h.ledger.GetByID(id)
	if !ok {
		h.writeDetail(writer, http.StatusNotFound, "operation not found: "+id)
		return
	}

	h.writeJSON(writer, http.StatusOK, record)
}

// HandleHistoryClear serves DELETE /history.
func (h *Handler) HandleHistoryClear(writer http.ResponseWriter, req *http.Request) {
	h.ledger.Clear()
	h.logger.InfoContext(req.Context(), "operation history cleared")

	h.writeJSON(writer, http.StatusOK, map[string]string{
		"message": "Operation history cleared successfully",
	})
}

// ==================== System routes ====================

// HandleHealth serves GET /health. No authentication required.
func (h *Handler) HandleHealth(writer http.ResponseWriter, req *http.Request) {
	health := h.client.Health(req.Context())

	h.writeJSON(writer, http.StatusOK, map[string]any{
		"status":             "healthy",
		"obsidian_connected": health.Connected,
		"obsidian_version":   health.ObsidianVersion,
		"plugin_version":     health.PluginVersion,
		"timestamp":          time.Now().UTC(),
		"server_version":     version.Version,
	})
}

// HandleVersion serves GET /api/version.
func (h *Handler) HandleVersion(writer http.ResponseWriter, _ *http.Request) {
	h.writeJSON(writer, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_time": version.GitTime,
	})
}

// HandleRoot serves GET /.
func (h *Handler) HandleRoot(writer http.ResponseWriter, _ *http.Request) {
	h.writeJSON(writer, http.StatusOK, map[string]string{
		"name":       "vaultbridge",
		"version":    version.Version,
		"health_url": "/health",
	})
}
