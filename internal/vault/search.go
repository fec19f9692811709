package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/obsidian-tools/vaultbridge/internal/apperrors"
)

const (
	// fallbackScanLimit bounds how many files the linear fallback reads,
	// regardless of vault size or the requested result limit.
	fallbackScanLimit = 50

	// contextWindow is the number of bytes of context kept on each side of
	// a match.
	contextWindow = 100

	// fallbackScore is assigned to every fallback match. The linear scan
	// does no ranking; results are best-effort, not authoritative.
	fallbackScore = 1.0
)

// SearchSimple performs a case-insensitive text search. It tries the
// remote's native search endpoint first; when the remote signals the
// capability as absent, it transparently falls back to a linear scan of the
// scope directory with the same parameters.
func (c *Client) SearchSimple(ctx context.Context, query, scope string, limit int) ([]SearchResult, error) {
	c.logger.DebugContext(ctx, "simple search", slog.String("query", query), slog.Int("limit", limit))

	params := url.Values{}
	params.Set("query", query)
	params.Set("contextLength", strconv.Itoa(contextWindow))

	resp, err := c.do(ctx, http.MethodPost, "/search/simple/?"+params.Encode(), "", nil, nil)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented {
		// Older plugin versions have no search endpoint at all.
		c.logger.InfoContext(ctx, "native search unavailable, falling back to linear scan",
			"scope", scope, "status", resp.StatusCode)
		return c.fallbackSearch(ctx, query, scope, limit)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(resp, "")
	}

	var results []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, &apperrors.VaultError{
			Kind:    apperrors.KindInternal,
			Message: "decode search response",
			Err:     err,
		}
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// fallbackSearch is the best-effort linear scan used when native search is
// unavailable: list the scope directory, read each file and look for the
// query as a case-insensitive substring. It scans at most fallbackScanLimit
// files and keeps a fixed-size context window around the first match per
// file.
func (c *Client) fallbackSearch(ctx context.Context, query, scope string, limit int) ([]SearchResult, error) {
	entries, err := c.List(ctx, scope)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	results := []SearchResult{}
	scanned := 0

	for i := range entries {
		entry := &entries[i]
		if entry.IsDir {
			continue
		}
		if scanned >= fallbackScanLimit || (limit > 0 && len(results) >= limit) {
			break
		}
		scanned++

		fc, err := c.Read(ctx, entry.Path, RepRawText)
		if err != nil {
			c.logger.WarnContext(ctx, "fallback scan skipping file", "path", entry.Path, "error", err)
			continue
		}

		content := string(fc.Content)
		idx := strings.Index(strings.ToLower(content), needle)
		if idx < 0 {
			continue
		}

		// Widen the window outward to the nearest rune boundaries so the
		// context never cuts a multi-byte character in half.
		start := max(0, idx-contextWindow)
		for start > 0 && !utf8.RuneStart(content[start]) {
			start--
		}
		end := min(len(content), idx+len(query)+contextWindow)
		for end < len(content) && !utf8.RuneStart(content[end]) {
			end++
		}

		results = append(results, SearchResult{
			Filename: entry.Path,
			Score:    fallbackScore,
			Matches: []MatchContext{{
				Match:   SearchMatch{Start: idx, End: idx + len(query)},
				Context: content[start:end],
			}},
		})
	}

	c.logger.DebugContext(ctx, "fallback search complete",
		"scope", scope, "scanned", scanned, "results", len(results))
	return results, nil
}

// SearchAdvanced runs a Dataview DQL or JsonLogic query against the remote.
// Dataview queries must be strings, JsonLogic queries must be objects. The
// operation fails with NotImplemented when the remote lacks the query
// capability (no Dataview plugin installed).
func (c *Client) SearchAdvanced(ctx context.Context, kind QueryKind, query any, limit int) ([]AdvancedResult, error) {
	c.logger.DebugContext(ctx, "advanced search", slog.String("query_type", kind.String()), slog.Int("limit", limit))

	var (
		body        io.Reader
		contentType string
	)
	switch kind {
	case QueryDataview:
		s, ok := query.(string)
		if !ok {
			return nil, &apperrors.VaultError{
				Kind:    apperrors.KindBadRequest,
				Target:  kind.String(),
				Message: "dataview query must be a string",
			}
		}
		body = strings.NewReader(s)
		contentType = mediaDataviewDQL
	case QueryJSONLogic:
		if _, ok := query.(string); ok {
			return nil, &apperrors.VaultError{
				Kind:    apperrors.KindBadRequest,
				Target:  kind.String(),
				Message: "jsonlogic query must be an object, not a string",
			}
		}
		data, err := json.Marshal(query)
		if err != nil {
			return nil, &apperrors.VaultError{
				Kind:    apperrors.KindBadRequest,
				Target:  kind.String(),
				Message: "encode jsonlogic query",
				Err:     err,
			}
		}
		body = bytes.NewReader(data)
		contentType = mediaJSONLogic
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)

	resp, err := c.do(ctx, http.MethodPost, "/search/", "", body, header)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented {
		return nil, &apperrors.VaultError{
			Kind:    apperrors.KindNotImplemented,
			Target:  kind.String(),
			Message: "advanced search endpoint not available, ensure the Dataview plugin is installed",
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(resp, "")
	}

	var results []AdvancedResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, &apperrors.VaultError{
			Kind:    apperrors.KindInternal,
			Message: "decode search response",
			Err:     err,
		}
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
