package vault

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/obsidian-tools/vaultbridge/internal/apperrors"
)

// List returns the entries of a directory. An empty path or "/" lists the
// vault root. Entries whose remote path carries a trailing slash are
// directories; no other classification signal is consulted.
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	c.logger.DebugContext(ctx, "listing directory", slog.String("path", dir))

	resp, err := c.do(ctx, http.MethodGet, directoryEndpoint(dir), dir, nil, nil)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(resp, dir)
	}

	var payload struct {
		Files []listedFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &apperrors.VaultError{
			Kind:    apperrors.KindInternal,
			Path:    dir,
			Message: apperrors.ErrInvalidListing.Error(),
			Err:     err,
		}
	}

	entries := make([]Entry, 0, len(payload.Files))
	for i := range payload.Files {
		entries = append(entries, payload.Files[i].entry(dir))
	}

	c.logger.DebugContext(ctx, "listing complete", slog.String("path", dir), slog.Int("entries", len(entries)))
	return entries, nil
}
