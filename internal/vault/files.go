package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/obsidian-tools/vaultbridge/internal/apperrors"
)

// Read fetches the content of a file in the requested representation.
func (c *Client) Read(ctx context.Context, path string, rep Representation) (*FileContent, error) {
	c.logger.DebugContext(ctx, "reading file", slog.String("path", path), slog.String("format", rep.String()))

	header := http.Header{}
	header.Set("Accept", rep.accept())

	resp, err := c.do(ctx, http.MethodGet, "/vault/"+encodePath(path), path, nil, header)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(resp, path)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.VaultError{
			Kind:    apperrors.KindInternal,
			Path:    path,
			Message: "read response body",
			Err:     err,
		}
	}

	return &FileContent{
		Path:           strings.TrimPrefix(path, "/"),
		Representation: rep,
		Content:        content,
	}, nil
}

// Snapshot reads the raw content of a file, reporting absence as ok=false
// instead of an error. Callers use it to capture before/after content around
// a mutation, where a missing file is an expected, non-exceptional case.
func (c *Client) Snapshot(ctx context.Context, path string) (content string, ok bool, err error) {
	fc, err := c.Read(ctx, path, RepRawText)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(fc.Content), true, nil
}

// Create writes a new file. With overwrite it replaces any existing content;
// without it the call fails with Conflict when the path already exists.
func (c *Client) Create(ctx context.Context, path, content string, overwrite bool) error {
	c.logger.DebugContext(ctx, "creating file", slog.String("path", path), slog.Bool("overwrite", overwrite))

	header := http.Header{}
	header.Set("Content-Type", mediaMarkdown)
	if !overwrite {
		header.Set("If-None-Match", "*")
	}

	resp, err := c.do(ctx, http.MethodPut, "/vault/"+encodePath(path), path, strings.NewReader(content), header)
	if err != nil {
		return err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(resp, path)
	}
	return nil
}

// Append adds content to the end of a file. A missing target degrades to
// creating the file rather than failing. When the existing content does not
// already end in a newline, one is inserted first so repeated appends do not
// accumulate blank lines.
func (c *Client) Append(ctx context.Context, path, content string) error {
	c.logger.DebugContext(ctx, "appending to file", slog.String("path", path))

	existing, ok, err := c.Snapshot(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return c.Create(ctx, path, content, false)
	}

	body := content
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		body = "\n" + content
	}

	header := http.Header{}
	header.Set("Content-Type", mediaMarkdown)

	resp, err := c.do(ctx, http.MethodPost, "/vault/"+encodePath(path), path, strings.NewReader(body), header)
	if err != nil {
		return err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(resp, path)
	}
	return nil
}

// Patch applies a partial edit relative to a target inside the file. The
// selector is a "::"-joined heading path, a block identifier, or a
// frontmatter key depending on the target kind.
func (c *Client) Patch(
	ctx context.Context, path string, op PatchOperation, target PatchTarget, selector, content string,
) error {
	c.logger.DebugContext(ctx, "patching file",
		slog.String("path", path),
		slog.String("operation", op.String()),
		slog.String("target", target.String()),
		slog.String("selector", selector))

	header := http.Header{}
	header.Set("Content-Type", mediaMarkdown)
	header.Set("Operation", op.String())
	header.Set("Target-Type", target.String())
	header.Set("Target", selector)

	resp, err := c.do(ctx, http.MethodPatch, "/vault/"+encodePath(path), path, strings.NewReader(content), header)
	if err != nil {
		return err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		err := c.statusError(resp, path)
		var verr *apperrors.VaultError
		if errors.As(err, &verr) {
			verr.Target = selector
		}
		return err
	}
	return nil
}

// Delete removes a file. Deleting a directory fails with MethodNotAllowed.
func (c *Client) Delete(ctx context.Context, path string) error {
	c.logger.DebugContext(ctx, "deleting file", slog.String("path", path))

	resp, err := c.do(ctx, http.MethodDelete, "/vault/"+encodePath(path), path, nil, nil)
	if err != nil {
		return err
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(resp, path)
	}
	return nil
}
