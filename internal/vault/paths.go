package vault

import (
	"net/url"
	"strings"
)

// encodePath percent-encodes a vault path for transmission, preserving the
// interior path separators. A single leading separator is stripped first.
//
// Encoding is not idempotent: re-encoding an already-encoded path corrupts
// it. It is therefore applied exactly once, at the gateway operation that
// builds the outgoing request, and nowhere else.
func encodePath(path string) string {
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// directoryEndpoint returns the remote endpoint addressing a directory.
//
// The remote expects a trailing slash on every directory address:
// the root is "/vault/" and a subdirectory is "/vault/{path}/".
func directoryEndpoint(path string) string {
	if path == "" || path == "/" {
		return "/vault/"
	}
	encoded := encodePath(path)
	if !strings.HasSuffix(encoded, "/") {
		encoded += "/"
	}
	return "/vault/" + encoded
}
