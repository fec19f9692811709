// Package apperrors provides common static errors and the gateway error
// taxonomy used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure crossing the vault gateway boundary.
type Kind int

const (
	// KindNotFound means the target path or entity is absent.
	KindNotFound Kind = iota
	// KindConflict means a create collided with an existing file.
	KindConflict
	// KindBadRequest means the remote rejected a malformed or unresolvable
	// patch target or query.
	KindBadRequest
	// KindMethodNotAllowed means the operation is invalid for the entry
	// type, such as deleting a directory.
	KindMethodNotAllowed
	// KindBadGateway means the remote could not be reached at the
	// transport level (connection refused, timeout, DNS failure).
	KindBadGateway
	// KindNotImplemented means the remote lacks the requested optional
	// capability.
	KindNotImplemented
	// KindInternal means the remote answered with an unrecognized status
	// or a malformed response shape.
	KindInternal
)

// String returns the lowercase tag used in logs and JSON responses.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindBadGateway:
		return "bad_gateway"
	case KindNotImplemented:
		return "not_implemented"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// VaultError is a gateway failure carrying enough detail for the caller to
// render a precise message: the kind, the vault path or patch/search target
// involved, the remote's own message when one was attached, and the original
// remote status code for unrecognized responses.
type VaultError struct {
	Kind    Kind
	Path    string
	Target  string
	Message string
	// RemoteStatus is the original HTTP status from the remote, 0 when the
	// failure happened before a response was received.
	RemoteStatus int
	// Err is the underlying transport or decoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Target != "" {
		msg += " target=" + e.Target
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RemoteStatus != 0 {
		msg = fmt.Sprintf("%s (remote status %d)", msg, e.RemoteStatus)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *VaultError) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from an error chain. Errors that are not
// VaultErrors report KindInternal.
func KindOf(err error) Kind {
	var verr *VaultError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain contains a VaultError of the given
// kind.
func IsKind(err error, kind Kind) bool {
	var verr *VaultError
	return errors.As(err, &verr) && verr.Kind == kind
}

// Common static errors used throughout the application.
var (
	// ErrTokenRequired is returned when the remote API token is required but not provided.
	ErrTokenRequired = errors.New("obsidian API token required (--obsidian-token or VB_OBSIDIAN_TOKEN env var)")

	// ErrAPIKeyMissing is returned when a request carries no X-API-Key header.
	ErrAPIKeyMissing = errors.New("API key is missing, provide it in the X-API-Key header")

	// ErrAPIKeyInvalid is returned when the provided API key does not match.
	ErrAPIKeyInvalid = errors.New("invalid API key")

	// ErrLedgerDisabled is returned when a history operation is attempted with a zero-capacity ledger.
	ErrLedgerDisabled = errors.New("operation history is disabled (VB_HISTORY_MAX=0)")

	// ErrInvalidFilePath is returned when a file operation addresses an empty or directory-shaped path.
	ErrInvalidFilePath = errors.New("invalid file path")

	// ErrInvalidListing is returned when the remote listing response has an unexpected shape.
	ErrInvalidListing = errors.New("invalid listing response from remote")
)
