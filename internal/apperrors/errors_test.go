package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestVaultError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *VaultError
		want string
	}{
		{
			name: "kind only",
			err:  &VaultError{Kind: KindNotFound},
			want: "not_found",
		},
		{
			name: "kind and path",
			err:  &VaultError{Kind: KindConflict, Path: "notes/a.md"},
			want: "conflict notes/a.md",
		},
		{
			name: "target and message",
			err:  &VaultError{Kind: KindBadRequest, Path: "a.md", Target: "Heading", Message: "unresolvable"},
			want: "bad_request a.md target=Heading: unresolvable",
		},
		{
			name: "remote status",
			err:  &VaultError{Kind: KindInternal, Path: "a.md", RemoteStatus: 418},
			want: "internal a.md (remote status 418)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVaultError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &VaultError{Kind: KindBadGateway, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, cause missing", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	direct := &VaultError{Kind: KindConflict}
	if got := KindOf(direct); got != KindConflict {
		t.Errorf("KindOf(direct) = %v", got)
	}

	wrapped := fmt.Errorf("while creating: %w", direct)
	if got := KindOf(wrapped); got != KindConflict {
		t.Errorf("KindOf(wrapped) = %v", got)
	}

	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want KindInternal", got)
	}
}

func TestIsKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrap: %w", &VaultError{Kind: KindNotFound})
	if !IsKind(err, KindNotFound) {
		t.Error("IsKind missed a wrapped NotFound")
	}
	if IsKind(err, KindConflict) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(errors.New("plain"), KindInternal) {
		t.Error("IsKind matched a non-VaultError")
	}
}
