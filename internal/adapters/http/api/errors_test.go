package api

import (
	"errors"
	"testing"

	"github.com/okian/talentlens/internal/adapters/repository"
)

func TestKindErrors(t *testing.T) {
	cause := errors.New("limit must be a non-negative integer")
	err := WrapKind("api.history", ErrBadRequest, cause)
	if !errors.Is(err, ErrBadRequest) || !errors.Is(err, cause) {
		t.Fatalf("expected both kind and cause to match: %v", err)
	}
	if got, want := err.Error(), "api.history: bad request: limit must be a non-negative integer"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	if Wrap("api.get", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	nf := Wrap("api.get", repository.ErrNotFound)
	if status, code := classify(nf); status != 404 || code != codeNotFound {
		t.Fatalf("classify(not found) = %d %s", status, code)
	}
	if got := NewKind("api.put", ErrBadRequest).Error(); got != "api.put: bad request" {
		t.Fatalf("NewKind Error() = %q", got)
	}
	if status, code := classify(errors.New("disk on fire")); status != 500 || code != codeInternal {
		t.Fatalf("classify(other) = %d %s", status, code)
	}
}
