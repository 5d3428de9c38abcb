package models

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	wrapped := fmtWrap(ErrUserNotFound, "loading user alice")
	if !errors.Is(wrapped, ErrUserNotFound) {
		t.Fatal("errors.Is should match by code through a wrapping chain")
	}
	if errors.Is(wrapped, ErrGroupNotFound) {
		t.Fatal("errors.Is should not match a different code")
	}
}

func TestErrorUnwrapReachesInner(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeServiceUnavailable, cause, "shard unreachable")
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the wrapped cause via Unwrap")
	}
}

func TestNotFoundForSelectsSpecializedCode(t *testing.T) {
	cases := []struct {
		kind Kind
		want ErrorCode
	}{
		{KindUser, CodeUserNotFound},
		{KindGroup, CodeGroupNotFound},
		{KindEntityType, CodeEntityTypeNotFound},
		{KindEntity, CodeEntityNotFound},
		{KindUserToGroup, CodeNotFound},
	}
	for _, c := range cases {
		got := NotFoundFor(c.kind, "x")
		if got.Code != c.want {
			t.Errorf("NotFoundFor(%v) code = %v, want %v", c.kind, got.Code, c.want)
		}
	}
}

func TestErrorMessageFormatting(t *testing.T) {
	bare := NewError(CodeCancelled, "")
	if bare.Error() != string(CodeCancelled) {
		t.Errorf("Error() with empty message = %q, want code alone", bare.Error())
	}
	withMsg := NewError(CodeArgument, "bad range")
	if withMsg.Error() != "ArgumentException: bad range" {
		t.Errorf("Error() = %q, want code: message", withMsg.Error())
	}
}

// fmtWrap mimics how a caller up the stack re-wraps a sentinel with
// additional context, the way errors commonly travel through accessplane.
func fmtWrap(cause *Error, context string) error {
	return Wrap(cause.Code, cause, context)
}
