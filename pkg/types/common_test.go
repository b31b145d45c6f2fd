package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	base := errors.New("connection refused")
	err := WrapError(ErrCodeConnect, "failed to connect", base)

	if got := err.Error(); got != "CONNECT: failed to connect: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to its cause")
	}

	outer := fmt.Errorf("producer: %w", err)
	if !IsErrCode(outer, ErrCodeConnect) {
		t.Error("IsErrCode should see through fmt wrapping")
	}
	if got := GetErrorCode(outer); got != ErrCodeConnect {
		t.Errorf("GetErrorCode() = %q, want %q", got, ErrCodeConnect)
	}
	if GetErrorCode(base) != "" {
		t.Error("plain errors have no code")
	}
}

func TestErrorIsMatchesIdentity(t *testing.T) {
	sentinel := NewError(ErrCodeFraming, "message length is not the sample size")
	err := fmt.Errorf("%w: got 10 bytes", sentinel)

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should match the wrapped sentinel")
	}
	if errors.Is(NewError(ErrCodeFraming, "other message"), sentinel) {
		t.Error("a different error with the same code should not match the sentinel")
	}
	if !IsErrCode(NewError(ErrCodeFraming, "other message"), ErrCodeFraming) {
		t.Error("IsErrCode should match by code")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"peer closed", NewError(ErrCodePeerClosed, "gone"), false},
		{"idle timeout", NewError(ErrCodeIdleTimeout, "quiet"), false},
		{"canceled", WrapError(ErrCodeCanceled, "stopped", context.Canceled), false},
		{"exhausted", NewError(ErrCodeExhausted, "done"), false},
		{"unavailable", NewError(ErrCodeUnavailable, "offline"), true},
		{"config", NewError(ErrCodeConfig, "bad"), true},
		{"bind", NewError(ErrCodeBind, "bad"), true},
		{"accept", NewError(ErrCodeAccept, "bad"), true},
		{"connect", NewError(ErrCodeConnect, "bad"), true},
		{"send", NewError(ErrCodeSend, "bad"), true},
		{"uncoded", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a.IsEmpty() || b.IsEmpty() {
		t.Fatal("GenerateID returned an empty ID")
	}
	if a == b {
		t.Errorf("GenerateID returned duplicate IDs: %s", a)
	}
	if len(a.String()) != 16 {
		t.Errorf("ID length = %d, want 16", len(a.String()))
	}
}
