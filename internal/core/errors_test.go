package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "full identity",
			err:  NewError(KindPermissionDenied, "grant", "database DEMO_DB", errors.New("insufficient privileges")),
			want: "PERMISSION_DENIED during grant on database DEMO_DB: insufficient privileges",
		},
		{
			name: "validation without operation",
			err:  Validationf("role_name is required"),
			want: "VALIDATION: role_name is required",
		},
		{
			name: "kind only",
			err:  &Error{Kind: KindTimeout},
			want: "TIMEOUT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	drift := NewError(KindFederationDrift, "bind", "user U", errors.New("bound elsewhere"))

	if got := KindOf(drift); got != KindFederationDrift {
		t.Errorf("KindOf(drift) = %s", got)
	}
	if got := KindOf(fmt.Errorf("running op: %w", drift)); got != KindFederationDrift {
		t.Errorf("KindOf(wrapped drift) = %s, the kind must survive wrapping", got)
	}
	if got := KindOf(errors.New("connection reset by peer")); got != KindTransientNetwork {
		t.Errorf("KindOf(untyped) = %s, want the retryable default", got)
	}
}

func TestIsFatal(t *testing.T) {
	fatal := []ErrorKind{KindPermissionDenied, KindFederationDrift, KindValidation, KindTimeout}
	for _, kind := range fatal {
		if !IsFatal(&Error{Kind: kind}) {
			t.Errorf("IsFatal(%s) = false, want true", kind)
		}
	}
	if IsFatal(&Error{Kind: KindTransientNetwork}) {
		t.Error("IsFatal(TRANSIENT_NETWORK) = true, transient failures are retryable")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("IsFatal(untyped) = true, untyped errors default to retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(KindTimeout, "verify", "user U", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}
