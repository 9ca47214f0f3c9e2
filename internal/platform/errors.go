package platform

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/snowbind/snowbind/internal/core"
)

// classify maps a raw control-plane error to the provisioning taxonomy.
// The adapter is driver-agnostic, so permission errors are recognized by the
// platform's message text rather than driver-specific error codes.
func classify(err error, op, object string) error {
	if err == nil {
		return nil
	}

	var kind core.ErrorKind
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = core.KindTimeout
	case isPermissionDenied(err):
		kind = core.KindPermissionDenied
	default:
		// Includes net.Error and anything we cannot attribute: the caller
		// may retry.
		kind = core.KindTransientNetwork
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = core.KindTimeout
		}
	}

	return core.NewError(kind, op, object, err)
}

func isPermissionDenied(err error) bool {
	msg := strings.ToLower(err.Error())
	// the platform reports a missing object and a hidden object with one
	// combined message; existence is decided by describe, so that wording
	// must not read as a privilege error
	if strings.Contains(msg, "does not exist or not authorized") {
		return false
	}
	return strings.Contains(msg, "insufficient privileges") ||
		strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "access denied")
}
