package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

var (
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrNetwork          = fmt.Errorf("network error")
	ErrNotFound         = fmt.Errorf("not found")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrMissingToken     = fmt.Errorf("authorization token is missing")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
)

// Kind is the coarse category of a failure, as seen by subscribers and transports.
type Kind string

const (
	KindNone             Kind = ""
	KindInvalidArgument  Kind = "invalid_argument"
	KindPermissionDenied Kind = "permission_denied"
	KindStoreUnavailable Kind = "store_unavailable"
	KindNetwork          Kind = "network_error"
	KindNotFound         Kind = "not_found"
	KindUnauthenticated  Kind = "unauthenticated"
	KindUnknown          Kind = "unknown"
)

// KindOf classifies err against the sentinel errors of this package.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case stderrors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case stderrors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case stderrors.Is(err, ErrNotFound):
		return KindNotFound
	case stderrors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case stderrors.Is(err, ErrNetwork),
		stderrors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case stderrors.Is(err, ErrMissingToken), stderrors.Is(err, ErrInvalidToken):
		return KindUnauthenticated
	default:
		return KindUnknown
	}
}

// IsTransient reports whether retrying the whole operation may succeed.
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == KindStoreUnavailable || k == KindNetwork
}

// InvalidArgument wraps a caller-misuse message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// PermissionDenied wraps an access-rule violation message.
func PermissionDenied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// StoreUnavailable wraps an underlying storage failure.
func StoreUnavailable(cause error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
}
