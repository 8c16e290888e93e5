package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/cinecart/internal/errs"
)

// fromStatus maps gRPC status codes back to sentinel errors.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", errs.ErrRemote, err)
	}
	msg := st.Message()
	switch st.Code() {
	case codes.InvalidArgument:
		// server passes the validation message through verbatim
		return &remoteError{sentinel: errs.ErrValidation, msg: msg}
	case codes.AlreadyExists:
		if msg == errs.ErrDuplicateAccount.Error() {
			return errs.ErrDuplicateAccount
		}
		return errs.ErrAlreadyExists
	case codes.Unauthenticated:
		return errs.ErrAuthentication
	case codes.ResourceExhausted:
		return errs.ErrRateLimited
	case codes.NotFound:
		return errs.ErrNotFound
	case codes.PermissionDenied:
		return errs.ErrForbidden
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return &remoteError{sentinel: errs.ErrRemote, msg: fmt.Sprintf("%s: %s", st.Code(), msg)}
	}
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }
