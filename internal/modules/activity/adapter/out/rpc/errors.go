package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "gymtrack/internal/platform/errors"
)

// ToStatus converts a backend error into a gRPC status.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, apperrors.ErrActiveSessionExists):
		code = codes.AlreadyExists
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrNoInProgressSession):
		code = codes.NotFound
	case errors.Is(err, apperrors.ErrInvalidTransition), errors.Is(err, apperrors.ErrBackendRejected):
		code = codes.FailedPrecondition
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, apperrors.ErrBackendUnavailable):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a status returned by a remote backend into the apperrors vocabulary.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %w: %s", apperrors.ErrBackendRejected, apperrors.ErrActiveSessionExists, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %w: %s", apperrors.ErrBackendRejected, apperrors.ErrInvalidTransition, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w: %s", apperrors.ErrBackendRejected, apperrors.ErrInvalidInput, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", apperrors.ErrBackendUnavailable, context.DeadlineExceeded)
	case codes.Unavailable, codes.Canceled, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", apperrors.ErrBackendUnavailable, st.Message())
	default:
		return fmt.Errorf("%w: %s: %s", apperrors.ErrBackendRejected, st.Code(), st.Message())
	}
}
