package crawlv1

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

var codeBySentinel = []struct {
	err  error
	code codes.Code
}{
	{lib.ErrInvalidConfig, codes.InvalidArgument},
	{lib.ErrAlreadyRunning, codes.FailedPrecondition},
	{lib.ErrNotRunning, codes.FailedPrecondition},
	{lib.ErrDirectoryCreateFailed, codes.Aborted},
	{lib.ErrSpawnFailed, codes.Aborted},
	{lib.ErrStopFailed, codes.Internal},
	{lib.ErrClosed, codes.Unavailable},
}

// ToStatus converts a supervisor error into a gRPC status error.
// Errors that already carry a status are returned unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, s := range codeBySentinel {
		if errors.Is(err, s.err) {
			return status.Error(s.code, err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus is the client side of ToStatus: a status whose message names a
// supervisor sentinel is wrapped around that sentinel so errors.Is works
// across the wire.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	for _, s := range codeBySentinel {
		if st.Code() == s.code && strings.Contains(st.Message(), s.err.Error()) {
			return &remoteError{sentinel: s.err, status: st}
		}
	}
	return err
}

type remoteError struct {
	sentinel error
	status   *status.Status
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", e.status.Code(), e.status.Message())
}

func (e *remoteError) Unwrap() error { return e.sentinel }

// GRPCStatus keeps status.Code working on the mapped error.
func (e *remoteError) GRPCStatus() *status.Status { return e.status }
