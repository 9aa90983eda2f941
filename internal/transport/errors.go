package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
)

const errorDomain = "smartcart"

// ErrUnavailable reports that the backend could not be reached.
var ErrUnavailable = errors.New("backend unavailable")

type errorMapping struct {
	err    error
	code   codes.Code
	reason string
}

// Order matters: the first sentinel err matches wins.
var errorMappings = []errorMapping{
	{model.ErrNotAuthenticated, codes.Unauthenticated, "NOT_AUTHENTICATED"},
	{auth.ErrInvalidToken, codes.Unauthenticated, "NOT_AUTHENTICATED"},
	{auth.ErrInvalidCredentials, codes.Unauthenticated, "INVALID_CREDENTIALS"},
	{auth.ErrEmailExists, codes.AlreadyExists, "EMAIL_EXISTS"},
	{model.ErrNotFound, codes.NotFound, "NOT_FOUND"},
	{model.ErrDuplicateRetailer, codes.AlreadyExists, "DUPLICATE_RETAILER"},
	{model.ErrActiveTripExists, codes.FailedPrecondition, "ACTIVE_TRIP_EXISTS"},
	{model.ErrRetailerHasTrips, codes.FailedPrecondition, "RETAILER_HAS_TRIPS"},
	{model.ErrInvalidTransition, codes.FailedPrecondition, "INVALID_TRANSITION"},
	{model.ErrInvalidInput, codes.InvalidArgument, "INVALID_INPUT"},
}

// toStatus converts a domain error into a gRPC status error carrying an
// ErrorInfo reason, plus a BadRequest for validation failures.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		details := []protoadapt.MessageV1{&errdetails.ErrorInfo{Reason: m.reason, Domain: errorDomain}}
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			br := &errdetails.BadRequest{}
			for field, desc := range verr.Fields {
				br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{Field: field, Description: desc})
			}
			details = append(details, br)
		}
		return withDetails(status.New(m.code, err.Error()), details...)
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus converts a gRPC error back into the domain error it encodes.
// The returned error keeps the server's message and matches the sentinel
// with errors.Is.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var reason string
	fields := map[string]string{}
	for _, d := range st.Details() {
		switch d := d.(type) {
		case *errdetails.ErrorInfo:
			if d.GetDomain() == errorDomain {
				reason = d.GetReason()
			}
		case *errdetails.BadRequest:
			for _, v := range d.GetFieldViolations() {
				fields[v.GetField()] = v.GetDescription()
			}
		}
	}
	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields}
	}
	if reason != "" {
		for _, m := range errorMappings {
			if m.reason == reason {
				return &remoteError{msg: st.Message(), err: m.err}
			}
		}
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)
	case codes.Unavailable:
		return &remoteError{msg: st.Message(), err: ErrUnavailable}
	case codes.Unauthenticated:
		return &remoteError{msg: st.Message(), err: model.ErrNotAuthenticated}
	case codes.NotFound:
		return &remoteError{msg: st.Message(), err: model.ErrNotFound}
	}
	return err
}

type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }

func withDetails(st *status.Status, details ...protoadapt.MessageV1) error {
	withD, err := st.WithDetails(details...)
	if err != nil {
		return st.Err()
	}
	return withD.Err()
}
