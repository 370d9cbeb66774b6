// Package errors provides structured application errors with codes shared by the
// HTTP surface and the gRPC recognizer client.
package errors

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies an AppError.
type Code int32

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeDetectorUnavailable
	CodeDetectFailed
	CodeInvalidImage
	CodeSchedulerStopped
	CodeConfigInvalid
)

var codeNames = map[Code]string{
	CodeUnknown:             "UNKNOWN",
	CodeInternal:            "INTERNAL",
	CodeInvalidArgument:     "INVALID_ARGUMENT",
	CodeNotFound:            "NOT_FOUND",
	CodeUnavailable:         "UNAVAILABLE",
	CodeTimeout:             "TIMEOUT",
	CodeCancelled:           "CANCELLED",
	CodeDetectorUnavailable: "DETECTOR_UNAVAILABLE",
	CodeDetectFailed:        "DETECT_FAILED",
	CodeInvalidImage:        "INVALID_IMAGE",
	CodeSchedulerStopped:    "SCHEDULER_STOPPED",
	CodeConfigInvalid:       "CONFIG_INVALID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:             codes.Unknown,
	CodeInternal:            codes.Internal,
	CodeInvalidArgument:     codes.InvalidArgument,
	CodeNotFound:            codes.NotFound,
	CodeUnavailable:         codes.Unavailable,
	CodeTimeout:             codes.DeadlineExceeded,
	CodeCancelled:           codes.Canceled,
	CodeDetectorUnavailable: codes.Unavailable,
	CodeDetectFailed:        codes.Internal,
	CodeInvalidImage:        codes.InvalidArgument,
	CodeSchedulerStopped:    codes.FailedPrecondition,
	CodeConfigInvalid:       codes.InvalidArgument,
}

var httpStatusMap = map[Code]int{
	CodeInvalidArgument:     http.StatusBadRequest,
	CodeInvalidImage:        http.StatusBadRequest,
	CodeConfigInvalid:       http.StatusBadRequest,
	CodeNotFound:            http.StatusNotFound,
	CodeUnavailable:         http.StatusServiceUnavailable,
	CodeDetectorUnavailable: http.StatusServiceUnavailable,
	CodeSchedulerStopped:    http.StatusServiceUnavailable,
	CodeTimeout:             http.StatusGatewayTimeout,
	CodeCancelled:           499,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the status code the HTTP surface answers with.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatusMap[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// detail encodes the error as a protobuf Struct so it survives a gRPC round trip.
func (e *AppError) detail() *structpb.Struct {
	fields := map[string]any{
		"code":    e.Code.String(),
		"message": e.Message,
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	s, _ := structpb.NewStruct(fields)
	return s
}

// GRPCStatus returns a gRPC status with the error detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	// WithDetails packs the Struct into an Any itself.
	if withDetail, err := st.WithDetails(e.detail()); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		if appErr := fromDetail(s); appErr != nil {
			appErr.Cause = err
			return appErr
		}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

func fromDetail(s *structpb.Struct) *AppError {
	name := s.GetFields()["code"].GetStringValue()
	code, ok := codeByName(name)
	if !ok {
		return nil
	}
	appErr := &AppError{Code: code, Message: s.GetFields()["message"].GetStringValue()}
	if md := s.GetFields()["metadata"].GetStructValue(); md != nil {
		for k, v := range md.GetFields() {
			appErr.WithMetadata(k, v.GetStringValue())
		}
	}
	return appErr
}

func codeByName(name string) (Code, bool) {
	for c, n := range codeNames {
		if n == name {
			return c, true
		}
	}
	return CodeUnknown, false
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.FailedPrecondition:
		return CodeSchedulerStopped
	default:
		return CodeUnknown
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeDetectorUnavailable:
		return true
	default:
		return false
	}
}
