package errors

import (
	stderrors "errors"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestAppErrorMessage(t *testing.T) {
	cause := stderrors.New("bad header")
	err := Wrap(cause, CodeInvalidImage, "decode failed").WithMetadata("format", "png")

	msg := err.Error()
	for _, want := range []string{"[INVALID_IMAGE]", "decode failed", "format:png", "caused by: bad header"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	orig := Newf(CodeDetectorUnavailable, "engine %s offline", "tesseract").WithMetadata("lang", "eng")

	back := FromGRPCError(orig.GRPCStatus().Err())
	if back.Code != CodeDetectorUnavailable {
		t.Errorf("Code = %v, want %v", back.Code, CodeDetectorUnavailable)
	}
	if back.Message != "engine tesseract offline" {
		t.Errorf("Message = %q", back.Message)
	}
	if back.Metadata["lang"] != "eng" {
		t.Errorf("Metadata[lang] = %q, want %q", back.Metadata["lang"], "eng")
	}
}

func TestGRPCStatusCarriesStructDetail(t *testing.T) {
	// INVALID_IMAGE travels as codes.InvalidArgument; only the detail restores it.
	st := New(CodeInvalidImage, "too blurry").WithMetadata("reason", "blur").GRPCStatus()
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("status code = %v, want InvalidArgument", st.Code())
	}

	details := st.Details()
	if len(details) != 1 {
		t.Fatalf("details = %d, want 1", len(details))
	}
	if _, ok := details[0].(*structpb.Struct); !ok {
		t.Errorf("detail = %T, want *structpb.Struct", details[0])
	}

	back := FromGRPCError(st.Err())
	if back.Code != CodeInvalidImage || back.Metadata["reason"] != "blur" {
		t.Errorf("FromGRPCError = %v, want INVALID_IMAGE with reason", back)
	}
}

func TestFromGRPCErrorFallback(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Code
	}{
		{codes.Unavailable, CodeUnavailable},
		{codes.DeadlineExceeded, CodeTimeout},
		{codes.InvalidArgument, CodeInvalidArgument},
		{codes.FailedPrecondition, CodeSchedulerStopped},
		{codes.PermissionDenied, CodeUnknown},
	}

	for _, tt := range tests {
		got := FromGRPCError(status.Error(tt.code, "x"))
		if got.Code != tt.want {
			t.Errorf("FromGRPCError(%v).Code = %v, want %v", tt.code, got.Code, tt.want)
		}
	}

	if FromGRPCError(nil) != nil {
		t.Error("FromGRPCError(nil) should be nil")
	}
	if got := FromGRPCError(stderrors.New("plain")); got.Code != CodeUnknown {
		t.Errorf("plain error Code = %v, want UNKNOWN", got.Code)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidImage, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeSchedulerStopped, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
			t.Errorf("%v.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestIsCodeAndRetryable(t *testing.T) {
	err := New(CodeTimeout, "slow")
	if !IsCode(err, CodeTimeout) {
		t.Error("IsCode should match")
	}
	if IsCode(stderrors.New("x"), CodeTimeout) {
		t.Error("IsCode should not match plain errors")
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(New(CodeInvalidImage, "x")) {
		t.Error("invalid image should not be retryable")
	}
}

func TestCodeString(t *testing.T) {
	if CodeDetectFailed.String() != "DETECT_FAILED" {
		t.Errorf("String() = %q", CodeDetectFailed.String())
	}
	if Code(99).String() != "CODE(99)" {
		t.Errorf("String() = %q", Code(99).String())
	}
}
