package errors

import (
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeRateLimitExceeded, "rate limit exceeded")
	err := WithMetadata(CodeRateLimitExceeded, "rate limit exceeded for ip", map[string]string{"Scope": "ip"})
	wrapped := fmt.Errorf("enforce: %w", err)

	if !Is(wrapped, sentinel) {
		t.Fatal("expected wrapped error to match sentinel by code")
	}
	if Is(wrapped, New(CodeNotFound, "x")) {
		t.Fatal("expected different code not to match")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeConfigurationSecretMissing, "load commitment keyring", fmt.Errorf("key missing"))
	if err.Error() != "load commitment keyring: key missing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(fmt.Errorf("plain")) != CodeUnknown {
		t.Fatal("expected unknown code for plain error")
	}
	if CodeOf(fmt.Errorf("wrap: %w", New(CodeStrategyNotFound, "x"))) != CodeStrategyNotFound {
		t.Fatal("expected strategy not found code")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeSimulationInputMissing, codes.InvalidArgument},
		{CodeStrategyVariableInvalid, codes.InvalidArgument},
		{CodeStrategyNotFound, codes.NotFound},
		{CodeRateLimitExceeded, codes.ResourceExhausted},
		{CodeConfigurationSecretMissing, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusAttachesDetails(t *testing.T) {
	err := WithMetadata(CodeRateLimitExceeded, "rate limit exceeded", map[string]string{"Scope": "api_key"})
	st, ok := status.FromError(err.ToGRPCStatus("en-US", "Too many requests"))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.ResourceExhausted {
		t.Fatalf("expected resource exhausted, got %v", st.Code())
	}

	var info *errdetails.ErrorInfo
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			info = d
		case *errdetails.LocalizedMessage:
			localized = d
		}
	}
	if info == nil || info.GetReason() != string(CodeRateLimitExceeded) {
		t.Fatalf("expected error info reason, got %+v", info)
	}
	if info.GetMetadata()["Scope"] != "api_key" {
		t.Fatalf("expected scope metadata, got %v", info.GetMetadata())
	}
	if localized == nil || localized.GetMessage() != "Too many requests" {
		t.Fatalf("expected localized message, got %+v", localized)
	}
}
