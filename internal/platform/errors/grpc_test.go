package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHandleErrorLocalizesDomainErrors(t *testing.T) {
	err := fmt.Errorf("resolve: %w", WithMetadata(CodeStrategyNotFound, "strategy missing", map[string]string{"StrategyID": "nope"}))

	st, ok := status.FromError(HandleError(err, "pt-BR"))
	if !ok {
		t.Fatal("expected status error")
	}
	if st.Code() != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", st.Code())
	}
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		if msg, ok := detail.(*errdetails.LocalizedMessage); ok {
			localized = msg
		}
	}
	if localized == nil {
		t.Fatal("expected localized message detail")
	}
	if localized.GetLocale() != "pt-BR" {
		t.Fatalf("locale = %q, want pt-BR", localized.GetLocale())
	}
}

func TestHandleErrorHidesUnknownErrors(t *testing.T) {
	st, _ := status.FromError(HandleError(errors.New("disk on fire"), ""))
	if st.Code() != codes.Internal {
		t.Fatalf("code = %v, want Internal", st.Code())
	}
	if st.Message() != "an unexpected error occurred" {
		t.Fatalf("message = %q", st.Message())
	}
}

func TestHandleErrorNil(t *testing.T) {
	if HandleError(nil, "en-US") != nil {
		t.Fatal("expected nil for nil error")
	}
}
