package errors

import (
	"github.com/louisbranch/questline/internal/platform/errors/i18n"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HandleError converts domain errors to gRPC status for client responses.
// The user-facing message is rendered from the i18n catalog best matching
// locale. Errors outside the domain become a generic Internal status.
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		catalog := i18n.GetCatalog(locale)
		userMsg := catalog.Format(string(appErr.Code), appErr.Metadata)
		return appErr.ToGRPCStatus(catalog.Locale(), userMsg)
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}
