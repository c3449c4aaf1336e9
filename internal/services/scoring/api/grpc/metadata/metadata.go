// Package metadata defines the headers the scoring service reads from gRPC
// calls: request correlation ids and the caller identity the abuse gate
// counts against.
package metadata

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/questline/internal/platform/id"
)

// RequestIDHeader is the gRPC metadata key for request correlation IDs.
const RequestIDHeader = "x-questline-request-id"

// APIKeyHeader is the gRPC metadata key carrying the integrating client's
// API key.
const APIKeyHeader = "x-questline-api-key"

// ForwardedForHeader carries the client chain added by proxies in front of
// the service.
const ForwardedForHeader = "x-forwarded-for"

// LocaleHeader selects the language of user-facing error messages.
const LocaleHeader = "x-questline-locale"

type contextKey string

const requestIDContextKey contextKey = "questline-request-id"

// RequestIDFromContext returns the request ID stored in context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDContextKey).(string)
	return value
}

// WithRequestID stores the request ID in context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// APIKeyFromContext returns the API key from incoming metadata.
func APIKeyFromContext(ctx context.Context) string {
	return strings.TrimSpace(metadataValueFromIncomingContext(ctx, APIKeyHeader))
}

// ForwardedForFromContext returns the raw forwarded-for chain from incoming
// metadata.
func ForwardedForFromContext(ctx context.Context) string {
	return metadataValueFromIncomingContext(ctx, ForwardedForHeader)
}

// LocaleFromContext returns the requested locale from incoming metadata.
func LocaleFromContext(ctx context.Context) string {
	return metadataValueFromIncomingContext(ctx, LocaleHeader)
}

// PeerAddrFromContext returns the transport peer address, or "".
func PeerAddrFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

// IsPrintableASCII reports whether a string contains only printable ASCII characters.
func IsPrintableASCII(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x20 || value[i] > 0x7e {
			return false
		}
	}
	return true
}

// FirstMetadataValue returns the first printable ASCII metadata value for a key.
func FirstMetadataValue(md metadata.MD, key string) string {
	if len(md) == 0 {
		return ""
	}
	for mdKey, values := range md {
		if !strings.EqualFold(mdKey, key) {
			continue
		}
		for _, value := range values {
			if IsPrintableASCII(value) {
				return value
			}
		}
	}
	return ""
}

// UnaryServerInterceptor attaches a request ID to every unary call, reusing
// the caller's when present, and echoes it in the response headers.
func UnaryServerInterceptor(idGenerator func() (string, error)) grpc.UnaryServerInterceptor {
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		updatedCtx, requestID, err := ensureRequestMetadata(ctx, idGenerator)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "ensure request metadata: %v", err)
		}
		if err := grpc.SetHeader(updatedCtx, metadata.Pairs(RequestIDHeader, requestID)); err != nil {
			return nil, status.Errorf(codes.Internal, "set response metadata: %v", err)
		}
		return handler(updatedCtx, req)
	}
}

func ensureRequestMetadata(ctx context.Context, idGenerator func() (string, error)) (context.Context, string, error) {
	requestID := metadataValueFromIncomingContext(ctx, RequestIDHeader)
	if requestID == "" {
		generated, err := idGenerator()
		if err != nil {
			return nil, "", err
		}
		requestID = generated
	}
	return WithRequestID(ctx, requestID), requestID, nil
}

func metadataValueFromIncomingContext(ctx context.Context, header string) string {
	if ctx == nil {
		return ""
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return FirstMetadataValue(md, header)
}
