// Package interceptors holds the unary gRPC interceptors of the scoring
// service.
package interceptors

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	grpcmeta "github.com/louisbranch/questline/internal/services/scoring/api/grpc/metadata"
	"github.com/louisbranch/questline/internal/services/scoring/domain/abuse"
	"github.com/louisbranch/questline/internal/services/scoring/observability/audit"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

// Enforcer applies task-mutation limits for an identity.
type Enforcer interface {
	EnforceTaskMutationLimits(ctx context.Context, id abuse.Identity) error
}

// RateLimitInterceptor runs the abuse gate before the guarded methods reach
// their handlers. Other methods pass through uncounted. Rejections and
// counter store failures are audited; both abort the call.
func RateLimitInterceptor(gate Enforcer, emitter *audit.Emitter, guardedMethods ...string) grpc.UnaryServerInterceptor {
	guarded := make(map[string]struct{}, len(guardedMethods))
	for _, method := range guardedMethods {
		guarded[method] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if gate == nil {
			return handler(ctx, req)
		}
		if _, ok := guarded[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		id := IdentityFromContext(ctx, req)
		err := gate.EnforceTaskMutationLimits(ctx, id)
		if err == nil {
			return handler(ctx, req)
		}

		auditRejection(ctx, emitter, info.FullMethod, req, err)
		return nil, apperrors.HandleError(err, grpcmeta.LocaleFromContext(ctx))
	}
}

// IdentityFromContext collects the scopes a call is counted under: the API
// key header, the client IP from forwarded-for or the transport peer, and the
// request's external user id.
func IdentityFromContext(ctx context.Context, req any) abuse.Identity {
	return abuse.Identity{
		APIKey:         grpcmeta.APIKeyFromContext(ctx),
		ClientIP:       abuse.ClientIPFrom(grpcmeta.ForwardedForFromContext(ctx), grpcmeta.PeerAddrFromContext(ctx)),
		ExternalUserID: requestField(req, "external_user_id"),
	}
}

func auditRejection(ctx context.Context, emitter *audit.Emitter, method string, req any, cause error) {
	evt := storage.AuditEvent{
		GameID:         requestField(req, "game_id"),
		ExternalTaskID: requestField(req, "external_task_id"),
		ExternalUserID: requestField(req, "external_user_id"),
		RequestID:      grpcmeta.RequestIDFromContext(ctx),
		Attributes:     map[string]any{"method": method},
	}

	var limitErr *abuse.RateLimitError
	if errors.As(cause, &limitErr) {
		evt.EventName = audit.EventRateLimitExceeded
		evt.Severity = string(audit.SeverityWarn)
		evt.Attributes["scope"] = string(limitErr.Scope)
		evt.Attributes["window"] = limitErr.Window
		evt.Attributes["limit"] = limitErr.Limit
		evt.Attributes["count"] = limitErr.Count
		evt.Attributes["retry_after_seconds"] = strconv.FormatFloat(limitErr.RetryAfter.Seconds(), 'f', 0, 64)
		log.Printf("rate limit %s: scope=%s window=%s count=%d limit=%d", method, limitErr.Scope, limitErr.Window, limitErr.Count, limitErr.Limit)
	} else {
		evt.EventName = audit.EventRateLimitStoreError
		evt.Severity = string(audit.SeverityError)
		evt.Attributes["error"] = cause.Error()
		log.Printf("rate limit %s: counter store: %v", method, cause)
	}

	if err := emitter.Emit(ctx, evt); err != nil {
		log.Printf("audit emit %s: %v", method, err)
	}
}

// requestField reads a top-level string field from a struct-typed request.
func requestField(req any, name string) string {
	msg, ok := req.(*structpb.Struct)
	if !ok || msg == nil {
		return ""
	}
	value, ok := msg.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(value.GetStringValue())
}
