package requesttrace

import (
	"context"
	"errors"

	"go.uber.org/zap"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
)

type contextKey struct{}

// ActorKind says who initiated a pool operation.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo is what ISBN audit entries and assignments are stamped with.
// UserID is set only for user actors. TenantID mirrors the token claim and may be nil.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	TenantID  *string
	RequestID string
}

// IntoContext stores audit on ctx.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, audit)
}

// FromContext returns the AuditInfo on ctx, if any.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(contextKey{}).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous never fails; callers without trace info are recorded as anonymous.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds a user AuditInfo. Credentials without a user id are rejected.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.Id == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	userID := creds.Id
	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &userID,
		TenantID:  creds.TenantID,
		RequestID: requestID,
	}, nil
}

// ActorID is the value written to assigned_by and audit actor_id: the user id,
// or the actor kind when there is no user.
func (a AuditInfo) ActorID() string {
	if a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	if a.ActorKind == "" {
		return string(ActorKindAnonymous)
	}
	return string(a.ActorKind)
}

// LogFields identifies the actor on log lines. The request id is left to the request logger.
func (a AuditInfo) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("actor_kind", string(a.ActorKind)),
		zap.String("actor_id", a.ActorID()),
	}
}

// Anonymous builds an AuditInfo for unauthenticated requests.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for operator tooling such as CLI imports.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
