package requesttrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := AuditInfo{ActorKind: ActorKindUser, UserID: ptr("user-123"), RequestID: "req-abc"}

	ctx := IntoContext(context.Background(), audit)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, audit, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}

func TestFromCredentials(t *testing.T) {
	creds := &platformauth.UserCredentials{Id: "user-456", TenantID: ptr("tenant-1")}

	audit, err := FromCredentials(creds, "req-xyz")
	require.NoError(t, err)
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.NotNil(t, audit.UserID)
	require.Equal(t, "user-456", *audit.UserID)
	require.Equal(t, "tenant-1", *audit.TenantID)
	require.Equal(t, "req-xyz", audit.RequestID)
}

func TestFromCredentialsMissingUser(t *testing.T) {
	_, err := FromCredentials(&platformauth.UserCredentials{}, "req-1")
	require.Error(t, err)
}

func TestAnonymous(t *testing.T) {
	audit := Anonymous("req-anon")
	require.Equal(t, ActorKindAnonymous, audit.ActorKind)
	require.Nil(t, audit.UserID)
	require.Equal(t, "req-anon", audit.RequestID)
}

func TestSystem(t *testing.T) {
	audit := System("req-sys")
	require.Equal(t, ActorKindSystem, audit.ActorKind)
	require.Nil(t, audit.UserID)
}

func TestActorID(t *testing.T) {
	require.Equal(t, "user-1", AuditInfo{ActorKind: ActorKindUser, UserID: ptr("user-1")}.ActorID())
	require.Equal(t, "system", System("r").ActorID())
	require.Equal(t, "anonymous", AuditInfo{}.ActorID())
}

func TestFromCredentialsCopiesUserID(t *testing.T) {
	creds := &platformauth.UserCredentials{Id: "user-1"}
	audit, err := FromCredentials(creds, "req-1")
	require.NoError(t, err)

	creds.Id = "changed"
	require.Equal(t, "user-1", audit.ActorID())
}

func TestLogFields(t *testing.T) {
	fields := System("req-sys").LogFields()
	require.Len(t, fields, 2)
	require.Equal(t, "actor_kind", fields[0].Key)
	require.Equal(t, "system", fields[0].String)
	require.Equal(t, "actor_id", fields[1].Key)
	require.Equal(t, "system", fields[1].String)
}

func ptr[T any](v T) *T { return &v }
