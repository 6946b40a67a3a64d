package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWritesCloudSeverities(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(Config{Component: "cli", Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Warn("isbn request rejected", zap.String("tenant_id", "t-1"))
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "WARNING", line["severity"])
	require.Equal(t, "cli", line["component"])
	require.Equal(t, "t-1", line["tenant_id"])
	require.Equal(t, "isbn request rejected", line["message"])
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithFieldsEnrichesContextLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("tenant_id", "t-1"))

	logger, ok := FromContext(ctx)
	require.True(t, ok)
	logger.Info("hello")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "t-1", logs.All()[0].ContextMap()["tenant_id"])

	bare := context.Background()
	require.Equal(t, bare, WithFields(bare, zap.String("tenant_id", "t-1")))
}

func TestRequestLoggerLevelFollowsStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusConflict)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/titles/x/isbn", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, zapcore.WarnLevel, entry.Level)
	require.EqualValues(t, http.StatusConflict, entry.ContextMap()["status"])
}
