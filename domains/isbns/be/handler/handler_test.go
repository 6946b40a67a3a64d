package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/folio-erp/folio/domains/isbns/be/codec"
	"github.com/folio-erp/folio/domains/isbns/be/service"
)

type mockService struct {
	importFn    func(ctx context.Context, input service.ImportInput) (service.ImportResult, error)
	assignFn    func(ctx context.Context, input service.AssignInput) (service.Assignment, error)
	statsFn     func(ctx context.Context) (service.Stats, error)
	listFn      func(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	previewFn   func(ctx context.Context, prefixID *uuid.UUID) (service.Preview, error)
	reconcileFn func(ctx context.Context) ([]service.OrphanedAssignment, error)
}

func (m *mockService) ImportBatch(ctx context.Context, input service.ImportInput) (service.ImportResult, error) {
	if m.importFn == nil {
		panic("importFn not configured")
	}
	return m.importFn(ctx, input)
}

func (m *mockService) Assign(ctx context.Context, input service.AssignInput) (service.Assignment, error) {
	if m.assignFn == nil {
		panic("assignFn not configured")
	}
	return m.assignFn(ctx, input)
}

func (m *mockService) Stats(ctx context.Context) (service.Stats, error) {
	if m.statsFn == nil {
		panic("statsFn not configured")
	}
	return m.statsFn(ctx)
}

func (m *mockService) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, opts)
}

func (m *mockService) PreviewNext(ctx context.Context, prefixID *uuid.UUID) (service.Preview, error) {
	if m.previewFn == nil {
		panic("previewFn not configured")
	}
	return m.previewFn(ctx, prefixID)
}

func (m *mockService) Reconcile(ctx context.Context) ([]service.OrphanedAssignment, error) {
	if m.reconcileFn == nil {
		panic("reconcileFn not configured")
	}
	return m.reconcileFn(ctx)
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func serve(t *testing.T, svc service.Service, method, target, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	router := chi.NewRouter()
	New(svc, zaptest.NewLogger(t)).Routes(router, RouteOptions{})

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestImportBatchCreated(t *testing.T) {
	t.Parallel()

	prefixID := uuid.New()
	svc := &mockService{}
	svc.importFn = func(ctx context.Context, input service.ImportInput) (service.ImportResult, error) {
		require.Equal(t, []string{"9780306406157"}, input.Values)
		require.Equal(t, &prefixID, input.PrefixID)
		return service.ImportResult{Imported: 1, ErrorDetails: []service.ErrorDetail{}}, nil
	}

	rec, env := serve(t, svc, http.MethodPost, "/isbns/import", `{"isbns":["9780306406157"],"prefixId":"`+prefixID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.Success)

	var result service.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 1, result.Imported)
}

func TestImportBatchRejectedCarriesDetails(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.importFn = func(ctx context.Context, input service.ImportInput) (service.ImportResult, error) {
		return service.ImportResult{
				Errors: 1,
				ErrorDetails: []service.ErrorDetail{{
					Value:   "9780306406158",
					Reason:  codec.ReasonChecksumMismatch,
					Message: codec.ReasonChecksumMismatch.Message(),
				}},
			}, &service.Failure{
				Kind:    service.KindImportRejected,
				Message: "Import rejected: 1 of 1 values were refused, nothing was imported",
			}
	}

	rec, env := serve(t, svc, http.MethodPost, "/isbns/import", `{"isbns":["9780306406158"]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.False(t, env.Success)
	require.Equal(t, "IMPORT_REJECTED", env.Code)
	require.Contains(t, env.Error, "Import rejected")

	var result service.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.ErrorDetails, 1)
	require.Equal(t, codec.ReasonChecksumMismatch, result.ErrorDetails[0].Reason)
}

func TestImportBatchMalformedBody(t *testing.T) {
	t.Parallel()

	rec, env := serve(t, &mockService{}, http.MethodPost, "/isbns/import", `{"isbns":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION", env.Code)
}

func TestAssign(t *testing.T) {
	t.Parallel()

	titleID := uuid.New()
	isbnID := uuid.New()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	svc := &mockService{}
	svc.assignFn = func(ctx context.Context, input service.AssignInput) (service.Assignment, error) {
		require.Equal(t, titleID, input.TitleID)
		if input.IdentifierID != nil {
			require.Equal(t, isbnID, *input.IdentifierID)
		}
		return service.Assignment{ID: isbnID, Value: "9780306406157", TitleID: titleID, TitleName: "T", AssignedAt: now, AssignedByUserID: "u"}, nil
	}

	rec, env := serve(t, svc, http.MethodPost, "/titles/"+titleID.String()+"/isbn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var assignment service.Assignment
	require.NoError(t, json.Unmarshal(env.Data, &assignment))
	require.Equal(t, "9780306406157", assignment.Value)

	rec, _ = serve(t, svc, http.MethodPost, "/titles/"+titleID.String()+"/isbn", `{"isbnId":"`+isbnID.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = serve(t, svc, http.MethodPost, "/titles/not-a-uuid/isbn", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION", env.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		kind   service.Kind
		status int
	}{
		{service.KindPermissionDenied, http.StatusForbidden},
		{service.KindNotFound, http.StatusNotFound},
		{service.KindAlreadyAssigned, http.StatusConflict},
		{service.KindNotAvailable, http.StatusConflict},
		{service.KindPoolExhausted, http.StatusConflict},
		{service.KindAllocationContended, http.StatusServiceUnavailable},
		{service.KindUnavailable, http.StatusServiceUnavailable},
		{service.KindValidation, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			svc := &mockService{}
			svc.assignFn = func(ctx context.Context, input service.AssignInput) (service.Assignment, error) {
				return service.Assignment{}, &service.Failure{Kind: tc.kind, Message: "msg"}
			}

			rec, env := serve(t, svc, http.MethodPost, "/titles/"+uuid.NewString()+"/isbn", "{}")
			require.Equal(t, tc.status, rec.Code)
			require.False(t, env.Success)
			require.Equal(t, string(tc.kind), env.Code)
			require.Equal(t, "msg", env.Error)
			if tc.status == http.StatusServiceUnavailable {
				require.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}

	t.Run("unclassified error", func(t *testing.T) {
		svc := &mockService{}
		svc.statsFn = func(ctx context.Context) (service.Stats, error) {
			return service.Stats{}, errors.New("boom")
		}
		rec, env := serve(t, svc, http.MethodGet, "/isbns/stats", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, env.Error, "boom")
	})
}

func TestListParsesQuery(t *testing.T) {
	t.Parallel()

	prefixID := uuid.New()
	svc := &mockService{}
	svc.listFn = func(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
		require.Equal(t, "available", *opts.Status)
		require.Equal(t, "978", *opts.Search)
		require.Equal(t, prefixID, *opts.PrefixID)
		require.Equal(t, 2, opts.Page)
		require.Equal(t, 50, opts.PageSize)
		return service.ListResult{Identifiers: []service.Identifier{}, Page: 2, PageSize: 50}, nil
	}

	rec, env := serve(t, svc, http.MethodGet, "/isbns?status=available&search=978&page=2&pageSize=50&prefixId="+prefixID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	rec, env = serve(t, svc, http.MethodGet, "/isbns?page=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION", env.Code)
}

func TestRouteOptionsWrapSelectedRoutes(t *testing.T) {
	t.Parallel()

	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}

	svc := &mockService{}
	svc.statsFn = func(ctx context.Context) (service.Stats, error) { return service.Stats{}, nil }

	router := chi.NewRouter()
	New(svc, zaptest.NewLogger(t)).Routes(router, RouteOptions{Import: []func(http.Handler) http.Handler{blocked}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/isbns/import", strings.NewReader(`{"isbns":["x"]}`)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/isbns/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPreviewAndReconcile(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.previewFn = func(ctx context.Context, prefixID *uuid.UUID) (service.Preview, error) {
		require.Nil(t, prefixID)
		return service.Preview{AvailableCount: 4, Stale: true}, nil
	}
	svc.reconcileFn = func(ctx context.Context) ([]service.OrphanedAssignment, error) {
		return []service.OrphanedAssignment{{ISBNID: uuid.New(), Value: "9780306406157"}}, nil
	}

	rec, env := serve(t, svc, http.MethodGet, "/isbns/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var preview service.Preview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	require.True(t, preview.Stale)
	require.Equal(t, 4, preview.AvailableCount)

	rec, env = serve(t, svc, http.MethodGet, "/isbns/preview?prefixId=nope", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = serve(t, svc, http.MethodGet, "/isbns/reconciliation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, 1, payload.Count)
}
