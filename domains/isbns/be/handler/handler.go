package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-erp/folio/domains/isbns/be/service"
	platformlogging "github.com/folio-erp/folio/platform/go/logging"
)

type operation string

const (
	importOperation    operation = "isbnImport"
	assignOperation    operation = "isbnAssign"
	statsOperation     operation = "isbnStats"
	listOperation      operation = "isbnList"
	previewOperation   operation = "isbnPreview"
	reconcileOperation operation = "isbnReconcile"
)

const maxBodyBytes = 1 << 20

// Handler exposes the ISBN service over HTTP using the {success, data, error, code} envelope.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("isbn service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// RouteOptions attaches extra middleware to individual routes.
type RouteOptions struct {
	Import    []func(http.Handler) http.Handler
	Reconcile []func(http.Handler) http.Handler
}

// Routes registers the ISBN endpoints on r. Paths are relative to the API base path.
func (h *Handler) Routes(r chi.Router, opts RouteOptions) {
	r.With(opts.Import...).Post("/isbns/import", h.ImportBatch)
	r.Get("/isbns/stats", h.Stats)
	r.Get("/isbns/preview", h.Preview)
	r.With(opts.Reconcile...).Get("/isbns/reconciliation", h.Reconcile)
	r.Get("/isbns", h.List)
	r.Post("/titles/{titleId}/isbn", h.Assign)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type importRequest struct {
	ISBNs    []string   `json:"isbns"`
	PrefixID *uuid.UUID `json:"prefixId,omitempty"`
}

type assignRequest struct {
	PrefixID *uuid.UUID `json:"prefixId,omitempty"`
	ISBNID   *uuid.UUID `json:"isbnId,omitempty"`
}

func (h *Handler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	var body importRequest
	if err := decodeBody(w, r, &body, false); err != nil {
		h.writeInvalid(w, r, importOperation, "Request body must be a JSON object with an isbns array")
		return
	}

	result, err := h.svc.ImportBatch(r.Context(), service.ImportInput{Values: body.ISBNs, PrefixID: body.PrefixID})
	if err != nil {
		h.writeError(w, r, importOperation, err, result)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: result})
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	titleID, err := uuid.Parse(chi.URLParam(r, "titleId"))
	if err != nil {
		h.writeInvalid(w, r, assignOperation, "titleId must be a UUID")
		return
	}

	var body assignRequest
	if err := decodeBody(w, r, &body, true); err != nil {
		h.writeInvalid(w, r, assignOperation, "Request body must be a JSON object")
		return
	}

	assignment, err := h.svc.Assign(r.Context(), service.AssignInput{
		TitleID:      titleID,
		PrefixID:     body.PrefixID,
		IdentifierID: body.ISBNID,
	})
	if err != nil {
		h.writeError(w, r, assignOperation, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: assignment})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, statsOperation, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{}

	if v := q.Get("status"); v != "" {
		opts.Status = &v
	}
	if v := q.Get("search"); v != "" {
		opts.Search = &v
	}
	prefixID, ok := h.optionalUUID(w, r, listOperation, "prefixId")
	if !ok {
		return
	}
	opts.PrefixID = prefixID

	for name, target := range map[string]*int{"page": &opts.Page, "pageSize": &opts.PageSize} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeInvalid(w, r, listOperation, name+" must be a positive integer")
			return
		}
		*target = n
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, listOperation, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	prefixID, ok := h.optionalUUID(w, r, previewOperation, "prefixId")
	if !ok {
		return
	}

	preview, err := h.svc.PreviewNext(r.Context(), prefixID)
	if err != nil {
		h.writeError(w, r, previewOperation, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: preview})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.svc.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, reconcileOperation, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"orphans": orphans,
		"count":   len(orphans),
	}})
}

func (h *Handler) optionalUUID(w http.ResponseWriter, r *http.Request, op operation, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeInvalid(w, r, op, name+" must be a UUID")
		return nil, false
	}
	return &id, true
}

func (h *Handler) writeInvalid(w http.ResponseWriter, r *http.Request, op operation, message string) {
	h.loggerFrom(r.Context()).Warn("isbn request rejected",
		zap.String("operation", string(op)),
		zap.String("reason", message),
	)
	writeJSON(w, http.StatusBadRequest, envelope{Error: message, Code: string(service.KindValidation)})
}

// writeError renders a service error. data is attached to the failure envelope when non-nil.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op operation, err error, data any) {
	status, message, code := classifyError(err)

	logger := h.loggerFrom(r.Context())
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
		zap.String("code", code),
		zap.Error(err),
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("isbn operation failed", fields...)
	case status == http.StatusNotFound:
		logger.Info("isbn resource not found", fields...)
	default:
		logger.Warn("isbn request rejected", fields...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, envelope{Data: data, Error: message, Code: code})
}

func classifyError(err error) (status int, message, code string) {
	f, ok := service.AsFailure(err)
	if !ok {
		return http.StatusInternalServerError, "An unexpected error occurred", "INTERNAL"
	}
	return statusForKind(f.Kind), f.Message, string(f.Kind)
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindEmptyBatch, service.KindBatchTooLarge:
		return http.StatusBadRequest
	case service.KindPermissionDenied:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindAlreadyAssigned, service.KindNotAvailable, service.KindPoolExhausted,
		service.KindAlreadyExists, service.KindImportConflict:
		return http.StatusConflict
	case service.KindImportRejected:
		return http.StatusUnprocessableEntity
	case service.KindAllocationContended, service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON object into dst. An empty body is accepted only when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return io.EOF
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
