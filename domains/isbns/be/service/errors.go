package service

import (
	"errors"
	"fmt"

	"github.com/folio-erp/folio/domains/isbns/be/codec"
)

// Kind classifies a Failure. The string doubles as the machine-readable error code.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindAlreadyAssigned     Kind = "ALREADY_ASSIGNED"
	KindNotAvailable        Kind = "NOT_AVAILABLE"
	KindPoolExhausted       Kind = "POOL_EXHAUSTED"
	KindAllocationContended Kind = "ALLOCATION_CONTENDED"
	KindAlreadyExists       Kind = "ALREADY_EXISTS"
	KindImportRejected      Kind = "IMPORT_REJECTED"
	KindImportConflict      Kind = "IMPORT_CONFLICT"
	KindBatchTooLarge       Kind = "BATCH_TOO_LARGE"
	KindEmptyBatch          Kind = "EMPTY_BATCH"
	KindPermissionDenied    Kind = "PERMISSION_DENIED"
	KindValidation          Kind = "VALIDATION"
	KindUnavailable         Kind = "UNAVAILABLE"
)

// Domain sentinel errors. Every Failure unwraps to exactly one of them.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyAssigned     = errors.New("title already assigned")
	ErrNotAvailable        = errors.New("isbn not available")
	ErrPoolExhausted       = errors.New("isbn pool exhausted")
	ErrAllocationContended = errors.New("isbn allocation contended")
	ErrAlreadyExists       = errors.New("isbn already exists")
	ErrImportRejected      = errors.New("isbn import rejected")
	ErrImportConflict      = errors.New("isbn import conflict")
	ErrBatchTooLarge       = errors.New("isbn batch too large")
	ErrEmptyBatch          = errors.New("isbn batch empty")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrValidation          = errors.New("validation error")
	ErrUnavailable         = errors.New("service unavailable")
)

var sentinels = map[Kind]error{
	KindNotFound:            ErrNotFound,
	KindAlreadyAssigned:     ErrAlreadyAssigned,
	KindNotAvailable:        ErrNotAvailable,
	KindPoolExhausted:       ErrPoolExhausted,
	KindAllocationContended: ErrAllocationContended,
	KindAlreadyExists:       ErrAlreadyExists,
	KindImportRejected:      ErrImportRejected,
	KindImportConflict:      ErrImportConflict,
	KindBatchTooLarge:       ErrBatchTooLarge,
	KindEmptyBatch:          ErrEmptyBatch,
	KindPermissionDenied:    ErrPermissionDenied,
	KindValidation:          ErrValidation,
	KindUnavailable:         ErrUnavailable,
}

// Failure is the error returned by every Service operation. Message is safe to show to end users.
type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return sentinels[f.Kind]
}

// Retryable reports whether the caller may retry the same request unchanged.
func (f *Failure) Retryable() bool {
	return f.Kind == KindAllocationContended || f.Kind == KindUnavailable || f.Kind == KindImportConflict
}

func fail(kind Kind, format string, args ...any) *Failure {
	if len(args) == 0 {
		return &Failure{Kind: kind, Message: format}
	}
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts the Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

const (
	msgPermissionDenied = "You do not have permission to perform this action"
	msgUnavailable      = "The service is temporarily unavailable, please retry"
)

// Reasons raised by the importer on top of the codec reasons.
const (
	ReasonDuplicateInBatch codec.Reason = "DuplicateInBatch"
	ReasonAlreadyExists    codec.Reason = "AlreadyExists"
	ReasonPrefixMismatch   codec.Reason = "PrefixMismatch"
)

// ErrorDetail reports why one submitted value was refused.
type ErrorDetail struct {
	Value   string       `json:"value"`
	Reason  codec.Reason `json:"reason"`
	Message string       `json:"message"`
}

func newErrorDetail(value string, reason codec.Reason) ErrorDetail {
	return ErrorDetail{Value: value, Reason: reason, Message: reasonMessage(reason)}
}

func reasonMessage(reason codec.Reason) string {
	switch reason {
	case ReasonDuplicateInBatch:
		return "Appears more than once in this batch"
	case ReasonAlreadyExists:
		return "Already present in the ISBN pool"
	case ReasonPrefixMismatch:
		return "Does not belong to the selected prefix"
	default:
		return reason.Message()
	}
}

func isDuplicateReason(reason codec.Reason) bool {
	return reason == ReasonDuplicateInBatch || reason == ReasonAlreadyExists
}
