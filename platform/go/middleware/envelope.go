package middleware

import (
	"encoding/json"
	"net/http"
)

// Codes used by platform middleware in the {success, error, code} envelope.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodePermission      = "PERMISSION_DENIED"
	CodeValidation      = "VALIDATION"
)

// WriteEnvelopeError writes a failed {success, error, code} body with status.
func WriteEnvelopeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// ValidationErrorHandler renders OpenAPI request validation failures in the envelope.
// Security failures arrive as 401 and are reported as UNAUTHENTICATED.
func ValidationErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	code := CodeValidation
	switch statusCode {
	case http.StatusUnauthorized:
		code = CodeUnauthenticated
	case http.StatusForbidden:
		code = CodePermission
	}
	WriteEnvelopeError(w, statusCode, code, message)
}
