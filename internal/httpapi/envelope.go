package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"lovedev.org/internal/auth"
)

// errorBody is the detail block nested inside every error envelope.
type errorBody struct {
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	Status      int               `json:"status"`
	Path        string            `json:"path"`
	Timestamp   time.Time         `json:"timestamp"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess renders the success envelope around the payload.
func writeSuccess(w http.ResponseWriter, r *http.Request, code int, message string, data any) {
	payload := map[string]any{
		"success":   true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
	if data != nil {
		payload["data"] = data
	}
	if rid := auth.RequestMetaFrom(r.Context()).RequestID; rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeError renders the error envelope with a stable machine code.
func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	writeErrorFields(w, r, code, errCode, msg, nil)
}

func writeErrorFields(w http.ResponseWriter, r *http.Request, code int, errCode, msg string, fields map[string]string) {
	payload := map[string]any{
		"success": false,
		"message": msg,
		"error": errorBody{
			Error:       errCode,
			Message:     msg,
			Status:      code,
			Path:        r.URL.Path,
			Timestamp:   time.Now().UTC(),
			FieldErrors: fields,
		},
	}
	if rid := auth.RequestMetaFrom(r.Context()).RequestID; rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleAuthError translates a domain error into status plus machine code.
// Raw internal error text never reaches the client.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, auth.ErrEmailNotVerified):
		writeError(w, r, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "email address is not verified")
	case errors.Is(err, auth.ErrAccountBanned):
		writeError(w, r, http.StatusForbidden, "ACCOUNT_BANNED", "account is banned")
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, r, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is not active")
	case errors.Is(err, auth.ErrAlreadyVerified):
		writeError(w, r, http.StatusBadRequest, "ALREADY_VERIFIED", "email is already verified")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, r, http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "token is invalid")
	case errors.Is(err, auth.ErrTooSoon):
		writeError(w, r, http.StatusTooManyRequests, "TOO_SOON", "verification email was sent recently, try again later")
	case errors.Is(err, auth.ErrLastRole):
		writeError(w, r, http.StatusBadRequest, "LAST_ROLE", "cannot remove the user's last role")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient privileges")
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}
