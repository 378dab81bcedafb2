package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/dtroode/taq-server/internal/model"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  validation.Errors `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to a status code. Internal error text is never sent.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)

	resp := errorResponse{Error: code, Message: model.UserMessage(err)}
	var fields validation.Errors
	if errors.As(err, &fields) {
		resp.Fields = fields
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, model.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, model.ErrProfileRequired):
		return http.StatusForbidden, "profile_required"
	case errors.Is(err, model.ErrLogoutInProgress):
		return http.StatusConflict, "logout_in_progress"
	case errors.Is(err, model.ErrSubmissionInProgress):
		return http.StatusConflict, "submission_in_progress"
	case errors.Is(err, model.ErrProfileExists):
		return http.StatusConflict, "profile_exists"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrIdentityPending):
		return http.StatusServiceUnavailable, "identity_pending"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return errors.Join(model.ErrValidation, err)
	}
	return nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// identityToken reads the provider token from the Authorization header or the SDK cookie.
func identityToken(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(IdentityCookie); err == nil {
		return c.Value
	}
	return ""
}
