package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// Error codes sent in the "code" field of error bodies.
const (
	CodeTokenRequired       = "TOKEN_REQUIRED"
	CodeAccessExpired       = "ACCESS_EXPIRED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeRefreshExpired      = "REFRESH_EXPIRED"
	CodeUserExists          = "USER_EXISTS"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodePasswordMismatch    = "PASSWORD_NOT_MATCH"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnavailable         = "UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorTable = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{common.ErrTokenRequired, http.StatusUnauthorized, CodeTokenRequired, "authorization token required"},
	{common.ErrAccessExpired, http.StatusUnauthorized, CodeAccessExpired, "access token expired or invalid"},
	{common.ErrInvalidRefreshToken, http.StatusUnauthorized, CodeInvalidRefreshToken, "refresh token invalid"},
	{common.ErrRefreshExpired, http.StatusUnauthorized, CodeRefreshExpired, "refresh token expired"},
	{common.ErrPasswordMismatch, http.StatusUnauthorized, CodePasswordMismatch, "password does not match"},
	{common.ErrUserNotFound, http.StatusNotFound, CodeUserNotFound, "user not found"},
	{common.ErrUserExists, http.StatusConflict, CodeUserExists, "user already exists"},
	{common.ErrorNotFound, http.StatusNotFound, CodeNotFound, "not found"},
}

// classify maps an error to its HTTP status and code. Unknown errors are 500.
func classify(err error) (int, string, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code, e.message
		}
	}
	return http.StatusInternalServerError, CodeInternal, "internal server error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: message})
}

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
