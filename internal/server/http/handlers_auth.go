package http

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/authn"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	DeviceID string `json:"deviceId"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type meResponse struct {
	UserID    int64  `json:"userId"`
	Name      string `json:"name"`
	AuthCode  int    `json:"authCode"`
	ExpiresAt int64  `json:"expiresAt"`
}

// deviceID prefers the body value and falls back to the X-Device-Id header.
func deviceID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(common.DeviceIDHeaderName)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}
	if req.Age < 0 {
		writeBadRequest(w, "age must not be negative")
		return
	}

	pair, err := s.sessions.Register(r.Context(), services.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Age:      req.Age,
		DeviceID: deviceID(r, req.DeviceID),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	pair, err := s.sessions.Login(r.Context(), req.Email, req.Password, deviceID(r, req.DeviceID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refreshToken is required")
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), req.RefreshToken, deviceID(r, req.DeviceID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout is not behind the authenticator: a session whose refresh
// entry is already gone can still be logged out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := authn.BearerToken(r.Header.Get(common.AuthorizationHeaderName))
	if !ok {
		s.writeError(w, r, common.ErrTokenRequired)
		return
	}

	if err := s.sessions.Logout(r.Context(), token, r.Header.Get(common.DeviceIDHeaderName)); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := authn.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, common.ErrTokenRequired)
		return
	}

	resp := meResponse{UserID: claims.UserID, Name: claims.Name, AuthCode: claims.AuthCode}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}
