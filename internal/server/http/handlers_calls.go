package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/calls"
)

const maxUploadMemory = 32 << 20

func (s *Server) handleCallUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	res, err := s.calls.SaveUpload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCallByPhone(w http.ResponseWriter, r *http.Request) {
	tel := strings.TrimSpace(r.URL.Query().Get("tel"))
	if tel == "" {
		writeBadRequest(w, "tel is required")
		return
	}

	member, err := s.calls.FindByPhone(r.Context(), tel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	member, err := s.calls.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.calls.Members(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]calls.Member{"members": members})
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	var req calls.StatusUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": s.calls.UpdateStatus(r.Context(), req)})
}
