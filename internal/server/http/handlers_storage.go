package http

import (
	"io"
	"net/http"
	"strconv"
	"time"
)

const presignTTL = 15 * time.Minute

type objectRequest struct {
	FileName string `json:"fileName"`
}

func (s *Server) storageAvailable(w http.ResponseWriter) bool {
	if s.storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: CodeUnavailable, Message: "storage not configured"})
		return false
	}
	return true
}

func (s *Server) handleStorageUpload(w http.ResponseWriter, r *http.Request) {
	if !s.storageAvailable(w) {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeBadRequest(w, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	key, err := s.storage.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"fileName": key})
}

func (s *Server) handleStorageDownload(w http.ResponseWriter, r *http.Request) {
	if !s.storageAvailable(w) {
		return
	}

	var req objectRequest
	if err := decodeJSON(w, r, &req); err != nil || req.FileName == "" {
		writeBadRequest(w, "fileName is required")
		return
	}

	obj, err := s.storage.Download(r.Context(), req.FileName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		s.log.Warn(r.Context(), "download interrupted", "file", req.FileName, "error", err)
	}
}

func (s *Server) handleStoragePresign(w http.ResponseWriter, r *http.Request) {
	if !s.storageAvailable(w) {
		return
	}

	var req objectRequest
	if err := decodeJSON(w, r, &req); err != nil || req.FileName == "" {
		writeBadRequest(w, "fileName is required")
		return
	}

	url, err := s.storage.PresignDownload(r.Context(), req.FileName, presignTTL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
