package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

func (s *Server) apiListURLs(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.List(r.Context())
	if err != nil {
		if s.timedOut(r, "list urls", err) {
			return
		}
		s.logger.Error("list urls failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, r, http.StatusOK, items)
}

func (s *Server) apiShowURL(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "url not found")
		return
	}
	item, err := s.service.Latest(r.Context(), id)
	if err != nil {
		if errors.Is(err, analyzer.ErrURLNotFound) {
			s.writeError(w, r, http.StatusNotFound, "url not found")
			return
		}
		if s.timedOut(r, "show url", err) {
			return
		}
		s.logger.Error("show url failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, r, http.StatusOK, item)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("write JSON failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, map[string]string{"error": msg})
}
