package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/services/cleanup"
)

// CleanupLogHandler serves the deletion audit log
type CleanupLogHandler struct {
	service *cleanup.Service
	logger  arbor.ILogger
}

func NewCleanupLogHandler(service *cleanup.Service, logger arbor.ILogger) *CleanupLogHandler {
	return &CleanupLogHandler{
		service: service,
		logger:  logger,
	}
}

func (h *CleanupLogHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := cleanup.Query{
		Page:     QueryInt(r, "page", 1),
		Size:     QueryInt(r, "size", 0),
		Reason:   q.Get("reason"),
		Filename: q.Get("filename"),
	}
	if !Validate(w, query) {
		return
	}

	page, err := h.service.List(r.Context(), query)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (h *CleanupLogHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (h *CleanupLogHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteSuccess(w, "Cleanup logs cleared")
}
