package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/services/whitelist"
)

// WhitelistHandler manages the broken link whitelist
type WhitelistHandler struct {
	service *whitelist.Service
	logger  arbor.ILogger
}

func NewWhitelistHandler(service *whitelist.Service, logger arbor.ILogger) *WhitelistHandler {
	return &WhitelistHandler{
		service: service,
		logger:  logger,
	}
}

func (h *WhitelistHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

// SearchHandler filters entries by keyword: GET /api/whitelist/search?keyword=
func (h *WhitelistHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := h.service.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

type createWhitelistRequest struct {
	URLPattern string `json:"url_pattern" validate:"required,max=2048"`
	MatchMode  string `json:"match_mode" validate:"omitempty,oneof=exact prefix"`
	Note       string `json:"note" validate:"max=500"`
}

func (h *WhitelistHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req createWhitelistRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.Add(r.Context(), req.URLPattern, req.MatchMode, req.Note)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

// BatchHandler adds exact entries for a list of URLs
func (h *WhitelistHandler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req whitelistURLsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	added, err := h.service.AddBatch(r.Context(), req.URLs, req.Note)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, added)
}

// DeleteHandler removes one entry: DELETE /api/whitelist/{id}
func (h *WhitelistHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteSuccess(w, "Whitelist entry deleted")
}

func (h *WhitelistHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteSuccess(w, "Whitelist cleared")
}

// CheckHandler reports whether a URL is whitelisted: GET /api/whitelist/check?url=
func (h *WhitelistHandler) CheckHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	whitelisted, err := h.service.IsWhitelisted(r.Context(), url)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"url":         url,
		"whitelisted": whitelisted,
	})
}
