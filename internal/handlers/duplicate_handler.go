package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/services/duplicates"
)

// DuplicateHandler serves duplicate scans and duplicate cleanup
type DuplicateHandler struct {
	scanner *duplicates.Scanner
	service *duplicates.Service
	logger  arbor.ILogger
}

func NewDuplicateHandler(scanner *duplicates.Scanner, service *duplicates.Service, logger arbor.ILogger) *DuplicateHandler {
	return &DuplicateHandler{
		scanner: scanner,
		service: service,
		logger:  logger,
	}
}

// ScanHandler starts a duplicate pass
func (h *DuplicateHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	st, err := h.scanner.StartScan(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteStarted(w, st)
}

func (h *DuplicateHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	st, err := h.service.Status(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

type pageQuery struct {
	Page int `validate:"omitempty,min=1"`
	Size int `validate:"omitempty,min=1,max=500"`
}

// ListHandler returns a page of duplicate groups, largest savings first
func (h *DuplicateHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	query := pageQuery{Page: QueryInt(r, "page", 1), Size: QueryInt(r, "size", 0)}
	if !Validate(w, query) {
		return
	}

	page, err := h.service.List(r.Context(), query.Page, query.Size)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// GetHandler returns one group: GET /api/duplicates/{group}
func (h *DuplicateHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	group, err := h.service.Get(r.Context(), r.PathValue("group"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, group)
}

func (h *DuplicateHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteSuccess(w, "Duplicate results cleared")
}

// DeleteHandler deletes selected members of a group: POST /api/cleanup/duplicates/{group}
func (h *DuplicateHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req IDsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.DeleteDuplicates(r.Context(), r.PathValue("group"), req.AssetIDs, req.Operator)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
