package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/services/references"
)

// ReferenceHandler serves reference scans and unreferenced asset cleanup
type ReferenceHandler struct {
	scanner *references.Scanner
	service *references.Service
	logger  arbor.ILogger
}

func NewReferenceHandler(scanner *references.Scanner, service *references.Service, logger arbor.ILogger) *ReferenceHandler {
	return &ReferenceHandler{
		scanner: scanner,
		service: service,
		logger:  logger,
	}
}

// ScanHandler starts a reference pass
func (h *ReferenceHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
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

func (h *ReferenceHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
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

// ListHandler returns a page of assets with their reference counts
func (h *ReferenceHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := references.Query{
		Page:    QueryInt(r, "page", 1),
		Size:    QueryInt(r, "size", 0),
		Filter:  q.Get("filter"),
		Keyword: q.Get("keyword"),
		Sort:    q.Get("sort"),
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

// ClearHandler discards the reference results
func (h *ReferenceHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteSuccess(w, "Reference results cleared")
}

// PreviewHandler summarizes a prospective unreferenced cleanup
func (h *ReferenceHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req IDsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	preview, err := h.service.Preview(r.Context(), req.AssetIDs)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, preview)
}

// DeleteUnreferencedHandler deletes assets that the last pass found unreferenced
func (h *ReferenceHandler) DeleteUnreferencedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req IDsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.DeleteUnreferenced(r.Context(), req.AssetIDs, req.Operator)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// BrokenLinkHandler serves the broken link results of reference passes
type BrokenLinkHandler struct {
	scanner *references.Scanner
	service *references.BrokenLinks
	logger  arbor.ILogger
}

func NewBrokenLinkHandler(scanner *references.Scanner, service *references.BrokenLinks, logger arbor.ILogger) *BrokenLinkHandler {
	return &BrokenLinkHandler{
		scanner: scanner,
		service: service,
		logger:  logger,
	}
}

// ScanHandler starts a reference pass, which also collects broken links
func (h *BrokenLinkHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if _, err := h.scanner.StartScan(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	st, err := h.service.Status(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteStarted(w, st)
}

func (h *BrokenLinkHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
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

func (h *BrokenLinkHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := references.BrokenLinkQuery{
		Page:       QueryInt(r, "page", 1),
		Size:       QueryInt(r, "size", 0),
		SourceType: q.Get("sourceType"),
		Keyword:    q.Get("keyword"),
		Sort:       q.Get("sort"),
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

func (h *BrokenLinkHandler) SourceTypesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	types, err := h.service.SourceTypes(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, types)
}

type whitelistURLsRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,dive,required"`
	Note string   `json:"note" validate:"max=500"`
}

// WhitelistHandler whitelists broken link URLs and drops them from the results
func (h *BrokenLinkHandler) WhitelistHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req whitelistURLsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	added, err := h.service.AddToWhitelist(r.Context(), req.URLs, req.Note)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, added)
}

func (h *BrokenLinkHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteSuccess(w, "Broken link results cleared")
}
