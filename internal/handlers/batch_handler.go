package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/services/batch"
)

// BatchHandler drives the batch transform task
type BatchHandler struct {
	executor *batch.Executor
	logger   arbor.ILogger
}

func NewBatchHandler(executor *batch.Executor, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		executor: executor,
		logger:   logger,
	}
}

type createTaskRequest struct {
	AssetIDs []string `json:"asset_ids" validate:"required,min=1,max=10000,dive,required"`
}

// CreateTaskHandler starts a task over the given assets
func (h *BatchHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req createTaskRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	st, err := h.executor.CreateTask(r.Context(), req.AssetIDs)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteStarted(w, st)
}

// CancelTaskHandler requests cancellation of the running task
func (h *BatchHandler) CancelTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	st, err := h.executor.CancelTask(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (h *BatchHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	st, err := h.executor.GetStatus(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if st == nil {
		WriteError(w, http.StatusNotFound, "no batch task has been created")
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (h *BatchHandler) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.executor.Settings())
}

// CheckReferencesHandler counts referenced assets among a prospective task's inputs
func (h *BatchHandler) CheckReferencesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req IDsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	referenced, err := h.executor.CountReferenced(r.Context(), req.AssetIDs)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{
		"total":      len(req.AssetIDs),
		"referenced": referenced,
	})
}
