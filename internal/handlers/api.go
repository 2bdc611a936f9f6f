package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
)

const (
	HealthOK          = "ok"
	HealthDegraded    = "degraded"    // a pass is past the stuck timeout
	HealthUnavailable = "unavailable" // status records cannot be read
)

// HealthReport is the body of /health
type HealthReport struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Scans  map[string]string `json:"scans,omitempty"` // scan type -> phase
	Batch  string            `json:"batch,omitempty"`
	Stuck  []string          `json:"stuck,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// VersionInfo is the body of /api/version
type VersionInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Build     string `json:"build"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// APIHandler serves health, version and the JSON 404
type APIHandler struct {
	store     *status.Store
	config    *common.Config
	logger    arbor.ILogger
	startedAt time.Time
}

func NewAPIHandler(store *status.Store, config *common.Config, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		store:     store,
		config:    config,
		logger:    logger,
		startedAt: time.Now(),
	}
}

func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, VersionInfo{
		Name:      "reclaim",
		Version:   common.GetVersion(),
		Build:     common.Build,
		GitCommit: common.GitCommit,
		GoVersion: runtime.Version(),
	})
}

// HealthHandler reports scan and batch phases. Unreadable status records
// answer 503; a stuck pass is reported as degraded with 200.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	report := h.Health(r.Context(), time.Now())
	code := http.StatusOK
	if report.Status == HealthUnavailable {
		h.logger.Warn().Str("error", report.Error).Msg("Health check failed")
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, report)
}

// Health builds the report as of now
func (h *APIHandler) Health(ctx context.Context, now time.Time) HealthReport {
	report := HealthReport{
		Status: HealthOK,
		Uptime: now.Sub(h.startedAt).Round(time.Second).String(),
	}
	if h.store == nil {
		return report
	}

	timeout := 5 * time.Minute
	if h.config != nil {
		timeout = h.config.ScanTimeout()
	}

	report.Scans = make(map[string]string, len(models.ScanTypes))
	for _, scanType := range models.ScanTypes {
		st, err := h.store.GetScan(ctx, scanType)
		if err != nil {
			report.Status = HealthUnavailable
			report.Error = err.Error()
			return report
		}
		report.Scans[string(scanType)] = string(st.Phase)
		if st.Phase == models.ScanPhaseScanning && status.IsStuck(st, timeout, now) {
			report.Stuck = append(report.Stuck, string(scanType))
		}
	}

	batch, err := h.store.GetBatch(ctx)
	if err != nil {
		report.Status = HealthUnavailable
		report.Error = err.Error()
		return report
	}
	if batch != nil {
		report.Batch = string(batch.Phase)
	}

	if len(report.Stuck) > 0 {
		report.Status = HealthDegraded
	}
	return report
}

func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}
