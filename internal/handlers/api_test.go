package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
	"github.com/ternarybob/reclaim/internal/storage/badger"
)

func newAPIHandler(t *testing.T) (*APIHandler, *status.Store) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	store := status.NewStore(manager.StatusStorage(), nil, logger)
	return NewAPIHandler(store, common.NewDefaultConfig(), logger), store
}

func TestHealthReportsPhases(t *testing.T) {
	h, _ := newAPIHandler(t)

	w := httptest.NewRecorder()
	h.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, HealthOK, report.Status)
	assert.Len(t, report.Scans, len(models.ScanTypes))
	assert.Empty(t, report.Batch, "no task was ever created")
	assert.Empty(t, report.Stuck)
}

func TestHealthDegradedWhileScanIsStuck(t *testing.T) {
	h, store := newAPIHandler(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Hour)
	_, err := store.MutateScan(ctx, models.ScanTypeDuplicate, func(st *models.ScanStatus) error {
		st.Phase = models.ScanPhaseScanning
		st.StartTime = &started
		return nil
	})
	require.NoError(t, err)

	report := h.Health(ctx, time.Now())
	assert.Equal(t, HealthDegraded, report.Status)
	assert.Equal(t, []string{string(models.ScanTypeDuplicate)}, report.Stuck)
	assert.Equal(t, string(models.ScanPhaseScanning), report.Scans[string(models.ScanTypeDuplicate)])

	// Still within the timeout
	report = h.Health(ctx, started.Add(time.Minute))
	assert.Equal(t, HealthOK, report.Status)
}

func TestNotFoundNamesTheRoute(t *testing.T) {
	h, _ := newAPIHandler(t)

	w := httptest.NewRecorder()
	h.NotFoundHandler(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no route for GET /api/nope")
}
