package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/whitelist"
	"github.com/ternarybob/reclaim/internal/storage/badger"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: empty", common.ErrValidation):      http.StatusBadRequest,
		fmt.Errorf("group: %w", common.ErrNotFound):        http.StatusNotFound,
		fmt.Errorf("%w: running", common.ErrStateConflict): http.StatusConflict,
		fmt.Errorf("status: %w", common.ErrConflict):       http.StatusConflict,
		fmt.Errorf("disk full"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusCode(err), err.Error())
	}
}

func TestDecodeJSONValidates(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"asset_ids":["a1"]}`, true},
		{"empty list", `{"asset_ids":[]}`, false},
		{"blank id", `{"asset_ids":[""]}`, false},
		{"malformed", `{"asset_ids":`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			var req IDsRequest
			assert.Equal(t, tc.ok, DecodeJSON(w, r, &req))
			if !tc.ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func newWhitelistHandler(t *testing.T) *WhitelistHandler {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewWhitelistHandler(whitelist.NewService(manager.WhitelistStorage(), logger), logger)
}

func TestWhitelistHandlers(t *testing.T) {
	h := newWhitelistHandler(t)

	w := httptest.NewRecorder()
	h.CreateHandler(w, httptest.NewRequest(http.MethodPost, "/api/whitelist",
		strings.NewReader(`{"url_pattern":"https://old.example.com/","match_mode":"prefix"}`)))
	require.Equal(t, http.StatusCreated, w.Code)
	var entry models.WhitelistEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, models.MatchModePrefix, entry.MatchMode)

	w = httptest.NewRecorder()
	h.CreateHandler(w, httptest.NewRequest(http.MethodPost, "/api/whitelist",
		strings.NewReader(`{"url_pattern":"x","match_mode":"regex"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.CheckHandler(w, httptest.NewRequest(http.MethodGet, "/api/whitelist/check?url=https://old.example.com/a.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"whitelisted":true`)

	r := httptest.NewRequest(http.MethodDelete, "/api/whitelist/missing", nil)
	r.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.DeleteHandler(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = httptest.NewRequest(http.MethodDelete, "/api/whitelist/"+entry.ID, nil)
	r.SetPathValue("id", entry.ID)
	w = httptest.NewRecorder()
	h.DeleteHandler(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
