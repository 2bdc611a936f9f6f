package duplicates

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/assets"
	"github.com/ternarybob/reclaim/internal/services/status"
	"github.com/ternarybob/reclaim/internal/storage/badger"
)

type fixture struct {
	manager   interfaces.StorageManager
	server    *httptest.Server
	store     *status.Store
	inventory interfaces.AssetInventory
	config    *common.Config
	scanner   *Scanner
	service   *Service
}

func newFixture(t *testing.T, files map[string][]byte) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(server.Close)

	config := common.NewDefaultConfig()
	config.Assets.UploadDir = t.TempDir()
	config.Scan.DuplicateConcurrency = 2

	store := status.NewStore(manager.StatusStorage(), nil, logger)
	inventory := assets.NewService(manager.AssetStorage(), config, logger)
	scanner := NewScanner(store, inventory, manager, config, logger)

	f := &fixture{
		manager:   manager,
		server:    server,
		store:     store,
		inventory: inventory,
		config:    config,
		scanner:   scanner,
		service:   NewService(store, scanner, inventory, manager, config, logger),
	}
	t.Cleanup(f.scanner.Wait)
	return f
}

func (f *fixture) addAsset(t *testing.T, id, path string, size int64, uploadedAt *time.Time) {
	t.Helper()
	require.NoError(t, f.manager.AssetStorage().SaveAsset(context.Background(), &models.Asset{
		ID:          id,
		DisplayName: id + ".bin",
		Size:        size,
		Backend:     "local",
		Permalink:   f.server.URL + path,
		UploadedAt:  uploadedAt,
	}))
}

func listGroups(t *testing.T, f *fixture) []*models.DuplicateGroup {
	t.Helper()
	groups, err := f.manager.DuplicateStorage().ListGroups(context.Background())
	require.NoError(t, err)
	return groups
}

func TestIdenticalAssetsFormOneGroup(t *testing.T) {
	same := bytes.Repeat([]byte("a"), 100)
	f := newFixture(t, map[string][]byte{
		"/a.bin": same,
		"/b.bin": same,
		"/c.bin": bytes.Repeat([]byte("c"), 100),
	})
	f.addAsset(t, "a", "/a.bin", 100, nil)
	f.addAsset(t, "b", "/b.bin", 100, nil)
	f.addAsset(t, "c", "/c.bin", 100, nil)

	st, err := f.scanner.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScanPhaseCompleted, st.Phase)
	assert.Equal(t, 3, st.Counters.Total)
	assert.Equal(t, 1, st.Counters.Groups)
	assert.Equal(t, 2, st.Counters.DuplicateFiles)
	assert.Equal(t, int64(100), st.Counters.SavableBytes)

	groups := listGroups(t, f)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0].MemberIDs())
	assert.Equal(t, int64(100), groups[0].FileSize)
	assert.Equal(t, int64(100), groups[0].SavableBytes)
	assert.Equal(t, "a", groups[0].RecommendedKeepID, "first seen wins without references or upload times")
	assert.Len(t, groups[0].ContentHash, 64)
}

func TestGroupsPartitionByDigest(t *testing.T) {
	x := bytes.Repeat([]byte("x"), 10)
	y := bytes.Repeat([]byte("y"), 20)
	f := newFixture(t, map[string][]byte{
		"/a": x, "/b": x, "/g": x,
		"/c": y, "/e": y, "/f": y,
		"/u": []byte("unique"),
	})
	for _, id := range []string{"a", "b", "g"} {
		f.addAsset(t, id, "/"+id, 10, nil)
	}
	for _, id := range []string{"c", "e", "f"} {
		f.addAsset(t, id, "/"+id, 20, nil)
	}
	f.addAsset(t, "u", "/u", 6, nil)
	f.addAsset(t, "missing", "/missing", 5, nil)

	st, err := f.scanner.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, st.Counters.Total)
	assert.Equal(t, 7, st.Counters.Scanned, "the unreachable asset is left out")
	assert.Equal(t, 2, st.Counters.Groups)
	assert.Equal(t, int64(20+40), st.Counters.SavableBytes)

	seen := map[string]string{}
	for _, g := range listGroups(t, f) {
		for _, id := range g.MemberIDs() {
			_, dup := seen[id]
			assert.False(t, dup, "asset %s in more than one group", id)
			seen[id] = g.ContentHash
		}
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, seen["a"], seen["g"])
	assert.Equal(t, seen["c"], seen["f"])
	assert.NotEqual(t, seen["a"], seen["c"])
	assert.NotContains(t, seen, "u")
}

func TestReferencedMemberIsRecommended(t *testing.T) {
	same := []byte("same bytes")
	f := newFixture(t, map[string][]byte{"/a": same, "/b": same})
	f.addAsset(t, "a", "/a", 10, nil)
	f.addAsset(t, "b", "/b", 10, nil)

	require.NoError(t, f.manager.ReferenceStorage().SaveReference(context.Background(), &models.ReferenceRecord{
		Name:           common.ReferenceName("b", 1),
		AssetID:        "b",
		ReferenceCount: 3,
	}))

	_, err := f.scanner.RunScan(context.Background())
	require.NoError(t, err)

	groups := listGroups(t, f)
	require.Len(t, groups, 1)
	assert.Equal(t, "b", groups[0].RecommendedKeepID)
	assert.Equal(t, 3, groups[0].Members[1].ReferenceCount)
}

func TestRecommendKeepTieBreak(t *testing.T) {
	early := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	cases := []struct {
		name    string
		members []models.DuplicateMember
		want    string
	}{
		{
			name: "most references",
			members: []models.DuplicateMember{
				{AssetID: "a", ReferenceCount: 1, UploadedAt: &early},
				{AssetID: "b", ReferenceCount: 2, UploadedAt: &late},
			},
			want: "b",
		},
		{
			name: "earlier upload on equal references",
			members: []models.DuplicateMember{
				{AssetID: "a", UploadedAt: &late},
				{AssetID: "b", UploadedAt: &early},
			},
			want: "b",
		},
		{
			name: "known upload time beats unknown",
			members: []models.DuplicateMember{
				{AssetID: "a"},
				{AssetID: "b", UploadedAt: &late},
			},
			want: "b",
		},
		{
			name: "first seen without upload times",
			members: []models.DuplicateMember{
				{AssetID: "a"},
				{AssetID: "b"},
			},
			want: "a",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RecommendKeep(tc.members))
		})
	}
}

func TestRescanReplacesGroups(t *testing.T) {
	same := []byte("same bytes")
	f := newFixture(t, map[string][]byte{"/a": same, "/b": same})
	f.addAsset(t, "a", "/a", 10, nil)
	f.addAsset(t, "b", "/b", 10, nil)

	_, err := f.scanner.RunScan(context.Background())
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.scanner.RunScan(context.Background())
	require.NoError(t, err)
	f.scanner.Wait()

	assert.Len(t, listGroups(t, f), 1)
}

func TestDeleteDuplicatesKeepsOne(t *testing.T) {
	same := []byte("same bytes")
	f := newFixture(t, map[string][]byte{"/a": same, "/b": same, "/c": same})
	f.addAsset(t, "a", "/a", 10, nil)
	f.addAsset(t, "b", "/b", 10, nil)
	f.addAsset(t, "c", "/c", 10, nil)
	ctx := context.Background()

	_, err := f.scanner.RunScan(ctx)
	require.NoError(t, err)
	group := listGroups(t, f)[0]

	_, err = f.service.DeleteDuplicates(ctx, group.Name, nil, "")
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = f.service.DeleteDuplicates(ctx, group.Name, []string{"a", "b", "c"}, "")
	assert.True(t, errors.Is(err, common.ErrValidation), "every member selected")

	_, err = f.service.DeleteDuplicates(ctx, "dup-missing", []string{"a"}, "")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	// Three members, one deleted: the group shrinks
	result, err := f.service.DeleteDuplicates(ctx, group.Name, []string{"a"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, int64(10), result.FreedBytes)

	shrunk, err := f.service.Get(ctx, group.Name)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, shrunk.MemberIDs())
	assert.Equal(t, int64(10), shrunk.SavableBytes)
	assert.Equal(t, "b", shrunk.RecommendedKeepID)

	// Two members, one deleted: the group is gone
	_, err = f.service.DeleteDuplicates(ctx, group.Name, []string{"c"}, "bob")
	require.NoError(t, err)
	_, err = f.service.Get(ctx, group.Name)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	st, err := f.service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Counters.Groups)
	assert.Equal(t, 0, st.Counters.DuplicateFiles)
	assert.Equal(t, int64(0), st.Counters.SavableBytes)

	logs, err := f.manager.CleanupLogStorage().ListCleanupLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, models.CleanupReasonDuplicate, l.Reason)
		assert.Equal(t, "bob", l.Operator)
	}
}

func TestNoEligibleAssetsCompletesEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.scanner.config.Assets.Backends = []common.BackendConfig{{Name: "s3", Kind: common.BackendKindRemote}}
	require.NoError(t, f.manager.AssetStorage().SaveAsset(context.Background(), &models.Asset{
		ID: "r", Backend: "s3", Permalink: f.server.URL + "/r",
	}))

	st, err := f.scanner.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScanPhaseCompleted, st.Phase)
	assert.Equal(t, 0, st.Counters.Total)
}

// gatedInventory holds List, and Open for permalinks ending in openSuffix, until release is closed
type gatedInventory struct {
	interfaces.AssetInventory
	gateList   bool
	openSuffix string
	entered    chan struct{}
	release    chan struct{}
}

func (g *gatedInventory) List(ctx context.Context, filter *models.AssetFilter) ([]*models.Asset, error) {
	if g.gateList {
		close(g.entered)
		<-g.release
	}
	return g.AssetInventory.List(ctx, filter)
}

func (g *gatedInventory) Open(ctx context.Context, permalink string) (io.ReadCloser, error) {
	if g.openSuffix != "" && strings.HasSuffix(permalink, g.openSuffix) {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.AssetInventory.Open(ctx, permalink)
}

func TestSupersededPassLeavesNoGroups(t *testing.T) {
	same := []byte("same bytes")
	f := newFixture(t, map[string][]byte{"/a": same, "/b": same})
	f.addAsset(t, "a", "/a", 10, nil)
	f.addAsset(t, "b", "/b", 10, nil)
	ctx := context.Background()

	gate := &gatedInventory{
		AssetInventory: f.inventory,
		gateList:       true,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	slow := NewScanner(f.store, gate, f.manager, f.config, arbor.NewLogger())

	_, err := slow.StartScan(ctx)
	require.NoError(t, err)
	<-gate.entered

	f.scanner.now = func() time.Time { return time.Now().Add(time.Hour) }
	st, err := f.scanner.RunScan(ctx)
	require.NoError(t, err)
	require.Equal(t, models.ScanPhaseCompleted, st.Phase)

	close(gate.release)
	slow.Wait()
	f.scanner.Wait()

	groups := listGroups(t, f)
	require.Len(t, groups, 1, "one group per digest")
	assert.Equal(t, common.DuplicateGroupName(groups[0].ContentHash, common.ScanTimestamp(*st.StartTime)), groups[0].Name)
}

func TestStatusReportsLiveProgress(t *testing.T) {
	same := []byte("same bytes")
	f := newFixture(t, map[string][]byte{"/a": same, "/b": same, "/c": []byte("other")})
	f.addAsset(t, "a", "/a", 10, nil)
	f.addAsset(t, "b", "/b", 10, nil)
	f.addAsset(t, "c", "/c", 5, nil)
	ctx := context.Background()

	gate := &gatedInventory{
		AssetInventory: f.inventory,
		openSuffix:     "/c",
		release:        make(chan struct{}),
	}
	logger := arbor.NewLogger()
	scanner := NewScanner(f.store, gate, f.manager, f.config, logger)
	service := NewService(f.store, scanner, gate, f.manager, f.config, logger)

	_, err := scanner.StartScan(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := service.Status(ctx)
		return err == nil && st.Phase == models.ScanPhaseScanning &&
			st.Counters.Total == 3 && st.Counters.Scanned == 2
	}, 5*time.Second, 10*time.Millisecond)

	close(gate.release)
	scanner.Wait()

	st, err := service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScanPhaseCompleted, st.Phase)
	assert.Equal(t, 3, st.Counters.Total)
	assert.Equal(t, 3, st.Counters.Scanned)
	assert.Equal(t, 1, st.Counters.Groups)
}

func TestPurgeKeepsGroupsOfLaterPasses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	groups := f.manager.DuplicateStorage()

	older := time.Now().Add(-time.Hour)
	current := time.Now()
	for _, g := range []*models.DuplicateGroup{
		{Name: common.DuplicateGroupName("aaaaaaaa", common.ScanTimestamp(older)), CreatedAt: older},
		{Name: common.DuplicateGroupName("bbbbbbbb", common.ScanTimestamp(current)), CreatedAt: current},
	} {
		require.NoError(t, groups.SaveGroup(ctx, g))
	}
	// A newer pass has tagged both generations before the delayed purge fires
	_, err := groups.MarkAllPendingDelete(ctx)
	require.NoError(t, err)

	f.scanner.purgePending(current)
	f.scanner.Wait()

	deleted, err := groups.DeletePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "only the group of the purging pass survives its own purge")
}
