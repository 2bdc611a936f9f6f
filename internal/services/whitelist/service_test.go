package whitelist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.WhitelistStorage(), arbor.NewLogger())
}

func TestExactAndPrefixMatching(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "/upload/old/", models.MatchModePrefix, "legacy")
	require.NoError(t, err)
	entry, err := svc.Add(ctx, "https://cdn.example.com/logo.png", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchModeExact, entry.MatchMode, "mode defaults to exact")

	cases := map[string]bool{
		"/upload/old/x.png":                    true,
		"/upload/new/x.png":                    false,
		"https://cdn.example.com/logo.png":     true,
		"https://cdn.example.com/logo.png?v=2": false,
		"":                                     false,
	}
	for url, want := range cases {
		got, err := svc.IsWhitelisted(ctx, url)
		require.NoError(t, err)
		assert.Equal(t, want, got, url)
	}
}

func TestAddValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "  ", "", "")
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = svc.Add(ctx, "/a", "regex", "")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestAddBatchSkipsExisting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "/upload/a.png", models.MatchModeExact, "")
	require.NoError(t, err)

	added, err := svc.AddBatch(ctx, []string{"/upload/a.png", "/upload/b.png", "/upload/b.png", ""}, "from broken links")
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "/upload/b.png", added[0].URLPattern)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchDeleteClear(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Add(ctx, "https://cdn.example.com/a.png", "", "Partner CDN")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "/upload/b.png", "", "")
	require.NoError(t, err)

	found, err := svc.Search(ctx, "partner")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	require.NoError(t, svc.Delete(ctx, a.ID))
	assert.True(t, errors.Is(svc.Delete(ctx, a.ID), common.ErrNotFound))

	require.NoError(t, svc.ClearAll(ctx))
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImportYAML(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	doc := `
entries:
  - url: /upload/old/
    match_mode: prefix
    note: migrated
  - url: https://example.com/banner.jpg
  - url: https://example.com/banner.jpg
`
	added, err := svc.ImportYAML(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// Importing again adds nothing
	added, err = svc.ImportYAML(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	ok, err := svc.IsWhitelisted(ctx, "/upload/old/deep/x.png")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.ImportYAML(ctx, strings.NewReader("entries: [oops"))
	assert.True(t, errors.Is(err, common.ErrValidation))
}
