package sources

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/storage/badger"
)

func newTestStorage(t *testing.T) interfaces.ContentStorage {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager.ContentStorage()
}

func kinds(list []interfaces.ContentSource) []string {
	var out []string
	for _, s := range list {
		out = append(out, s.Kind())
	}
	return out
}

func TestRegistryResolve(t *testing.T) {
	storage := newTestStorage(t)
	config := common.NewDefaultConfig()
	config.Scan.ScanPosts = true
	config.Scan.ScanPages = false
	config.Scan.ScanComments = true
	config.Scan.ScanMoments = true
	config.Scan.ScanPhotos = true
	config.Scan.InstalledPlugins = []string{PluginPhotos}

	registry := NewRegistry(storage, config, arbor.NewLogger())
	got := kinds(registry.Resolve())

	assert.Contains(t, got, models.SourceTypePost)
	assert.NotContains(t, got, models.SourceTypePage)
	assert.Contains(t, got, models.SourceTypeComment)
	assert.Contains(t, got, models.SourceTypeReply)
	assert.NotContains(t, got, models.SourceTypeMoment, "moments plugin is not installed")
	assert.Contains(t, got, models.SourceTypePhoto)
	assert.NotContains(t, got, models.SourceTypeDoc, "docs toggle is off")

	// Settings and avatars are always read
	for _, k := range []string{models.SourceTypeSystem, models.SourceTypePlugin, models.SourceTypeTheme, models.SourceTypeUser} {
		assert.Contains(t, got, k)
	}
}

func TestPostSourceFragments(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{
		ID:      "post-1",
		Kind:    models.SourceTypePost,
		Title:   "Hello",
		Slug:    "hello",
		Format:  models.FormatMarkdown,
		Body:    "Intro\n\n![](/upload/a.png)",
		Cover:   "/upload/cover.jpg",
		Deleted: true,
	}))

	entries, err := newPostSource(storage, newRenderer()).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "/archives/hello", entry.Source.URL)
	assert.Equal(t, "Hello", entry.Source.Title)
	assert.True(t, entry.Source.InRecycleBin)
	require.Len(t, entry.Fragments, 2)

	cover := entry.Fragments[0]
	assert.True(t, cover.Direct)
	assert.Equal(t, models.ReferenceKindCover, cover.ReferenceKind)
	assert.Equal(t, "/upload/cover.jpg", cover.Body)

	body := entry.Fragments[1]
	assert.True(t, body.IsHTML, "markdown is rendered to HTML")
	assert.Contains(t, body.Body, `<img src="/upload/a.png"`)
	assert.Equal(t, models.ReferenceKindContent, body.ReferenceKind)
}

func TestCommentTitleUsesSubject(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{ID: "post-9", Kind: models.SourceTypePost, Title: "Subject"}))
	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{
		ID: "c-1", Kind: models.SourceTypeComment, ParentID: "post-9", Format: models.FormatHTML, Body: `<img src="/upload/x.png">`,
	}))
	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{
		ID: "c-2", Kind: models.SourceTypeComment, Format: models.FormatHTML, Body: "",
	}))

	entries, err := newCommentSource(storage, newRenderer()).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1, "comments without a body are skipped")
	assert.Equal(t, "post:post-9", entries[0].Source.Title)
	assert.Equal(t, models.ReferenceKindComment, entries[0].Fragments[0].ReferenceKind)
}

func TestPhotoCoverOnlyWhenDifferent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{ID: "p-1", Kind: models.SourceTypePhoto, URL: "/upload/p.jpg", Cover: "/upload/p.jpg"}))
	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{ID: "p-2", Kind: models.SourceTypePhoto, URL: "/upload/q.jpg", Cover: "/upload/q-thumb.jpg"}))

	entries, err := newPhotoSource(storage).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Fragments, 1)
	assert.Len(t, entries[1].Fragments, 2)
	assert.Equal(t, models.ReferenceKindCover, entries[1].Fragments[1].ReferenceKind)
	assert.Equal(t, "/photos", entries[1].Source.URL)
}

func TestConfigBlobGroups(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveConfigBlob(ctx, &models.ConfigBlob{
		Name:        "plugin-gallery",
		Kind:        models.SourceTypePlugin,
		DisplayName: "Gallery",
		Groups: map[string]string{
			"basic":  `{"logo":"/upload/logo.png","count":3,"empty":""}`,
			"broken": `{not json /upload/raw.png`,
			"blank":  "  ",
		},
	}))

	entries, err := newConfigBlobSource(models.SourceTypePlugin, storage).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2, "blank groups are skipped")

	basic := entries[0]
	assert.Equal(t, "Gallery plugin settings", basic.Source.Title)
	assert.Equal(t, "/console/plugins/plugin-gallery?tab=basic", basic.Source.URL)
	require.Len(t, basic.Fragments, 2)
	assert.Equal(t, "3", basic.Fragments[0].Body)
	assert.Equal(t, "/upload/logo.png", basic.Fragments[1].Body)
	assert.Equal(t, "basic", basic.Fragments[1].ReferenceKind)
	assert.Equal(t, "plugin-gallery", basic.Fragments[1].OwnerSettingID)
	assert.False(t, basic.Fragments[1].IsHTML)

	broken := entries[1]
	require.Len(t, broken.Fragments, 1)
	assert.True(t, strings.HasPrefix(broken.Fragments[0].Body, "{not json"), "malformed JSON is scanned raw")
}

func TestSettingsTitles(t *testing.T) {
	assert.Equal(t, "system settings", settingsTitle(&models.ConfigBlob{Name: "system", Kind: models.SourceTypeSystem}))
	assert.Equal(t, "earth theme settings", settingsTitle(&models.ConfigBlob{Name: "earth", Kind: models.SourceTypeTheme}))
	assert.Equal(t, "/console/theme/settings/style", settingsURL(&models.ConfigBlob{Name: "earth", Kind: models.SourceTypeTheme}, "style"))
	assert.Equal(t, "/console/settings?tab=seo", settingsURL(&models.ConfigBlob{Kind: models.SourceTypeSystem}, "seo"))
}

func TestUserAvatarSource(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{ID: "admin", Kind: models.SourceTypeUser, Title: "Admin", Avatar: "/upload/me.png"}))
	require.NoError(t, storage.SaveContent(ctx, &models.ContentItem{ID: "guest", Kind: models.SourceTypeUser}))

	entries, err := newUserSource(storage).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Admin", entries[0].Source.Title)
	assert.True(t, entries[0].Fragments[0].Direct)
	assert.Equal(t, models.ReferenceKindAvatar, entries[0].Fragments[0].ReferenceKind)
}

const seedYAML = `
content:
  - id: post-1
    kind: post
    title: Hello
    format: markdown
    body: "![cover](/upload/blog/a.png)"
  - id: user-1
    kind: user
    title: Admin
    avatar: /upload/avatars/me.png
config_blobs:
  - name: theme-earth
    kind: theme
    display_name: Earth
    groups:
      basic: '{"logo":"/upload/logo.png"}'
`

func TestImportSeed(t *testing.T) {
	storage := newTestStorage(t)
	registry := NewRegistry(storage, common.NewDefaultConfig(), arbor.NewLogger())
	ctx := context.Background()

	result, err := registry.ImportSeed(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Content)
	assert.Equal(t, 1, result.ConfigBlobs)

	post, err := storage.GetContent(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.FormatMarkdown, post.Format)

	user, err := storage.GetContent(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.FormatHTML, user.Format)

	blobs, err := storage.ListConfigBlobs(ctx, models.SourceTypeTheme)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, `{"logo":"/upload/logo.png"}`, blobs[0].Groups["basic"])
}

func TestImportSeedValidatesBeforeWriting(t *testing.T) {
	storage := newTestStorage(t)
	registry := NewRegistry(storage, common.NewDefaultConfig(), arbor.NewLogger())
	ctx := context.Background()

	_, err := registry.ImportSeed(ctx, strings.NewReader(`
content:
  - id: post-1
    kind: post
  - id: odd-1
    kind: newsletter
`))
	require.ErrorIs(t, err, common.ErrValidation)

	posts, err := storage.ListContentByKind(ctx, models.SourceTypePost)
	require.NoError(t, err)
	assert.Empty(t, posts)
}
