package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// itemSource adapts one kind of stored ContentItem into content entries
type itemSource struct {
	kind    string
	storage interfaces.ContentStorage
	build   func(ctx context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool)
}

func (s *itemSource) Kind() string {
	return s.kind
}

func (s *itemSource) List(ctx context.Context) ([]interfaces.ContentEntry, error) {
	items, err := s.storage.ListContentByKind(ctx, s.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s content: %w", s.kind, err)
	}

	entries := make([]interfaces.ContentEntry, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := s.build(ctx, item)
		if !ok || len(entry.Fragments) == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func newPostSource(storage interfaces.ContentStorage, r *renderer) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypePost,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			entry := interfaces.ContentEntry{Source: models.SourceRef{
				SourceType:   models.SourceTypePost,
				SourceID:     item.ID,
				Title:        item.Title,
				URL:          navigable(item, "/archives/"+item.Slug),
				InRecycleBin: item.Deleted,
			}}
			if item.Cover != "" {
				entry.Fragments = append(entry.Fragments, direct(item.Cover, models.ReferenceKindCover))
			}
			if item.Body != "" {
				entry.Fragments = append(entry.Fragments, r.body(item.Format, item.Body, models.ReferenceKindContent))
			}
			return entry, true
		},
	}
}

func newPageSource(storage interfaces.ContentStorage, r *renderer) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypePage,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			entry := interfaces.ContentEntry{Source: models.SourceRef{
				SourceType:   models.SourceTypePage,
				SourceID:     item.ID,
				Title:        item.Title,
				URL:          navigable(item, "/"+item.Slug),
				InRecycleBin: item.Deleted,
			}}
			if item.Cover != "" {
				entry.Fragments = append(entry.Fragments, direct(item.Cover, models.ReferenceKindCover))
			}
			if item.Body != "" {
				entry.Fragments = append(entry.Fragments, r.body(item.Format, item.Body, models.ReferenceKindContent))
			}
			return entry, true
		},
	}
}

// newCommentSource titles a comment after its subject as "<kind>:<id>"
func newCommentSource(storage interfaces.ContentStorage, r *renderer) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypeComment,
		storage: storage,
		build: func(ctx context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			if item.Body == "" {
				return interfaces.ContentEntry{}, false
			}
			title := "comment"
			if item.ParentID != "" {
				if parent, err := storage.GetContent(ctx, item.ParentID); err == nil {
					title = parent.Kind + ":" + parent.ID
				}
			}
			return interfaces.ContentEntry{
				Source: models.SourceRef{
					SourceType: models.SourceTypeComment,
					SourceID:   item.ID,
					Title:      title,
				},
				Fragments: []interfaces.ContentFragment{r.body(item.Format, item.Body, models.ReferenceKindComment)},
			}, true
		},
	}
}

func newReplySource(storage interfaces.ContentStorage, r *renderer) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypeReply,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			if item.Body == "" {
				return interfaces.ContentEntry{}, false
			}
			title := "reply"
			if item.ParentID != "" {
				title = models.SourceTypeComment + ":" + item.ParentID
			}
			return interfaces.ContentEntry{
				Source: models.SourceRef{
					SourceType: models.SourceTypeReply,
					SourceID:   item.ID,
					Title:      title,
				},
				Fragments: []interfaces.ContentFragment{r.body(item.Format, item.Body, models.ReferenceKindReply)},
			}, true
		},
	}
}

func newMomentSource(storage interfaces.ContentStorage, r *renderer) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypeMoment,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			entry := interfaces.ContentEntry{Source: models.SourceRef{
				SourceType: models.SourceTypeMoment,
				SourceID:   item.ID,
				Title:      "moment",
				URL:        navigable(item, "/moments/"+item.ID),
			}}
			if item.Body != "" {
				entry.Fragments = append(entry.Fragments, r.body(item.Format, item.Body, models.ReferenceKindContent))
			}
			for _, m := range item.Media {
				if m != "" {
					entry.Fragments = append(entry.Fragments, direct(m, models.ReferenceKindMedia))
				}
			}
			return entry, true
		},
	}
}

// newPhotoSource reads the photo URL as content and the cover only when it differs
func newPhotoSource(storage interfaces.ContentStorage) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypePhoto,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			entry := interfaces.ContentEntry{Source: models.SourceRef{
				SourceType: models.SourceTypePhoto,
				SourceID:   item.ID,
				Title:      "gallery",
				URL:        "/photos",
			}}
			if item.URL != "" {
				entry.Fragments = append(entry.Fragments, direct(item.URL, models.ReferenceKindContent))
			}
			if item.Cover != "" && item.Cover != item.URL {
				entry.Fragments = append(entry.Fragments, direct(item.Cover, models.ReferenceKindCover))
			}
			return entry, true
		},
	}
}

func newDocSource(storage interfaces.ContentStorage, r *renderer) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypeDoc,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			title := item.Title
			if title == "" {
				title = "doc:" + item.ID
			}
			entry := interfaces.ContentEntry{Source: models.SourceRef{
				SourceType:   models.SourceTypeDoc,
				SourceID:     item.ID,
				Title:        title,
				URL:          item.URL,
				InRecycleBin: item.Deleted,
			}}
			if item.Icon != "" {
				entry.Fragments = append(entry.Fragments, direct(item.Icon, models.ReferenceKindIcon))
			}
			if item.Body != "" {
				entry.Fragments = append(entry.Fragments, r.body(item.Format, item.Body, models.ReferenceKindContent))
			}
			return entry, true
		},
	}
}

func newUserSource(storage interfaces.ContentStorage) interfaces.ContentSource {
	return &itemSource{
		kind:    models.SourceTypeUser,
		storage: storage,
		build: func(_ context.Context, item *models.ContentItem) (interfaces.ContentEntry, bool) {
			if item.Avatar == "" {
				return interfaces.ContentEntry{}, false
			}
			title := item.Title
			if title == "" {
				title = item.ID
			}
			return interfaces.ContentEntry{
				Source: models.SourceRef{
					SourceType: models.SourceTypeUser,
					SourceID:   item.ID,
					Title:      title,
					URL:        item.URL,
				},
				Fragments: []interfaces.ContentFragment{direct(item.Avatar, models.ReferenceKindAvatar)},
			}, true
		},
	}
}

// navigable prefers the stored URL and falls back to the derived one
func navigable(item *models.ContentItem, derived string) string {
	if strings.TrimSpace(item.URL) != "" {
		return item.URL
	}
	return derived
}
