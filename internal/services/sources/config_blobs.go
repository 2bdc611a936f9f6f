package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// configBlobSource yields one entry per settings group of every blob of one kind
type configBlobSource struct {
	kind    string
	storage interfaces.ContentStorage
}

func newConfigBlobSource(kind string, storage interfaces.ContentStorage) interfaces.ContentSource {
	return &configBlobSource{kind: kind, storage: storage}
}

func (s *configBlobSource) Kind() string {
	return s.kind
}

func (s *configBlobSource) List(ctx context.Context) ([]interfaces.ContentEntry, error) {
	blobs, err := s.storage.ListConfigBlobs(ctx, s.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s settings: %w", s.kind, err)
	}

	var entries []interfaces.ContentEntry
	for _, blob := range blobs {
		groups := make([]string, 0, len(blob.Groups))
		for g := range blob.Groups {
			groups = append(groups, g)
		}
		sort.Strings(groups)

		for _, group := range groups {
			raw := blob.Groups[group]
			if strings.TrimSpace(raw) == "" {
				continue
			}
			entry := interfaces.ContentEntry{
				Source: models.SourceRef{
					SourceType: s.kind,
					SourceID:   blob.Name,
					Title:      settingsTitle(blob),
					URL:        settingsURL(blob, group),
				},
			}
			for _, value := range groupValues(raw) {
				entry.Fragments = append(entry.Fragments, interfaces.ContentFragment{
					Body:           value,
					ReferenceKind:  group,
					OwnerSettingID: blob.Name,
				})
			}
			if len(entry.Fragments) > 0 {
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

// groupValues splits a settings group into the texts to scan: one per field of a
// JSON object, the raw text for anything else or for malformed JSON
func groupValues(raw string) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return []string{raw}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		field := fields[k]
		var s string
		if err := json.Unmarshal(field, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				values = append(values, s)
			}
			continue
		}
		text := strings.TrimSpace(string(field))
		if text != "" && text != "null" {
			values = append(values, text)
		}
	}
	return values
}

func settingsTitle(blob *models.ConfigBlob) string {
	name := blob.DisplayName
	if name == "" {
		name = blob.Name
	}
	switch blob.Kind {
	case models.SourceTypePlugin:
		return name + " plugin settings"
	case models.SourceTypeTheme:
		return name + " theme settings"
	default:
		return "system settings"
	}
}

func settingsURL(blob *models.ConfigBlob, group string) string {
	switch blob.Kind {
	case models.SourceTypePlugin:
		return "/console/plugins/" + blob.Name + "?tab=" + url.QueryEscape(group)
	case models.SourceTypeTheme:
		return "/console/theme/settings/" + url.PathEscape(group)
	default:
		return "/console/settings?tab=" + url.QueryEscape(group)
	}
}
