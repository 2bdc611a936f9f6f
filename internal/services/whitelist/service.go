package whitelist

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// Service manages the broken link whitelist
type Service struct {
	storage interfaces.WhitelistStorage
	logger  arbor.ILogger
}

// NewService creates a new whitelist service
func NewService(storage interfaces.WhitelistStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// List returns every entry, newest first
func (s *Service) List(ctx context.Context) ([]*models.WhitelistEntry, error) {
	return s.storage.ListEntries(ctx)
}

// Search returns entries whose pattern or note contains keyword, case-insensitively
func (s *Service) Search(ctx context.Context, keyword string) ([]*models.WhitelistEntry, error) {
	entries, err := s.storage.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return entries, nil
	}

	var matched []*models.WhitelistEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.URLPattern), keyword) || strings.Contains(strings.ToLower(e.Note), keyword) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// IsWhitelisted reports whether any entry covers url
func (s *Service) IsWhitelisted(ctx context.Context, url string) (bool, error) {
	if strings.TrimSpace(url) == "" {
		return false, nil
	}
	entries, err := s.storage.ListEntries(ctx)
	if err != nil {
		return false, err
	}
	return Filter(entries, url), nil
}

// Filter reports whether url is covered by one of entries
func Filter(entries []*models.WhitelistEntry, url string) bool {
	for _, e := range entries {
		if e.Matches(url) {
			return true
		}
	}
	return false
}

// Add creates an entry. The match mode defaults to exact.
func (s *Service) Add(ctx context.Context, pattern, mode, note string) (*models.WhitelistEntry, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: url pattern is required", common.ErrValidation)
	}
	switch mode {
	case "":
		mode = models.MatchModeExact
	case models.MatchModeExact, models.MatchModePrefix:
	default:
		return nil, fmt.Errorf("%w: unknown match mode %q", common.ErrValidation, mode)
	}

	entry := &models.WhitelistEntry{
		ID:         common.NewID("whitelist"),
		URLPattern: pattern,
		MatchMode:  mode,
		Note:       note,
		CreatedAt:  time.Now(),
	}
	if err := s.storage.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("pattern", pattern).
		Str("match_mode", mode).
		Msg("Whitelist entry added")

	return entry, nil
}

// AddBatch adds an exact entry for each url not already covered by an exact entry.
// Individual failures are logged and skipped.
func (s *Service) AddBatch(ctx context.Context, urls []string, note string) ([]*models.WhitelistEntry, error) {
	existing, err := s.storage.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		if e.MatchMode == models.MatchModeExact {
			seen[e.URLPattern] = true
		}
	}

	var added []*models.WhitelistEntry
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		entry, err := s.Add(ctx, u, models.MatchModeExact, note)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", u).Msg("Failed to add whitelist entry")
			continue
		}
		seen[u] = true
		added = append(added, entry)
	}
	return added, nil
}

// Delete removes one entry
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.storage.GetEntry(ctx, id); err != nil {
		return err
	}
	return s.storage.DeleteEntry(ctx, id)
}

// ClearAll removes every entry
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.storage.DeleteAll(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("Whitelist cleared")
	return nil
}

// importFile is the YAML layout accepted by ImportYAML
type importFile struct {
	Entries []struct {
		URL       string `yaml:"url"`
		MatchMode string `yaml:"match_mode"`
		Note      string `yaml:"note"`
	} `yaml:"entries"`
}

// ImportYAML adds the entries of a YAML document and returns how many were added.
// Entries already present with the same pattern and mode are skipped.
func (s *Service) ImportYAML(ctx context.Context, r io.Reader) (int, error) {
	var file importFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: invalid whitelist file: %v", common.ErrValidation, err)
	}

	existing, err := s.storage.ListEntries(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.MatchMode+"\x00"+e.URLPattern] = true
	}

	added := 0
	for _, item := range file.Entries {
		mode := item.MatchMode
		if mode == "" {
			mode = models.MatchModeExact
		}
		key := mode + "\x00" + strings.TrimSpace(item.URL)
		if seen[key] {
			continue
		}
		if _, err := s.Add(ctx, item.URL, mode, item.Note); err != nil {
			return added, fmt.Errorf("failed to import %q: %w", item.URL, err)
		}
		seen[key] = true
		added++
	}

	s.logger.Info().Int("added", added).Int("entries", len(file.Entries)).Msg("Whitelist imported")
	return added, nil
}
