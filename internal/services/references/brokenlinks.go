package references

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
	"github.com/ternarybob/reclaim/internal/services/whitelist"
)

// BrokenLinkQuery selects a page of broken links
type BrokenLinkQuery struct {
	Page       int    `json:"page" validate:"omitempty,min=1"`
	Size       int    `json:"size" validate:"omitempty,min=1,max=500"`
	SourceType string `json:"source_type"`
	Keyword    string `json:"keyword"`
	Sort       string `json:"sort"` // sourceCount (default) or discoveredAt, optionally ",asc"
}

// BrokenLinks reads and acts on the broken links written by reference passes
type BrokenLinks struct {
	store     *status.Store
	storage   interfaces.BrokenLinkStorage
	whitelist *whitelist.Service
	logger    arbor.ILogger
}

// NewBrokenLinks creates a new broken link service
func NewBrokenLinks(store *status.Store, storage interfaces.BrokenLinkStorage, whitelist *whitelist.Service, logger arbor.ILogger) *BrokenLinks {
	return &BrokenLinks{
		store:     store,
		storage:   storage,
		whitelist: whitelist,
		logger:    logger,
	}
}

// Status returns the broken link scan status
func (b *BrokenLinks) Status(ctx context.Context) (*models.ScanStatus, error) {
	return b.store.GetScan(ctx, models.ScanTypeBrokenLink)
}

// List returns a filtered, sorted page of broken links
func (b *BrokenLinks) List(ctx context.Context, q BrokenLinkQuery) (models.Page[*models.BrokenLink], error) {
	links, err := b.storage.ListBrokenLinks(ctx)
	if err != nil {
		return models.Page[*models.BrokenLink]{}, err
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	filtered := make([]*models.BrokenLink, 0, len(links))
	for _, link := range links {
		if q.SourceType != "" && !link.HasSourceType(q.SourceType) {
			continue
		}
		if keyword != "" && !matchesKeyword(link, keyword) {
			continue
		}
		filtered = append(filtered, link)
	}

	sortBrokenLinks(filtered, q.Sort)
	return models.Paginate(filtered, q.Page, q.Size), nil
}

func matchesKeyword(link *models.BrokenLink, keyword string) bool {
	if strings.Contains(strings.ToLower(link.URL), keyword) {
		return true
	}
	for _, s := range link.Sources {
		if strings.Contains(strings.ToLower(s.Title), keyword) {
			return true
		}
	}
	return false
}

func sortBrokenLinks(links []*models.BrokenLink, sortBy string) {
	if strings.TrimSpace(sortBy) == "" {
		sortBy = "sourceCount"
	}
	field, desc := parseSort(sortBy, true)

	if field == "discoveredAt" {
		// Unset discovery times sort last in either direction
		sort.SliceStable(links, func(i, j int) bool {
			a, c := links[i].DiscoveredAt, links[j].DiscoveredAt
			if a.IsZero() != c.IsZero() {
				return c.IsZero()
			}
			if desc {
				return a.After(c)
			}
			return a.Before(c)
		})
		return
	}

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].SourceCount == links[j].SourceCount {
			return links[i].URL < links[j].URL
		}
		if desc {
			return links[i].SourceCount > links[j].SourceCount
		}
		return links[i].SourceCount < links[j].SourceCount
	})
}

// SourceTypes returns the distinct source types found across broken links
func (b *BrokenLinks) SourceTypes(ctx context.Context) ([]string, error) {
	links, err := b.storage.ListBrokenLinks(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	types := []string{}
	for _, link := range links {
		for _, s := range link.Sources {
			if s.SourceType != "" && !seen[s.SourceType] {
				seen[s.SourceType] = true
				types = append(types, s.SourceType)
			}
		}
	}
	sort.Strings(types)
	return types, nil
}

// AddToWhitelist whitelists urls as exact entries, removes the broken links they
// covered and lowers the broken link count accordingly. It returns the entries added.
func (b *BrokenLinks) AddToWhitelist(ctx context.Context, urls []string, note string) ([]*models.WhitelistEntry, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: url list is empty", common.ErrValidation)
	}

	added, err := b.whitelist.AddBatch(ctx, urls, note)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]bool, len(urls))
	for _, u := range urls {
		covered[strings.TrimSpace(u)] = true
	}

	links, err := b.storage.ListBrokenLinks(ctx)
	if err != nil {
		return added, err
	}
	removed := 0
	for _, link := range links {
		if !covered[link.URL] {
			continue
		}
		if err := b.storage.DeleteBrokenLink(ctx, link.Name); err != nil {
			b.logger.Warn().Err(err).Str("url", link.URL).Msg("Failed to remove whitelisted broken link")
			continue
		}
		removed++
	}

	if removed > 0 {
		if _, err := b.store.MutateScan(ctx, models.ScanTypeBrokenLink, func(st *models.ScanStatus) error {
			st.Counters.Broken = max(0, st.Counters.Broken-removed)
			return nil
		}); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to update broken link count")
		}
	}

	b.logger.Info().
		Int("whitelisted", len(added)).
		Int("removed", removed).
		Msg("Broken links whitelisted")

	return added, nil
}

// ClearAll deletes every broken link and resets the status to IDLE
func (b *BrokenLinks) ClearAll(ctx context.Context) error {
	if err := ensureIdle(ctx, b.store, models.ScanTypeBrokenLink); err != nil {
		return err
	}
	if err := b.storage.DeleteAll(ctx); err != nil {
		return err
	}
	if _, err := b.store.MutateScan(ctx, models.ScanTypeBrokenLink, resetStatus); err != nil {
		return err
	}
	b.logger.Info().Msg("Broken link results cleared")
	return nil
}
