package models

import "time"

// ReferenceRecord holds the references found for one asset in one pass.
// It exists even when ReferenceCount is zero, to mark the asset as confirmed unreferenced.
type ReferenceRecord struct {
	Name           string      `json:"name"` // ref-<asset>-<scanTimestamp>
	AssetID        string      `json:"asset_id"`
	DisplayName    string      `json:"display_name"`
	MediaType      string      `json:"media_type"`
	Size           int64       `json:"size"`
	Permalink      string      `json:"permalink"`
	Backend        string      `json:"backend"`
	Group          string      `json:"group"`
	ReferenceCount int         `json:"reference_count"`
	Sources        []SourceRef `json:"sources"`
	LastScannedAt  time.Time   `json:"last_scanned_at"`
	PendingDelete  bool        `json:"-"`
}

// BrokenLink is an extracted URL that resolved to no live asset
type BrokenLink struct {
	Name          string      `json:"name"` // broken-link-<scanTimestamp>-<seq>
	URL           string      `json:"url"`
	Sources       []SourceRef `json:"sources"`
	SourceCount   int         `json:"source_count"`
	DiscoveredAt  time.Time   `json:"discovered_at"`
	PendingDelete bool        `json:"-"`
}

// HasSourceType reports whether any source is of the given type
func (b *BrokenLink) HasSourceType(sourceType string) bool {
	for _, s := range b.Sources {
		if s.SourceType == sourceType {
			return true
		}
	}
	return false
}
