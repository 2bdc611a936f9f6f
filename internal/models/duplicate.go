package models

import "time"

// DuplicateMember is one asset inside a DuplicateGroup
type DuplicateMember struct {
	AssetID        string     `json:"asset_id"`
	DisplayName    string     `json:"display_name"`
	MediaType      string     `json:"media_type"`
	Permalink      string     `json:"permalink"`
	Size           int64      `json:"size"`
	UploadedAt     *time.Time `json:"uploaded_at,omitempty"`
	ReferenceCount int        `json:"reference_count"`
}

// DuplicateGroup collects assets sharing one content hash (always two or more members)
type DuplicateGroup struct {
	Name              string            `json:"name"` // dup-<hash8>-<scanTimestamp>
	ContentHash       string            `json:"content_hash"`
	Members           []DuplicateMember `json:"members"`
	FileSize          int64             `json:"file_size"`
	SavableBytes      int64             `json:"savable_bytes"`
	RecommendedKeepID string            `json:"recommended_keep_id"`
	CreatedAt         time.Time         `json:"created_at"`
	PendingDelete     bool              `json:"-"`
}

// MemberIDs returns the asset ids of the group in member order
func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.AssetID
	}
	return ids
}

// Recompute refreshes the derived size fields from Members
func (g *DuplicateGroup) Recompute() {
	if len(g.Members) == 0 {
		g.FileSize = 0
		g.SavableBytes = 0
		return
	}
	g.FileSize = g.Members[0].Size
	g.SavableBytes = g.FileSize * int64(len(g.Members)-1)
}
