package models

import "time"

// Asset is an item of the asset inventory: a stored binary with an access URL
type Asset struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	MediaType   string     `json:"media_type"`
	Size        int64      `json:"size"`
	Backend     string     `json:"backend"` // Storage backend name (see config assets.backends)
	Group       string     `json:"group"`   // Optional grouping within a backend
	Permalink   string     `json:"permalink"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
	Deleted     bool       `json:"deleted"`
}

// Exists reports whether the asset is still live
func (a *Asset) Exists() bool {
	return a != nil && !a.Deleted
}

// AssetFilter narrows an inventory listing. Empty fields match everything.
type AssetFilter struct {
	Backends []string
	IDs      []string
}
