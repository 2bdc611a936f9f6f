package models

import "time"

// Content formats
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// ContentItem is a resident piece of content that may embed asset URLs.
// Kind uses the SourceType constants; kind-specific fields are left empty when unused.
type ContentItem struct {
	ID        string    `json:"id" yaml:"id"`
	Kind      string    `json:"kind" yaml:"kind"`
	Title     string    `json:"title" yaml:"title"`
	Slug      string    `json:"slug,omitempty" yaml:"slug"`
	URL       string    `json:"url,omitempty" yaml:"url"`
	Format    string    `json:"format" yaml:"format"`
	Body      string    `json:"body" yaml:"body"`
	Cover     string    `json:"cover,omitempty" yaml:"cover"`
	Media     []string  `json:"media,omitempty" yaml:"media"`
	Icon      string    `json:"icon,omitempty" yaml:"icon"`
	Avatar    string    `json:"avatar,omitempty" yaml:"avatar"`
	ParentID  string    `json:"parent_id,omitempty" yaml:"parent_id"` // Owning item for comments, replies and docs
	Deleted   bool      `json:"deleted" yaml:"deleted"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// ConfigBlob is a named settings document made of JSON groups
type ConfigBlob struct {
	Name        string            `json:"name" yaml:"name"`
	Kind        string            `json:"kind" yaml:"kind"` // SourceTypeSystem, SourceTypePlugin or SourceTypeTheme
	DisplayName string            `json:"display_name" yaml:"display_name"`
	Groups      map[string]string `json:"groups" yaml:"groups"` // group name -> JSON document
	UpdatedAt   time.Time         `json:"updated_at" yaml:"-"`
}
