package models

import "strings"

// Reference kinds describe how a piece of content uses a URL
const (
	ReferenceKindCover   = "cover"
	ReferenceKindContent = "content"
	ReferenceKindMedia   = "media"
	ReferenceKindIcon    = "icon"
	ReferenceKindAvatar  = "avatar"
	ReferenceKindSetting = "setting"
	ReferenceKindComment = "comment"
	ReferenceKindReply   = "reply"
)

// Source types name the content kind a reference was found in
const (
	SourceTypePost    = "post"
	SourceTypePage    = "page"
	SourceTypeComment = "comment"
	SourceTypeReply   = "reply"
	SourceTypeMoment  = "moment"
	SourceTypePhoto   = "photo"
	SourceTypeDoc     = "doc"
	SourceTypeSystem  = "system"
	SourceTypePlugin  = "plugin"
	SourceTypeTheme   = "theme"
	SourceTypeUser    = "user"
)

// SourceRef describes one place a URL was found during a pass.
// Values are created fresh on every pass and never merged across passes.
type SourceRef struct {
	SourceType     string `json:"source_type"`
	SourceID       string `json:"source_id"`
	Title          string `json:"title"`
	URL            string `json:"url,omitempty"` // Navigable location of the source
	InRecycleBin   bool   `json:"in_recycle_bin"`
	ReferenceKind  string `json:"reference_kind"`
	OwnerSettingID string `json:"owner_setting_id,omitempty"`
}

// Key identifies a SourceRef for set semantics
func (r SourceRef) Key() string {
	return strings.Join([]string{r.SourceType, r.SourceID, r.ReferenceKind, r.OwnerSettingID}, "\x00")
}
