package models

import "time"

// Match modes for whitelist entries
const (
	MatchModeExact  = "exact"
	MatchModePrefix = "prefix"
)

// WhitelistEntry suppresses a known-intentional URL from broken link detection
type WhitelistEntry struct {
	ID         string    `json:"id"`
	URLPattern string    `json:"url_pattern"`
	MatchMode  string    `json:"match_mode"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Matches reports whether url is covered by this entry.
// Exact mode requires equality, any other mode is treated as prefix.
func (w *WhitelistEntry) Matches(url string) bool {
	if w.URLPattern == "" || url == "" {
		return false
	}
	if w.MatchMode == MatchModeExact {
		return url == w.URLPattern
	}
	return len(url) >= len(w.URLPattern) && url[:len(w.URLPattern)] == w.URLPattern
}
