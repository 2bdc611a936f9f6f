package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID generates a unique id with the given prefix
// Format: <prefix>_<uuid>
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// ReferenceName builds the pass-scoped key for a reference record
func ReferenceName(assetID string, scanTimestamp int64) string {
	return fmt.Sprintf("ref-%s-%d", assetID, scanTimestamp)
}

// BrokenLinkName builds the pass-scoped key for a broken link record
func BrokenLinkName(scanTimestamp int64, seq int) string {
	return fmt.Sprintf("broken-link-%d-%d", scanTimestamp, seq)
}

// DuplicateGroupName builds the pass-scoped key for a duplicate group
func DuplicateGroupName(hash string, scanTimestamp int64) string {
	prefix := hash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("dup-%s-%d", prefix, scanTimestamp)
}

// ScanTimestamp returns the millisecond timestamp used to make pass keys unique
func ScanTimestamp(t time.Time) int64 {
	return t.UnixMilli()
}
