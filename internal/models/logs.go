package models

import "time"

// CleanupReason explains why an asset was deleted
type CleanupReason string

const (
	CleanupReasonDuplicate    CleanupReason = "DUPLICATE"
	CleanupReasonUnreferenced CleanupReason = "UNREFERENCED"
)

// CleanupLog records one asset deletion issued by a cleanup operation
type CleanupLog struct {
	ID           string        `json:"id"`
	AssetID      string        `json:"asset_id"`
	DisplayName  string        `json:"display_name"`
	Size         int64         `json:"size"`
	Reason       CleanupReason `json:"reason"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Operator     string        `json:"operator"`
	DeletedAt    time.Time     `json:"deleted_at"`
}

// ProcessingStatus is the outcome of one transform attempt
type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "SUCCESS"
	ProcessingSkipped ProcessingStatus = "SKIPPED"
	ProcessingFailed  ProcessingStatus = "FAILED"
	ProcessingPartial ProcessingStatus = "PARTIAL"
)

// ProcessingLog records one transform attempt
type ProcessingLog struct {
	ID             string           `json:"id"`
	AssetID        string           `json:"asset_id"`
	Filename       string           `json:"filename"`
	ResultFilename string           `json:"result_filename,omitempty"`
	MediaType      string           `json:"media_type"`
	OriginalSize   int64            `json:"original_size"`
	ResultSize     int64            `json:"result_size"`
	Status         ProcessingStatus `json:"status"`
	Message        string           `json:"message,omitempty"`
	Source         string           `json:"source"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
}

// CleanupResult summarizes one bulk deletion
type CleanupResult struct {
	Deleted    int      `json:"deleted"`
	Failed     int      `json:"failed"`
	FreedBytes int64    `json:"freed_bytes"`
	Errors     []string `json:"errors"`
}
