package models

import "time"

// ScanType identifies a singleton scan status record
type ScanType string

const (
	ScanTypeReference  ScanType = "reference"
	ScanTypeDuplicate  ScanType = "duplicate"
	ScanTypeBrokenLink ScanType = "broken-link"
)

// ScanTypes lists every scan type with a status record
var ScanTypes = []ScanType{ScanTypeReference, ScanTypeDuplicate, ScanTypeBrokenLink}

// ScanPhase is the lifecycle phase of a scan pass
type ScanPhase string

const (
	ScanPhaseIdle      ScanPhase = "IDLE"
	ScanPhaseScanning  ScanPhase = "SCANNING"
	ScanPhaseCompleted ScanPhase = "COMPLETED"
	ScanPhaseError     ScanPhase = "ERROR"
)

// ScanCounters are the per-pass totals; each scan type uses the subset relevant to it
type ScanCounters struct {
	Total          int   `json:"total"`           // Assets considered
	Scanned        int   `json:"scanned"`         // Assets evaluated (reference) or hashed (duplicate)
	Referenced     int   `json:"referenced"`      // Assets with at least one reference
	Unreferenced   int   `json:"unreferenced"`    // Assets with zero references
	UnreferencedSz int64 `json:"unreferenced_sz"` // Bytes held by unreferenced assets
	Checked        int   `json:"checked"`         // Links checked (broken-link)
	Broken         int   `json:"broken"`          // Broken links found
	Groups         int   `json:"groups"`          // Duplicate groups
	DuplicateFiles int   `json:"duplicate_files"` // Assets inside duplicate groups
	SavableBytes   int64 `json:"savable_bytes"`   // Bytes reclaimable by deleting duplicates
}

// ScanStatus is the persisted singleton status of one scan type
type ScanStatus struct {
	Type         ScanType     `json:"type"`
	Phase        ScanPhase    `json:"phase"`
	StartTime    *time.Time   `json:"start_time,omitempty"`
	EndTime      *time.Time   `json:"end_time,omitempty"`
	LastScanTime *time.Time   `json:"last_scan_time,omitempty"`
	Counters     ScanCounters `json:"counters"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Version      int64        `json:"version"`
}

// NewScanStatus returns the idle status used before a type has ever run
func NewScanStatus(scanType ScanType) *ScanStatus {
	return &ScanStatus{Type: scanType, Phase: ScanPhaseIdle}
}

// IsRunning reports whether the persisted phase is an active pass
func (s *ScanStatus) IsRunning() bool {
	return s.Phase == ScanPhaseScanning
}
