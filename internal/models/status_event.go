package models

// StatusChange is the payload of a status_changed event
type StatusChange struct {
	Kind  string           `json:"kind"` // A ScanType or "batch"
	Phase string           `json:"phase"`
	Scan  *ScanStatus      `json:"scan,omitempty"`
	Batch *BatchTaskStatus `json:"batch,omitempty"`
}

// StatusKindBatch marks batch task status changes
const StatusKindBatch = "batch"
