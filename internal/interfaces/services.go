package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/reclaim/internal/models"
)

// UploadRequest carries a new asset for the inventory
type UploadRequest struct {
	Backend   string
	Group     string
	Filename  string
	Data      []byte
	MediaType string // Sniffed from Data when empty
}

// AssetInventory is the live set of stored assets
type AssetInventory interface {
	List(ctx context.Context, filter *models.AssetFilter) ([]*models.Asset, error)
	// Get returns nil without error when the asset does not exist
	Get(ctx context.Context, id string) (*models.Asset, error)
	Delete(ctx context.Context, id string) error
	Upload(ctx context.Context, req UploadRequest) (*models.Asset, error)
	// Open streams the bytes behind an access URL; relative URLs resolve against the base URL
	Open(ctx context.Context, permalink string) (io.ReadCloser, error)
}

// ContentFragment is one extractable piece of a content entry.
// Direct fragments hold a single URL (cover, avatar, icon, media) and skip extraction.
type ContentFragment struct {
	Body           string
	IsHTML         bool
	Direct         bool
	ReferenceKind  string
	OwnerSettingID string
}

// ContentEntry is one item yielded by a content source, with the SourceRef fields
// shared by all of its fragments (ReferenceKind left empty)
type ContentEntry struct {
	Source    models.SourceRef
	Fragments []ContentFragment
}

// ContentSource yields every item of one content kind
type ContentSource interface {
	Kind() string
	List(ctx context.Context) ([]ContentEntry, error)
}

// TransformStatus is the outcome reported by a transform invoker
type TransformStatus string

const (
	TransformSucceeded TransformStatus = "succeeded"
	TransformSkipped   TransformStatus = "skipped"
	TransformFailed    TransformStatus = "failed"
)

// TransformRequest is the input of one transform call
type TransformRequest struct {
	Data      []byte
	Filename  string
	MediaType string
}

// TransformResult is the output of one transform call
type TransformResult struct {
	Status    TransformStatus
	Data      []byte
	Filename  string
	MediaType string
	Message   string
}

// TransformInvoker runs a per-asset transform such as recompression
type TransformInvoker interface {
	Process(ctx context.Context, req TransformRequest) (*TransformResult, error)
}

// EventType names an in-process event
type EventType string

const (
	// EventStatusChanged is published after a scan or batch status record is written
	EventStatusChanged EventType = "status_changed"
)

// Event is an in-process notification
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler receives events
type EventHandler func(ctx context.Context, event Event) error

// EventService is a small in-process pub/sub
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) (func(), error)
	Publish(ctx context.Context, event Event) error
	Close() error
}
