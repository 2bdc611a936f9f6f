package batch

import (
	"sync"
	"sync/atomic"

	"github.com/ternarybob/reclaim/internal/models"
)

// Progress holds the live counters of one batch task. It is owned by the
// task's run and flushed to the status record once, when the run ends.
type Progress struct {
	total        int
	processed    atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	skipped      atomic.Int64
	savedBytes   atomic.Int64
	keptOriginal atomic.Int64
	cancelled    atomic.Bool

	mu           sync.Mutex
	failedItems  []models.BatchItem
	skippedItems []models.BatchItem
}

// NewProgress creates the counters for a task over total items
func NewProgress(total int) *Progress {
	return &Progress{total: total}
}

// Cancel raises the cooperative cancel flag
func (p *Progress) Cancel() {
	p.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called
func (p *Progress) Cancelled() bool {
	return p.cancelled.Load()
}

// Succeed records a transformed item
func (p *Progress) Succeed(savedBytes int64, keptOriginal bool) {
	p.succeeded.Add(1)
	if savedBytes > 0 {
		p.savedBytes.Add(savedBytes)
	}
	if keptOriginal {
		p.keptOriginal.Add(1)
	}
	p.processed.Add(1)
}

// Fail records an item that could not be processed
func (p *Progress) Fail(item models.BatchItem) {
	p.mu.Lock()
	p.failedItems = append(p.failedItems, item)
	p.mu.Unlock()
	p.failed.Add(1)
	p.processed.Add(1)
}

// Skip records an item left untouched
func (p *Progress) Skip(item models.BatchItem) {
	p.mu.Lock()
	p.skippedItems = append(p.skippedItems, item)
	p.mu.Unlock()
	p.skipped.Add(1)
	p.processed.Add(1)
}

// Processed returns the number of items with a terminal outcome
func (p *Progress) Processed() int {
	return int(p.processed.Load())
}

// Apply copies the counters and item lists onto a status record
func (p *Progress) Apply(st *models.BatchTaskStatus) {
	st.Progress = models.BatchProgress{
		Total:     p.total,
		Processed: int(p.processed.Load()),
		Succeeded: int(p.succeeded.Load()),
		Failed:    int(p.failed.Load()),
	}
	st.SkippedCount = int(p.skipped.Load())
	st.SavedBytes = p.savedBytes.Load()
	st.KeptOriginalCount = int(p.keptOriginal.Load())

	p.mu.Lock()
	st.FailedItems = append([]models.BatchItem{}, p.failedItems...)
	st.SkippedItems = append([]models.BatchItem{}, p.skippedItems...)
	p.mu.Unlock()
}
