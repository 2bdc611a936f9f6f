package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// Job names
const (
	JobLogRetention  = "log_retention"
	JobReferenceScan = "reference_scan"
	JobDuplicateScan = "duplicate_scan"
)

// ScanStarter starts a detached scan pass
type ScanStarter interface {
	StartScan(ctx context.Context) (*models.ScanStatus, error)
}

// JobStatus describes a registered job
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
}

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func(ctx context.Context) error
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service runs the periodic jobs: log retention and the optional scan triggers
type Service struct {
	cleanupLogs    interfaces.CleanupLogStorage
	processingLogs interfaces.ProcessingLogStorage
	references     ScanStarter
	duplicates     ScanStarter
	config         *common.Config
	cron           *cron.Cron
	logger         arbor.ILogger
	jobMu          sync.Mutex // Protects jobs map
	jobs           map[string]*jobEntry
	running        bool
}

// NewService creates a new scheduler service. Either scanner may be nil.
func NewService(
	storageManager interfaces.StorageManager,
	references ScanStarter,
	duplicates ScanStarter,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		cleanupLogs:    storageManager.CleanupLogStorage(),
		processingLogs: storageManager.ProcessingLogStorage(),
		references:     references,
		duplicates:     duplicates,
		config:         config,
		cron:           cron.New(cron.WithParser(common.CronParser())),
		logger:         logger,
		jobs:           make(map[string]*jobEntry),
	}
}

// Start registers the configured jobs and starts the cron loop
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if s.config.Retention.Schedule != "" {
		if err := s.RegisterJob(JobLogRetention, s.config.Retention.Schedule, "Delete cleanup and processing logs past retention", s.PurgeLogs); err != nil {
			return err
		}
	}
	if s.config.Schedule.ReferenceScan != "" && s.references != nil {
		if err := s.RegisterJob(JobReferenceScan, s.config.Schedule.ReferenceScan, "Start a reference scan", s.scanJob(JobReferenceScan, s.references)); err != nil {
			return err
		}
	}
	if s.config.Schedule.DuplicateScan != "" && s.duplicates != nil {
		if err := s.RegisterJob(JobDuplicateScan, s.config.Schedule.DuplicateScan, "Start a duplicate scan", s.scanJob(JobDuplicateScan, s.duplicates)); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	<-s.cron.Stop().Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the cron loop is active
func (s *Service) IsRunning() bool {
	return s.running
}

// RegisterJob registers a new job with the scheduler
func (s *Service) RegisterJob(name string, schedule string, description string, handler func(ctx context.Context) error) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", name, err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// TriggerJob runs a registered job immediately on the calling goroutine
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s: %w", name, common.ErrNotFound)
	}

	s.executeJob(name)

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if msg := s.jobs[name].lastError; msg != "" {
		return errors.New(msg)
	}
	return nil
}

// JobStatuses returns every registered job, ordered by name
func (s *Service) JobStatuses() []*JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	next := make(map[cron.EntryID]time.Time)
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	statuses := make([]*JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := &JobStatus{
			Name:        entry.name,
			Schedule:    entry.schedule,
			Description: entry.description,
			LastRun:     entry.lastRun,
			IsRunning:   entry.isRunning,
			LastError:   entry.lastError,
		}
		if t, ok := next[entry.cronID]; ok && !t.IsZero() {
			status.NextRun = &t
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// executeJob wraps job execution with panic recovery and status tracking.
// A job still running from the previous tick is skipped.
func (s *Service) executeJob(name string) {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job still running, tick skipped")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	start := time.Now()
	err := s.safeRun(handler)

	completionTime := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completionTime
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Str("duration", time.Since(start).String()).
			Msg("Job execution failed")
		return
	}
	s.logger.Info().
		Str("job_name", name).
		Str("duration", time.Since(start).String()).
		Msg("Job execution completed")
}

func (s *Service) safeRun(handler func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(context.Background())
}

// PurgeLogs deletes cleanup and processing logs older than the retention window
func (s *Service) PurgeLogs(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.config.Retention.Days)

	cleanups, err := s.cleanupLogs.DeleteCleanupLogsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge cleanup logs: %w", err)
	}
	processing, err := s.processingLogs.DeleteProcessingLogsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge processing logs: %w", err)
	}

	s.logger.Info().
		Int("cleanup_logs", cleanups).
		Int("processing_logs", processing).
		Int("retention_days", s.config.Retention.Days).
		Msg("Expired logs purged")
	return nil
}

// scanJob starts a pass; a pass already in progress is not an error
func (s *Service) scanJob(name string, scanner ScanStarter) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := scanner.StartScan(ctx)
		if errors.Is(err, common.ErrStateConflict) {
			s.logger.Info().Str("job_name", name).Msg("Scan already running, scheduled pass skipped")
			return nil
		}
		return err
	}
}
