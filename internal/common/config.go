package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Assets      AssetsConfig    `toml:"assets"`
	Scan        ScanConfig      `toml:"scan"`
	Batch       BatchConfig     `toml:"batch"`
	Retention   RetentionConfig `toml:"retention"`
	Schedule    ScheduleConfig  `toml:"schedule"`
	HTTP        HTTPConfig      `toml:"http"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
	Dir        string   `toml:"dir"`         // Log directory when file output is enabled (default: beside executable)
}

// AssetsConfig describes where assets live and how they are addressed
type AssetsConfig struct {
	BaseURL   string          `toml:"base_url"`   // External base URL used to resolve relative paths
	UploadDir string          `toml:"upload_dir"` // Directory served under /upload/ for the local backend
	Backends  []BackendConfig `toml:"backends"`
}

// BackendConfig declares a storage backend known to the inventory
type BackendConfig struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"` // "local" or "remote"
}

// ScanConfig controls reference and duplicate scanning
type ScanConfig struct {
	TimeoutMinutes       int      `toml:"timeout_minutes"`        // Stuck-scan threshold (default: 5)
	DuplicateConcurrency int      `toml:"duplicate_concurrency"`  // Parallel hash workers (default: 4)
	HashTimeout          string   `toml:"hash_timeout"`           // Per-asset hash timeout (default: "90s")
	RemoteStorage        bool     `toml:"remote_storage"`         // Include remote backends in duplicate scans
	ExcludedGroups       []string `toml:"excluded_groups"`        // Asset groups skipped by reference scans
	ExcludedBackends     []string `toml:"excluded_backends"`      // Backends skipped by reference scans
	ScanPosts            bool     `toml:"scan_posts"`             // default: true
	ScanPages            bool     `toml:"scan_pages"`             // default: true
	ScanComments         bool     `toml:"scan_comments"`          // default: false
	ScanMoments          bool     `toml:"scan_moments"`           // default: false
	ScanPhotos           bool     `toml:"scan_photos"`            // default: false
	ScanDocs             bool     `toml:"scan_docs"`              // default: false
	InstalledPlugins     []string `toml:"installed_plugins"`      // Optional content kinds available: "moments", "photos", "docs"
	ProgressLogInterval  int      `toml:"progress_log_interval"`  // Log hashing progress every N assets (default: 50)
	OldGroupDeleteDelay  string   `toml:"old_group_delete_delay"` // Delay before purging superseded duplicate groups (default: "0s")
}

// BatchConfig controls the batch transform executor
type BatchConfig struct {
	Enabled         bool     `toml:"enabled"`          // Transform capability switch (default: true)
	KeepOriginal    bool     `toml:"keep_original"`    // Upload result beside the original instead of replacing it
	RemoteStorage   bool     `toml:"remote_storage"`   // Allow processing assets on remote backends
	DownloadTimeout int      `toml:"download_timeout"` // Seconds (default: 60)
	Concurrency     int      `toml:"concurrency"`      // Parallel transforms (default: 2)
	AllowedTypes    []string `toml:"allowed_types"`    // Media types eligible for processing
	MinSize         int64    `toml:"min_size"`         // Assets smaller than this are skipped (bytes)
	Quality         int      `toml:"quality"`          // JPEG quality (default: 80)
	MaxDimension    int      `toml:"max_dimension"`    // Longest edge after downscale, 0 disables
	TargetBackend   string   `toml:"target_backend"`   // Backend used for uploads (default: original's)
	TargetGroup     string   `toml:"target_group"`     // Group used for uploads (default: original's)
	OperatorName    string   `toml:"operator_name"`    // Recorded on cleanup logs (default: "system")
}

// RetentionConfig controls the log cleanup job
type RetentionConfig struct {
	Days     int    `toml:"days"`     // Days of cleanup/processing logs to keep (default: 30)
	Schedule string `toml:"schedule"` // Cron with seconds (default: "0 0 2 * * *")
}

// ScheduleConfig holds optional periodic scan triggers
type ScheduleConfig struct {
	ReferenceScan string `toml:"reference_scan"` // Cron with seconds, empty disables
	DuplicateScan string `toml:"duplicate_scan"` // Cron with seconds, empty disables
}

// HTTPConfig controls asset downloads
type HTTPConfig struct {
	ConnectTimeout string  `toml:"connect_timeout"` // default: "10s"
	ReadTimeout    string  `toml:"read_timeout"`    // default: "30s"
	RateLimit      float64 `toml:"rate_limit"`      // Downloads per second, 0 = unlimited
	UserAgent      string  `toml:"user_agent"`
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in reclaim.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/reclaim",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Assets: AssetsConfig{
			BaseURL:   "http://localhost:8090",
			UploadDir: "./data/upload",
			Backends: []BackendConfig{
				{Name: "local", Kind: BackendKindLocal},
			},
		},
		Scan: ScanConfig{
			TimeoutMinutes:       5,
			DuplicateConcurrency: 4,
			HashTimeout:          "90s",
			ScanPosts:            true,
			ScanPages:            true,
			ProgressLogInterval:  50,
			OldGroupDeleteDelay:  "0s",
		},
		Batch: BatchConfig{
			Enabled:         true,
			DownloadTimeout: 60,
			Concurrency:     2,
			AllowedTypes:    []string{"image/jpeg", "image/png", "image/gif"},
			MinSize:         20 * 1024,
			Quality:         80,
			OperatorName:    "system",
		},
		Retention: RetentionConfig{
			Days:     30,
			Schedule: "0 0 2 * * *",
		},
		HTTP: HTTPConfig{
			ConnectTimeout: "10s",
			ReadTimeout:    "30s",
			UserAgent:      "reclaim/" + Version,
		},
	}
}

// Backend kinds
const (
	BackendKindLocal  = "local"
	BackendKindRemote = "remote"
)

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RECLAIM_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("RECLAIM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RECLAIM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if badgerPath := os.Getenv("RECLAIM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("RECLAIM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("RECLAIM_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Assets
	if baseURL := os.Getenv("RECLAIM_BASE_URL"); baseURL != "" {
		config.Assets.BaseURL = baseURL
	}
	if uploadDir := os.Getenv("RECLAIM_UPLOAD_DIR"); uploadDir != "" {
		config.Assets.UploadDir = uploadDir
	}

	// Scan
	if timeout := os.Getenv("RECLAIM_SCAN_TIMEOUT_MINUTES"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			config.Scan.TimeoutMinutes = t
		}
	}
	if concurrency := os.Getenv("RECLAIM_SCAN_DUPLICATE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Scan.DuplicateConcurrency = c
		}
	}
	if hashTimeout := os.Getenv("RECLAIM_SCAN_HASH_TIMEOUT"); hashTimeout != "" {
		if _, err := time.ParseDuration(hashTimeout); err == nil {
			config.Scan.HashTimeout = hashTimeout
		}
	}
	if remote := os.Getenv("RECLAIM_SCAN_REMOTE_STORAGE"); remote != "" {
		if b, err := strconv.ParseBool(remote); err == nil {
			config.Scan.RemoteStorage = b
		}
	}

	// Batch
	if keepOriginal := os.Getenv("RECLAIM_BATCH_KEEP_ORIGINAL"); keepOriginal != "" {
		if b, err := strconv.ParseBool(keepOriginal); err == nil {
			config.Batch.KeepOriginal = b
		}
	}
	if concurrency := os.Getenv("RECLAIM_BATCH_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Batch.Concurrency = c
		}
	}
	if downloadTimeout := os.Getenv("RECLAIM_BATCH_DOWNLOAD_TIMEOUT"); downloadTimeout != "" {
		if d, err := strconv.Atoi(downloadTimeout); err == nil {
			config.Batch.DownloadTimeout = d
		}
	}

	// Retention
	if days := os.Getenv("RECLAIM_RETENTION_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			config.Retention.Days = d
		}
	}

	// HTTP
	if rateLimit := os.Getenv("RECLAIM_HTTP_RATE_LIMIT"); rateLimit != "" {
		if r, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			config.HTTP.RateLimit = r
		}
	}
}

// normalize clamps values that would otherwise stall the pipeline
func (c *Config) normalize() {
	if c.Scan.TimeoutMinutes <= 0 {
		c.Scan.TimeoutMinutes = 5
	}
	if c.Scan.DuplicateConcurrency <= 0 {
		c.Scan.DuplicateConcurrency = 4
	}
	if c.Scan.ProgressLogInterval <= 0 {
		c.Scan.ProgressLogInterval = 50
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = 2
	}
	if c.Batch.DownloadTimeout <= 0 {
		c.Batch.DownloadTimeout = 60
	}
	if c.Batch.Quality <= 0 || c.Batch.Quality > 100 {
		c.Batch.Quality = 80
	}
	if c.Batch.OperatorName == "" {
		c.Batch.OperatorName = "system"
	}
	if c.Retention.Days <= 0 {
		c.Retention.Days = 30
	}
	c.Assets.BaseURL = strings.TrimRight(c.Assets.BaseURL, "/")
	if len(c.Assets.Backends) == 0 {
		c.Assets.Backends = []BackendConfig{{Name: "local", Kind: BackendKindLocal}}
	}
}

// Validate checks values that cannot be clamped
func (c *Config) Validate() error {
	for _, b := range c.Assets.Backends {
		if b.Name == "" {
			return fmt.Errorf("assets.backends: backend name is required")
		}
		if b.Kind != BackendKindLocal && b.Kind != BackendKindRemote {
			return fmt.Errorf("assets.backends: backend %s has invalid kind %q (expected local or remote)", b.Name, b.Kind)
		}
	}
	for name, d := range map[string]string{
		"scan.hash_timeout":           c.Scan.HashTimeout,
		"scan.old_group_delete_delay": c.Scan.OldGroupDeleteDelay,
		"http.connect_timeout":        c.HTTP.ConnectTimeout,
		"http.read_timeout":           c.HTTP.ReadTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, d, err)
		}
	}
	for name, expr := range map[string]string{
		"retention.schedule":      c.Retention.Schedule,
		"schedule.reference_scan": c.Schedule.ReferenceScan,
		"schedule.duplicate_scan": c.Schedule.DuplicateScan,
	} {
		if expr == "" {
			continue
		}
		if err := ValidateSchedule(expr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// cronParser accepts the six-field (seconds first) format used by all schedules
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronParser returns the parser shared by config validation and the scheduler
func CronParser() cron.Parser {
	return cronParser
}

// ValidateSchedule validates a cron expression with a seconds field
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ApplyFlagOverrides applies command-line flag overrides to config
// Flags have highest priority and override both config file and environment variables
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// parseDurationOr parses s, falling back to def when empty or invalid
func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ---- Settings accessors ----

// ScanTimeout returns the stuck-scan threshold
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutMinutes) * time.Minute
}

// HashTimeout returns the per-asset hashing timeout
func (c *Config) HashTimeout() time.Duration {
	return parseDurationOr(c.Scan.HashTimeout, 90*time.Second)
}

// OldGroupDeleteDelay returns the pause before superseded duplicate groups are purged
func (c *Config) OldGroupDeleteDelay() time.Duration {
	return parseDurationOr(c.Scan.OldGroupDeleteDelay, 0)
}

// ConnectTimeout returns the download dial timeout
func (c *Config) ConnectTimeout() time.Duration {
	return parseDurationOr(c.HTTP.ConnectTimeout, 10*time.Second)
}

// ReadTimeout returns the download response timeout
func (c *Config) ReadTimeout() time.Duration {
	return parseDurationOr(c.HTTP.ReadTimeout, 30*time.Second)
}

// DownloadTimeout returns the batch download timeout
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Batch.DownloadTimeout) * time.Second
}

// IsRemoteBackend reports whether the named backend is declared remote.
// Unknown backends are treated as remote.
func (c *Config) IsRemoteBackend(name string) bool {
	for _, b := range c.Assets.Backends {
		if b.Name == name {
			return b.Kind == BackendKindRemote
		}
	}
	return true
}

// IsExcluded reports whether an asset in group/backend is excluded from reference scans
func (c *Config) IsExcluded(group, backend string) bool {
	for _, g := range c.Scan.ExcludedGroups {
		if g != "" && g == group {
			return true
		}
	}
	for _, b := range c.Scan.ExcludedBackends {
		if b != "" && b == backend {
			return true
		}
	}
	return false
}

// IsPluginInstalled reports whether an optional content kind is available
func (c *Config) IsPluginInstalled(kind string) bool {
	for _, p := range c.Scan.InstalledPlugins {
		if strings.EqualFold(p, kind) {
			return true
		}
	}
	return false
}

// IsAllowedType reports whether a media type may be batch processed
func (c *Config) IsAllowedType(mediaType string) bool {
	for _, t := range c.Batch.AllowedTypes {
		if strings.EqualFold(t, mediaType) {
			return true
		}
	}
	return false
}
