package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	WorkDir     string `toml:"work_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	LogDir      string `toml:"log_dir"`
}

// Server contains configuration for the delivery endpoint.
type Server struct {
	Bind                string   `toml:"bind"`
	PublicBaseURL       string   `toml:"public_base_url"`
	SubmitWaitSeconds   int      `toml:"submit_wait_seconds"`
	AllowedOrigins      []string `toml:"allowed_origins"`
	SubmitRatePerMinute int      `toml:"submit_rate_per_minute"`
	BodyLimitKiB        int      `toml:"body_limit_kib"`
}

// Platform declares an additional watch-style video host.
type Platform struct {
	Name  string   `toml:"name"`
	Hosts []string `toml:"hosts"`
}

// Resolver contains configuration for manifest lookups.
type Resolver struct {
	Backend        string     `toml:"backend"`
	YtDlpBinary    string     `toml:"ytdlp_binary"`
	ManifestURL    string     `toml:"manifest_url"`
	TimeoutSeconds int        `toml:"timeout_seconds"`
	UserAgent      string     `toml:"user_agent"`
	Platforms      []Platform `toml:"platforms"`
}

// Fetch contains configuration for stream transfers.
type Fetch struct {
	MaxAttempts        int     `toml:"max_attempts"`
	BackoffBaseMillis  int     `toml:"backoff_base_ms"`
	BackoffFactor      float64 `toml:"backoff_factor"`
	BackoffMaxSeconds  int     `toml:"backoff_max_seconds"`
	MaxDownloadMiB     int64   `toml:"max_download_mib"`
	MaxDurationSeconds int     `toml:"max_duration_seconds"`
	RateLimitKiB       int     `toml:"rate_limit_kib"`
	ParallelStreams    bool    `toml:"parallel_streams"`
}

// Transcode contains configuration for the ffmpeg output target and bounds.
type Transcode struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	FFprobeBinary    string `toml:"ffprobe_binary"`
	Container        string `toml:"container"`
	VideoCodec       string `toml:"video_codec"`
	MaxHeight        int    `toml:"max_height"`
	AudioCodec       string `toml:"audio_codec"`
	AudioBitrate     string `toml:"audio_bitrate"`
	Preset           string `toml:"preset"`
	CRF              int    `toml:"crf"`
	Threads          int    `toml:"threads"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	CPUSeconds       int    `toml:"cpu_seconds"`
	KillGraceSeconds int    `toml:"kill_grace_seconds"`
	ValidateOutput   bool   `toml:"validate_output"`
}

// Jobs contains configuration for the orchestrator.
type Jobs struct {
	Workers          int    `toml:"workers"`
	QueueDepth       int    `toml:"queue_depth"`
	RetentionPolicy  string `toml:"retention_policy"`
	RetentionMinutes int    `toml:"retention_minutes"`
	RecordTTLHours   int    `toml:"record_ttl_hours"`
	SweepSchedule    string `toml:"sweep_schedule"`
	ReuseReady       bool   `toml:"reuse_ready"`
	MinFreeMiB       int64  `toml:"min_free_mib"`
}

// Storage contains configuration for where finished artifacts live.
type Storage struct {
	Backend        string `toml:"backend"`
	S3Bucket       string `toml:"s3_bucket"`
	S3Region       string `toml:"s3_region"`
	S3Prefix       string `toml:"s3_prefix"`
	S3Endpoint     string `toml:"s3_endpoint"`
	S3UsePathStyle bool   `toml:"s3_use_path_style"`
}

// Notifications contains configuration for ntfy job notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OnReady               bool   `toml:"on_ready"`
	OnFailure             bool   `toml:"on_failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for vidgrab.
//
// Configuration sections by subsystem:
//   - Paths: state, scratch, artifact, and log directories
//   - Server: delivery endpoint bind address and client-facing behaviour
//   - Resolver: manifest backend (yt-dlp or HTTP manifest API) and platforms
//   - Fetch: retry policy, size/time limits, throughput cap
//   - Transcode: output target and encoder process bounds
//   - Jobs: worker pool, capacity, retention policy, sweeper schedule
//   - Storage: local or S3 artifact storage
//   - Notifications: optional ntfy topic for finished jobs
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Resolver      Resolver      `toml:"resolver"`
	Fetch         Fetch         `toml:"fetch"`
	Transcode     Transcode     `toml:"transcode"`
	Jobs          Jobs          `toml:"jobs"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidgrab/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded into the environment first; variables already set win.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidgrab.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Paths.ArtifactDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the job registry location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidgrab.lock")
}

// SubmitWait returns how long a submission blocks for a terminal job state.
func (c *Config) SubmitWait() time.Duration {
	return time.Duration(c.Server.SubmitWaitSeconds) * time.Second
}

// Retention returns how long a ready artifact is kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Jobs.RetentionMinutes) * time.Minute
}

// RecordTTL returns how long terminal job records are kept.
func (c *Config) RecordTTL() time.Duration {
	return time.Duration(c.Jobs.RecordTTLHours) * time.Hour
}

// Capacity returns the maximum number of non-terminal jobs.
func (c *Config) Capacity() int {
	return c.Jobs.Workers + c.Jobs.QueueDepth
}

// MaxDownloadBytes returns the per-job transfer ceiling.
func (c *Config) MaxDownloadBytes() int64 {
	return c.Fetch.MaxDownloadMiB * 1024 * 1024
}

// ResolverTimeout bounds a single manifest lookup.
func (c *Config) ResolverTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
