package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeResolver()
	c.normalizeTranscode()
	c.normalizeJobs()
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	if value, ok := os.LookupEnv("VIDGRAB_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Server.Bind = value
	}
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if value, ok := os.LookupEnv("VIDGRAB_PUBLIC_BASE_URL"); ok {
		c.Server.PublicBaseURL = value
	}
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
	origins := c.Server.AllowedOrigins[:0]
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
	if c.Server.SubmitRatePerMinute < 0 {
		c.Server.SubmitRatePerMinute = 0
	}
}

func (c *Config) normalizeResolver() {
	c.Resolver.Backend = strings.ToLower(strings.TrimSpace(c.Resolver.Backend))
	if c.Resolver.Backend == "" {
		c.Resolver.Backend = ResolverYtDlp
	}
	if strings.TrimSpace(c.Resolver.YtDlpBinary) == "" {
		c.Resolver.YtDlpBinary = defaultYtDlpBinary
	}
	c.Resolver.ManifestURL = strings.TrimRight(strings.TrimSpace(c.Resolver.ManifestURL), "/")
	if strings.TrimSpace(c.Resolver.UserAgent) == "" {
		c.Resolver.UserAgent = defaultUserAgent
	}
	for i := range c.Resolver.Platforms {
		p := &c.Resolver.Platforms[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		for j, host := range p.Hosts {
			p.Hosts[j] = strings.ToLower(strings.TrimSpace(host))
		}
	}
}

func (c *Config) normalizeTranscode() {
	if strings.TrimSpace(c.Transcode.FFmpegBinary) == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Transcode.FFprobeBinary) == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
	c.Transcode.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Transcode.Container), "."))
	c.Transcode.VideoCodec = strings.ToLower(strings.TrimSpace(c.Transcode.VideoCodec))
	c.Transcode.AudioCodec = strings.ToLower(strings.TrimSpace(c.Transcode.AudioCodec))
	c.Transcode.Preset = strings.TrimSpace(c.Transcode.Preset)
	if c.Transcode.KillGraceSeconds <= 0 {
		c.Transcode.KillGraceSeconds = defaultKillGraceSeconds
	}
}

func (c *Config) normalizeJobs() {
	c.Jobs.RetentionPolicy = strings.ToLower(strings.TrimSpace(c.Jobs.RetentionPolicy))
	if c.Jobs.RetentionPolicy == "" {
		c.Jobs.RetentionPolicy = RetentionWindow
	}
	c.Jobs.SweepSchedule = strings.TrimSpace(c.Jobs.SweepSchedule)
	if c.Jobs.SweepSchedule == "" {
		c.Jobs.SweepSchedule = defaultSweepSchedule
	}
	if c.Jobs.MinFreeMiB < 0 {
		c.Jobs.MinFreeMiB = 0
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	if value, ok := os.LookupEnv("VIDGRAB_S3_BUCKET"); ok && strings.TrimSpace(value) != "" {
		c.Storage.S3Bucket = value
	}
	c.Storage.S3Bucket = strings.TrimSpace(c.Storage.S3Bucket)
	c.Storage.S3Region = strings.TrimSpace(c.Storage.S3Region)
	if c.Storage.S3Region == "" {
		c.Storage.S3Region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	c.Storage.S3Endpoint = strings.TrimSpace(c.Storage.S3Endpoint)
	c.Storage.S3Prefix = strings.TrimLeft(strings.TrimSpace(c.Storage.S3Prefix), "/")
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("VIDGRAB_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
