package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

var platformNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.PublicBaseURL != "" {
		parsed, err := url.Parse(c.Server.PublicBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("server.public_base_url must be an absolute URL, got %q", c.Server.PublicBaseURL)
		}
	}
	if c.Server.SubmitWaitSeconds < 0 {
		return errors.New("server.submit_wait_seconds must be zero or positive")
	}
	if c.Server.BodyLimitKiB <= 0 {
		return errors.New("server.body_limit_kib must be positive")
	}
	return nil
}

func (c *Config) validateResolver() error {
	switch c.Resolver.Backend {
	case ResolverYtDlp:
	case ResolverHTTP:
		if c.Resolver.ManifestURL == "" {
			return errors.New("resolver.manifest_url must be set when resolver.backend is \"http\"")
		}
		if _, err := url.ParseRequestURI(c.Resolver.ManifestURL); err != nil {
			return fmt.Errorf("resolver.manifest_url: %w", err)
		}
	default:
		return fmt.Errorf("resolver.backend must be %q or %q, got %q", ResolverYtDlp, ResolverHTTP, c.Resolver.Backend)
	}
	if c.Resolver.TimeoutSeconds <= 0 {
		return errors.New("resolver.timeout_seconds must be positive")
	}
	for i, p := range c.Resolver.Platforms {
		if !platformNamePattern.MatchString(p.Name) {
			return fmt.Errorf("resolver.platforms[%d].name %q is invalid", i, p.Name)
		}
		if len(p.Hosts) == 0 {
			return fmt.Errorf("resolver.platforms[%d].hosts must not be empty", i)
		}
		for _, host := range p.Hosts {
			if host == "" || strings.ContainsAny(host, "/:") {
				return fmt.Errorf("resolver.platforms[%d].hosts contains invalid host %q", i, host)
			}
		}
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxAttempts <= 0 {
		return errors.New("fetch.max_attempts must be positive")
	}
	if c.Fetch.BackoffBaseMillis <= 0 {
		return errors.New("fetch.backoff_base_ms must be positive")
	}
	if c.Fetch.BackoffFactor < 1 {
		return errors.New("fetch.backoff_factor must be at least 1")
	}
	if c.Fetch.BackoffMaxSeconds <= 0 {
		return errors.New("fetch.backoff_max_seconds must be positive")
	}
	if c.Fetch.MaxDownloadMiB <= 0 {
		return errors.New("fetch.max_download_mib must be positive")
	}
	if c.Fetch.MaxDurationSeconds <= 0 {
		return errors.New("fetch.max_duration_seconds must be positive")
	}
	if c.Fetch.RateLimitKiB < 0 {
		return errors.New("fetch.rate_limit_kib must be zero or positive")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	switch c.Transcode.Container {
	case "mkv", "mp4", "webm":
	default:
		return fmt.Errorf("transcode.container must be mkv, mp4, or webm, got %q", c.Transcode.Container)
	}
	switch c.Transcode.VideoCodec {
	case "hevc", "h264", "av1", "vp9":
	default:
		return fmt.Errorf("transcode.video_codec must be hevc, h264, av1, or vp9, got %q", c.Transcode.VideoCodec)
	}
	switch c.Transcode.AudioCodec {
	case "aac", "opus", "mp3", "copy":
	default:
		return fmt.Errorf("transcode.audio_codec must be aac, opus, mp3, or copy, got %q", c.Transcode.AudioCodec)
	}
	if c.Transcode.Container == "webm" && (c.Transcode.VideoCodec == "hevc" || c.Transcode.VideoCodec == "h264") {
		return errors.New("transcode.container webm requires video_codec av1 or vp9")
	}
	if c.Transcode.MaxHeight <= 0 {
		return errors.New("transcode.max_height must be positive")
	}
	if c.Transcode.CRF < 0 || c.Transcode.CRF > 63 {
		return errors.New("transcode.crf must be between 0 and 63")
	}
	if c.Transcode.TimeoutSeconds <= 0 {
		return errors.New("transcode.timeout_seconds must be positive")
	}
	if c.Transcode.CPUSeconds < 0 {
		return errors.New("transcode.cpu_seconds must be zero or positive")
	}
	if c.Transcode.Threads < 0 {
		return errors.New("transcode.threads must be zero or positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be positive")
	}
	if c.Jobs.QueueDepth < 0 {
		return errors.New("jobs.queue_depth must be zero or positive")
	}
	switch c.Jobs.RetentionPolicy {
	case RetentionWindow, RetentionFirstDownload:
	default:
		return fmt.Errorf("jobs.retention_policy must be %q or %q, got %q", RetentionWindow, RetentionFirstDownload, c.Jobs.RetentionPolicy)
	}
	if c.Jobs.RetentionMinutes <= 0 {
		return errors.New("jobs.retention_minutes must be positive")
	}
	if c.Jobs.RecordTTLHours <= 0 {
		return errors.New("jobs.record_ttl_hours must be positive")
	}
	if _, err := cron.ParseStandard(c.Jobs.SweepSchedule); err != nil {
		return fmt.Errorf("jobs.sweep_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket must be set when storage.backend is \"s3\"")
		}
		if c.Storage.S3Region == "" {
			return errors.New("storage.s3_region must be set when storage.backend is \"s3\" (or set AWS_REGION)")
		}
		if c.Storage.S3Endpoint != "" {
			if _, err := url.ParseRequestURI(c.Storage.S3Endpoint); err != nil {
				return fmt.Errorf("storage.s3_endpoint: %w", err)
			}
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageLocal, StorageS3, c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.ParseRequestURI(c.Notifications.NtfyTopic)
	if err != nil {
		return fmt.Errorf("notifications.ntfy_topic: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}
