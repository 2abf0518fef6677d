package config

const (
	ResolverYtDlp = "ytdlp"
	ResolverHTTP  = "http"

	RetentionWindow        = "window"
	RetentionFirstDownload = "first_download"

	StorageLocal = "local"
	StorageS3    = "s3"
)

const (
	defaultDataDir             = "~/.local/share/vidgrab"
	defaultWorkDir             = "~/.local/share/vidgrab/work"
	defaultArtifactDir         = "~/.local/share/vidgrab/artifacts"
	defaultLogDir              = "~/.local/share/vidgrab/logs"
	defaultBind                = "127.0.0.1:8000"
	defaultSubmitWaitSeconds   = 170
	defaultSubmitRatePerMinute = 30
	defaultBodyLimitKiB        = 16
	defaultYtDlpBinary         = "yt-dlp"
	defaultResolverTimeout     = 60
	defaultUserAgent           = "vidgrab/dev"
	defaultFetchMaxAttempts    = 5
	defaultBackoffBaseMillis   = 1000
	defaultBackoffFactor       = 2.0
	defaultBackoffMaxSeconds   = 30
	defaultMaxDownloadMiB      = 4096
	defaultMaxFetchSeconds     = 1800
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultContainer           = "mkv"
	defaultVideoCodec          = "hevc"
	defaultMaxHeight           = 720
	defaultAudioCodec          = "aac"
	defaultAudioBitrate        = "160k"
	defaultPreset              = "medium"
	defaultCRF                 = 28
	defaultTranscodeTimeout    = 3600
	defaultTranscodeCPUSeconds = 14400
	defaultKillGraceSeconds    = 5
	defaultWorkers             = 2
	defaultQueueDepth          = 8
	defaultRetentionMinutes    = 15
	defaultRecordTTLHours      = 24
	defaultSweepSchedule       = "@every 1m"
	defaultMinFreeMiB          = 2048
	defaultS3Prefix            = "artifacts/"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			WorkDir:     defaultWorkDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
		},
		Server: Server{
			Bind:                defaultBind,
			SubmitWaitSeconds:   defaultSubmitWaitSeconds,
			AllowedOrigins:      []string{"*"},
			SubmitRatePerMinute: defaultSubmitRatePerMinute,
			BodyLimitKiB:        defaultBodyLimitKiB,
		},
		Resolver: Resolver{
			Backend:        ResolverYtDlp,
			YtDlpBinary:    defaultYtDlpBinary,
			TimeoutSeconds: defaultResolverTimeout,
			UserAgent:      defaultUserAgent,
		},
		Fetch: Fetch{
			MaxAttempts:        defaultFetchMaxAttempts,
			BackoffBaseMillis:  defaultBackoffBaseMillis,
			BackoffFactor:      defaultBackoffFactor,
			BackoffMaxSeconds:  defaultBackoffMaxSeconds,
			MaxDownloadMiB:     defaultMaxDownloadMiB,
			MaxDurationSeconds: defaultMaxFetchSeconds,
			ParallelStreams:    true,
		},
		Transcode: Transcode{
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			Container:        defaultContainer,
			VideoCodec:       defaultVideoCodec,
			MaxHeight:        defaultMaxHeight,
			AudioCodec:       defaultAudioCodec,
			AudioBitrate:     defaultAudioBitrate,
			Preset:           defaultPreset,
			CRF:              defaultCRF,
			TimeoutSeconds:   defaultTranscodeTimeout,
			CPUSeconds:       defaultTranscodeCPUSeconds,
			KillGraceSeconds: defaultKillGraceSeconds,
			ValidateOutput:   true,
		},
		Jobs: Jobs{
			Workers:          defaultWorkers,
			QueueDepth:       defaultQueueDepth,
			RetentionPolicy:  RetentionWindow,
			RetentionMinutes: defaultRetentionMinutes,
			RecordTTLHours:   defaultRecordTTLHours,
			SweepSchedule:    defaultSweepSchedule,
			ReuseReady:       true,
			MinFreeMiB:       defaultMinFreeMiB,
		},
		Storage: Storage{
			Backend:  StorageLocal,
			S3Prefix: defaultS3Prefix,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
			OnReady:               true,
			OnFailure:             true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
