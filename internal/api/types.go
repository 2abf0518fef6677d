package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DownloadRequest is the body of POST /api/download.
type DownloadRequest struct {
	URL string `json:"url"`
}

// Job describes a job in a transport-friendly format. Ready jobs carry the
// fields the front-end renders; failed jobs carry errorKind and detail.
type Job struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	Title           string      `json:"title,omitempty"`
	Duration        string      `json:"duration,omitempty"`
	DurationSeconds float64     `json:"durationSeconds,omitempty"`
	Thumbnail       string      `json:"thumbnail,omitempty"`
	DownloadURL     string      `json:"downloadUrl,omitempty"`
	Format          string      `json:"format,omitempty"`
	SourceURL       string      `json:"sourceUrl,omitempty"`
	Progress        JobProgress `json:"progress"`
	ErrorKind       string      `json:"errorKind,omitempty"`
	Detail          string      `json:"detail,omitempty"`
	Size            int64       `json:"size,omitempty"`
	Deliveries      int         `json:"deliveries,omitempty"`
	CreatedAt       string      `json:"createdAt,omitempty"`
	UpdatedAt       string      `json:"updatedAt,omitempty"`
	ReadyAt         string      `json:"readyAt,omitempty"`
	ExpiresAt       string      `json:"expiresAt,omitempty"`
}

// JobProgress captures stage progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Accepted is returned with 202 when a submitted job is still running after
// the submit wait elapsed.
type Accepted struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	StatusURL string `json:"statusUrl"`
}

// ErrorResponse is the body of every 4xx/5xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
	// ID is set when the failure belongs to a job.
	ID string `json:"id,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Health is the liveness payload served by GET /health.
type Health struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptimeSeconds"`
	Workers       int                `json:"workers"`
	Capacity      int                `json:"capacity"`
	ActiveJobs    int                `json:"activeJobs"`
	InFlight      int                `json:"inFlight"`
	JobCounts     map[string]int     `json:"jobCounts,omitempty"`
	Format        string             `json:"format"`
	LastError     string             `json:"lastError,omitempty"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}
