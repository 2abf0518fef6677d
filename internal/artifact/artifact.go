package artifact

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
)

// Artifact is a finished file owned by exactly one job.
type Artifact struct {
	Key         string
	Name        string
	Size        int64
	ContentType string
}

// Store persists finished artifacts.
type Store interface {
	// Backend names the storage implementation for health output.
	Backend() string
	// Publish moves or uploads localPath as name under jobID. The local file
	// is consumed.
	Publish(ctx context.Context, jobID, localPath, name string) (Artifact, error)
	// Open streams the artifact stored under key together with its size.
	// A missing artifact is a NotFoundError.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Remove deletes the artifact stored under key. Removing a missing
	// artifact succeeds.
	Remove(ctx context.Context, key string) error
}

// Key builds the storage key for a job's artifact.
func Key(jobID, name string) string {
	return jobID + "/" + name
}

var containerTypes = map[string]string{
	".mkv":  "video/x-matroska",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// ContentTypeFor returns the MIME type served for name.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := containerTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
