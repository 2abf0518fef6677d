package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vidgrab/internal/config"
	"vidgrab/internal/deps"
	"vidgrab/internal/services"
)

// CheckManifestAPI verifies the HTTP manifest backend answers at all. Any
// HTTP response counts as reachable; only transport failures fail the check.
func CheckManifestAPI(ctx context.Context, baseURL string) Result {
	const name = "Manifest API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes reports the space available to unprivileged writers on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}

// CheckFreeSpace reports whether path has at least minBytes available.
func CheckFreeSpace(name, path string, minBytes int64) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s (%d MiB free)", path, free/(1024*1024))
	if minBytes > 0 && free < uint64(minBytes) {
		return Result{Name: name, Detail: detail + fmt.Sprintf(", need %d MiB", minBytes/(1024*1024))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// EnsureFreeSpace returns a ResourceLimitError when path has less than
// minBytes available. A non-positive minimum disables the check.
func EnsureFreeSpace(path string, minBytes int64) error {
	if minBytes <= 0 {
		return nil
	}
	free, err := FreeBytes(path)
	if err != nil {
		return err
	}
	if free < uint64(minBytes) {
		return services.Wrap(services.ErrResourceLimit, "preflight", "free space",
			fmt.Sprintf("%d MiB free in %s, need %d MiB", free/(1024*1024), path, minBytes/(1024*1024)), nil)
	}
	return nil
}

// CheckSystemDeps evaluates the external binaries the configured backends
// need. Both the daemon and the CLI health command use this so the
// requirements list lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	if cfg.Resolver.Backend == config.ResolverYtDlp {
		requirements = append(requirements, deps.Requirement{
			Name:        "yt-dlp",
			Command:     cfg.Resolver.YtDlpBinary,
			Description: "Required for manifest resolution",
		})
	}
	requirements = append(requirements, deps.Requirement{
		Name:        "FFmpeg",
		Command:     cfg.Transcode.FFmpegBinary,
		Description: "Required for transcoding",
	})
	requirements = append(requirements, deps.Requirement{
		Name:        "FFprobe",
		Command:     cfg.Transcode.FFprobeBinary,
		Description: "Validates transcoded output",
		Optional:    !cfg.Transcode.ValidateOutput,
	})
	return deps.CheckBinaries(requirements)
}
