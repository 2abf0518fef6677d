// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe under the process supervisor and returns a Result
// whose helpers expose the primary video stream, stream counts, container
// format names, duration, and size. The transcoder uses it to confirm that
// finished artifacts match the requested target.
package ffprobe
