// Package deps reports whether the external binaries vidgrab shells out to
// (yt-dlp, ffmpeg, ffprobe) can be found.
package deps
