// Package procgroup runs external tools (yt-dlp, ffmpeg, ffprobe) with a
// scoped lifetime.
//
// Each process is started as the leader of its own process group. Context
// cancellation or a wall-clock timeout sends SIGTERM to the whole group,
// followed by SIGKILL after a grace period; a final SIGKILL is sent to the
// group after every exit so helper processes spawned by the tool cannot
// outlive the job that started them. On Linux an RLIMIT_CPU budget is applied
// with prlimit(2) and the leader dies with its parent.
package procgroup
