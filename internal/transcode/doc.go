// Package transcode turns fetched streams into the final artifact with
// ffmpeg.
//
// Each encode runs in its own process group with a wall-clock timeout and an
// optional CPU-time rlimit, so cancellation or failure never leaves an
// encoder behind. Output is written to a ".part" file that is removed on
// failure and renamed once the encode (and optional ffprobe validation)
// succeeds.
package transcode
