package transcode

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"
)

// progressWriter parses ffmpeg "-progress pipe:1" key=value output.
type progressWriter struct {
	mu       sync.Mutex
	pending  []byte
	duration time.Duration
	report   func(percent float64)
	last     float64
}

func newProgressWriter(duration time.Duration, report func(float64)) *progressWriter {
	return &progressWriter{duration: duration, report: report, last: -1}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		w.line(string(w.pending[:idx]))
		w.pending = w.pending[idx+1:]
	}
	if len(w.pending) > 4096 {
		w.pending = w.pending[:0]
	}
	return len(p), nil
}

func (w *progressWriter) line(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || w.report == nil {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		if w.duration <= 0 {
			return
		}
		micros, err := strconv.ParseInt(value, 10, 64)
		if err != nil || micros < 0 {
			return
		}
		percent := float64(time.Duration(micros)*time.Microsecond) / float64(w.duration) * 100
		w.emit(min(percent, 99.9))
	case "progress":
		if value == "end" {
			w.emit(100)
		}
	}
}

func (w *progressWriter) emit(percent float64) {
	if percent <= w.last {
		return
	}
	w.last = percent
	w.report(percent)
}
