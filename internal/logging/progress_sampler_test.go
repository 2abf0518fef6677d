package logging_test

import (
	"testing"

	"vidgrab/internal/logging"
)

func TestProgressSamplerBuckets(t *testing.T) {
	s := logging.NewProgressSampler(25)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{10, false},
		{24.9, false},
		{25, true},
		{30, false},
		{99, true},
		{100, true},
		{150, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, "transcoding"); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerStageChangeResetsBuckets(t *testing.T) {
	s := logging.NewProgressSampler(10)
	if !s.ShouldLog(50, "fetching") {
		t.Fatal("first event should log")
	}
	if !s.ShouldLog(5, "transcoding") {
		t.Fatal("stage change should log")
	}
	if s.ShouldLog(-1, "transcoding") {
		t.Fatal("unknown percent on same stage should not log")
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *logging.ProgressSampler
	if !s.ShouldLog(10, "x") {
		t.Fatal("nil sampler should always log")
	}
}
