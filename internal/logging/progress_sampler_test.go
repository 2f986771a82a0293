package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "video.mp4") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_SubjectChange(t *testing.T) {
	s := NewProgressSampler(5)

	if !s.ShouldLog(0, "walkingTask_a.mp4") {
		t.Error("first subject should log")
	}
	if s.ShouldLog(0, "walkingTask_a.mp4") {
		t.Error("same subject and percent should not log again")
	}
	if !s.ShouldLog(0, "handImagingTask_a.mp4") {
		t.Error("different subject should log")
	}
	if s.lastSubject != "handImagingTask_a.mp4" {
		t.Errorf("lastSubject = %q", s.lastSubject)
	}
}

func TestProgressSampler_PercentBuckets(t *testing.T) {
	s := NewProgressSampler(5)

	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{3, false},
		{5, true},
		{7, false},
		{10, true},
		{95, true},
		{100, true},
		{105, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, "render"); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSampler_NegativePercent(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(-1, "unknown") {
		t.Error("first call should log even with negative percent")
	}
	if s.ShouldLog(-1, "unknown") {
		t.Error("negative percent should not trigger bucket logging")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "render")

	s.Reset()

	if s.lastSubject != "" || s.lastBucket != -1 {
		t.Fatalf("unexpected state after reset: %+v", s)
	}
	if !s.ShouldLog(50, "render") {
		t.Error("should log after reset")
	}
}
