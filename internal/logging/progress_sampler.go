package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the subject or percentage bucket changes. A render emits one progress
// value per encoder tick, so logging every value would flood the output.
type ProgressSampler struct {
	bucketSize  float64
	lastSubject string
	lastBucket  int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the subject changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent can be
// negative to indicate "unknown"; subject is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, subject string) bool {
	if s == nil {
		return true
	}
	subject = strings.TrimSpace(subject)
	emit := false
	if subject != "" && subject != s.lastSubject {
		s.lastSubject = subject
		emit = true
		s.lastBucket = -1
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new render starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastSubject = ""
	s.lastBucket = -1
}
