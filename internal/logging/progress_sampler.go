package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the batch index or percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastBatch  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the batch changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent can be
// negative to indicate "unknown"; batch is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, batch string) bool {
	if s == nil {
		return true
	}
	batch = strings.TrimSpace(batch)
	emit := false
	if batch != "" && batch != s.lastBatch {
		s.lastBatch = batch
		emit = true
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

// Reset clears the sampler state (e.g. when a phase restarts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastBatch = ""
	s.lastBucket = -1
}
