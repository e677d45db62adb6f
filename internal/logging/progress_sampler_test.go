package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
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

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "2") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerBatchAndBuckets(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(0, "1") {
		t.Error("first batch should log")
	}
	if s.ShouldLog(4, "1") {
		t.Error("same batch inside bucket should not log")
	}
	if !s.ShouldLog(12, "1") {
		t.Error("crossing bucket should log")
	}
	if !s.ShouldLog(13, "2") {
		t.Error("batch change should log")
	}
	if s.ShouldLog(5, "2") {
		t.Error("lower bucket should not log")
	}
	if !s.ShouldLog(100, "") {
		t.Error("completion should log")
	}

	s.Reset()
	if !s.ShouldLog(0, "") {
		t.Error("reset should allow logging bucket zero again")
	}
}
