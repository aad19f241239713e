package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"zero uses default", 0, 5},
		{"negative uses default", -1, 5},
		{"custom", 10, 10},
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
	if !s.ShouldLog(50, "STREAMING") {
		t.Error("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "STREAMING", true},
		{3, "STREAMING", false},
		{9.9, "STREAMING", false},
		{10, "STREAMING", true},
		{25, "STREAMING", true},
		{26, "STREAMING", false},
		{26, "FINALIZING", true},
		{-1, "FINALIZING", false},
		{150, "FINALIZING", true},
		{100, "FINALIZING", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d (%v, %s): got %v want %v", i, step.percent, step.phase, got, step.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "STREAMING")
	s.Reset()
	if !s.ShouldLog(50, "STREAMING") {
		t.Fatal("expected log after reset")
	}
}
