package anneal

import (
	"math"
	"testing"
)

func TestAdaptiveScheduleAlphaBands(t *testing.T) {
	s := AdaptiveSchedule{MaxRangeLimit: 16}

	tests := []struct {
		name      string
		success   float64
		rangeLim  float64
		wantAlpha float64
	}{
		{"very high acceptance", 0.99, 8, 0.5},
		{"high acceptance", 0.9, 8, 0.9},
		{"mid acceptance", 0.4, 8, 0.95},
		{"low acceptance, wide window", 0.05, 8, 0.95},
		{"low acceptance, narrow window", 0.05, 1, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp, _ := s.Next(1.0, tt.rangeLim, tt.success)
			if math.Abs(temp-tt.wantAlpha) > 1e-12 {
				t.Errorf("Next(T=1, rlim=%g, success=%g) temp = %g, want %g",
					tt.rangeLim, tt.success, temp, tt.wantAlpha)
			}
		})
	}
}

func TestAdaptiveScheduleRangeLimit(t *testing.T) {
	s := AdaptiveSchedule{MaxRangeLimit: 16}

	// At the target acceptance rate the window is stable.
	_, rlim := s.Next(1, 8, targetSuccessRate)
	if math.Abs(rlim-8) > 1e-12 {
		t.Errorf("rlim at target rate = %g, want 8", rlim)
	}

	// Low acceptance shrinks, high acceptance grows.
	if _, shrunk := s.Next(1, 8, 0.1); shrunk >= 8 {
		t.Errorf("rlim should shrink at low acceptance, got %g", shrunk)
	}
	if _, grown := s.Next(1, 8, 0.9); grown <= 8 {
		t.Errorf("rlim should grow at high acceptance, got %g", grown)
	}

	// Clamped to [1, MaxRangeLimit].
	if _, clamped := s.Next(1, 16, 1.0); clamped != 16 {
		t.Errorf("rlim should clamp to max, got %g", clamped)
	}
	if _, floor := s.Next(1, 1, 0.0); floor != 1 {
		t.Errorf("rlim should clamp to 1, got %g", floor)
	}
}

func TestGeometricSchedule(t *testing.T) {
	s := GeometricSchedule{Alpha: 0.9, MaxRangeLimit: 8}

	temp, _ := s.Next(2.0, 4, 0.44)
	if math.Abs(temp-1.8) > 1e-12 {
		t.Errorf("temp = %g, want 1.8", temp)
	}
}
