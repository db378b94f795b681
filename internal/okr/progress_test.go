package okr_test

import (
	"testing"

	"okr-go/internal/okr"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		target  float64
		want    int
	}{
		{"fractional values", 1.6, 2, 80},
		{"over target clamps to 100", 150, 100, 100},
		{"zero target", 5, 0, 0},
		{"negative target", 5, -10, 0},
		{"negative current clamps to 0", -5, 10, 0},
		{"rounds half up", 1, 8, 13},
		{"exact", 50, 100, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := okr.Progress(tt.current, tt.target); got != tt.want {
				t.Errorf("Progress(%v, %v) = %d, want %d", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestObjectiveProgress(t *testing.T) {
	t.Run("no key results", func(t *testing.T) {
		if got := okr.ObjectiveProgress(okr.Objective{}); got != 0 {
			t.Errorf("ObjectiveProgress() = %d, want 0", got)
		}
	})

	t.Run("rounded mean", func(t *testing.T) {
		o := okr.Objective{KeyResults: []okr.KeyResult{
			{Target: 100, CurrentValue: 50},
			{Target: 10, CurrentValue: 10},
			{Target: 3, CurrentValue: 0},
		}}
		// (50 + 100 + 0) / 3 = 50
		if got := o.Progress(); got != 50 {
			t.Errorf("Progress() = %d, want 50", got)
		}
	})

	t.Run("mean of clamped values", func(t *testing.T) {
		o := okr.Objective{KeyResults: []okr.KeyResult{
			{Target: 100, CurrentValue: 300},
			{Target: 100, CurrentValue: 33},
		}}
		// (100 + 33) / 2 = 66.5
		if got := o.Progress(); got != 67 {
			t.Errorf("Progress() = %d, want 67", got)
		}
	})
}
