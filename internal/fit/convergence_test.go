package fit

import (
	"math"
	"testing"
)

func TestConvergenceTracker_BasicConvergence(t *testing.T) {
	config := ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.01, // 1% improvement required
	}
	tracker := NewConvergenceTracker(config)

	if tracker.BestScore() != math.Inf(1) {
		t.Errorf("Expected initial best score to be Inf, got %v", tracker.BestScore())
	}

	if tracker.Update(1.0) {
		t.Error("Should not converge on first update")
	}

	if tracker.Update(0.8) { // 20% improvement
		t.Error("Should not converge after improvement")
	}
	if tracker.StaleCount() != 0 {
		t.Errorf("Expected stale count 0 after improvement, got %v", tracker.StaleCount())
	}

	// Last significant was 0.8, so anything within 1% of it is stale
	for i, score := range []float64{0.795, 0.796} {
		if tracker.Update(score) {
			t.Errorf("Should not converge yet (%d/3)", i+1)
		}
	}
	if tracker.StaleCount() != 2 {
		t.Errorf("Expected stale count 2, got %v", tracker.StaleCount())
	}

	if !tracker.Update(0.797) {
		t.Error("Should converge after patience exceeded (3/3)")
	}
	if tracker.BestScore() != 0.795 {
		t.Errorf("Expected best score 0.795, got %v", tracker.BestScore())
	}
}

func TestConvergenceTracker_InfiniteStart(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 1, Threshold: 0.5})

	tracker.Update(math.Inf(1))
	if tracker.Update(10) {
		t.Error("First finite score after Inf should count as improvement")
	}
	if tracker.StaleCount() != 0 {
		t.Errorf("Expected stale count 0, got %d", tracker.StaleCount())
	}
}

func TestConvergenceTracker_ZeroScore(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 1, Threshold: 0})

	tracker.Update(0)
	if !tracker.Update(0) {
		t.Error("Nothing improves on a perfect score; expected convergence")
	}
}

func TestConvergenceTracker_Disabled(t *testing.T) {
	tracker := NewConvergenceTracker(DisabledConvergenceConfig())

	for i := 0; i < 100; i++ {
		if tracker.Update(1.0) {
			t.Error("Should never converge when disabled")
		}
	}
	if len(tracker.History()) != 100 {
		t.Errorf("Expected history to be recorded while disabled, got %d", len(tracker.History()))
	}
}

func TestConvergenceTracker_HistoryAndReset(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())

	scores := []float64{1.0, 0.9, 0.85, 0.82}
	for _, s := range scores {
		tracker.Update(s)
	}

	history := tracker.History()
	for i, s := range scores {
		if history[i] != s {
			t.Errorf("Expected history[%d] = %v, got %v", i, s, history[i])
		}
	}

	history[0] = 999.0
	if tracker.History()[0] == 999.0 {
		t.Error("History() should return a copy, not a reference")
	}

	tracker.Reset()
	if len(tracker.History()) != 0 {
		t.Error("Expected empty history after reset")
	}
	if tracker.BestScore() != math.Inf(1) {
		t.Error("Expected best score reset to Inf")
	}
	if tracker.StaleCount() != 0 {
		t.Error("Expected stale count reset to 0")
	}
}
