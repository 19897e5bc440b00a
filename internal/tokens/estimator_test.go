package tokens

import "testing"

func TestEstimateFallback(t *testing.T) {
	// No encoding loaded: length/4 heuristic.
	e := &Estimator{}
	if got := e.Estimate("abcdefgh"); got != 2 {
		t.Errorf("Estimate = %d, want 2", got)
	}
	if got := e.Estimate(""); got != 0 {
		t.Errorf("Estimate(empty) = %d", got)
	}
}

func TestEstimateNilReceiver(t *testing.T) {
	var e *Estimator
	if got := e.Estimate("abcdefgh"); got != 2 {
		t.Errorf("nil estimator should fall back, got %d", got)
	}
}

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Error("Get should return the same estimator")
	}
	if a.Estimate("hello world") <= 0 {
		t.Error("estimator should count something for non-empty text")
	}
}
