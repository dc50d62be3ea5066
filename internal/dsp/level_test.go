package dsp

import (
	"math"
	"testing"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestLevelSilence(t *testing.T) {
	lp := NewLevelProcessor()
	got := lp.Process([]float32{0, 0, 0, 0}, 4)
	if got.RMS != 0 || got.Peak != 0 {
		t.Fatalf("silence must measure zero, got rms=%f peak=%f", got.RMS, got.Peak)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("measurement must carry a timestamp")
	}
}

func TestLevelEmptyBuffer(t *testing.T) {
	lp := NewLevelProcessor()
	got := lp.Process(nil, 0)
	if got.RMS != 0 || got.Peak != 0 {
		t.Fatalf("empty buffer must measure zero, got rms=%f peak=%f", got.RMS, got.Peak)
	}
}

func TestLevelConstantMagnitude(t *testing.T) {
	const a = 0.25
	lp := NewLevelProcessor()
	got := lp.Process([]float32{a, -a, a, -a}, 4)
	if !approx(got.RMS, a, 1e-6) {
		t.Fatalf("expected rms %f, got %f", a, got.RMS)
	}
	if !approx(got.Peak, a, 1e-6) {
		t.Fatalf("expected peak %f, got %f", a, got.Peak)
	}
}

func TestLevelSmoothingBlend(t *testing.T) {
	const f = 0.5
	lp := NewLevelProcessor()
	lp.Configure(true, f)

	first := lp.Process([]float32{0.8, -0.8, 0.8, -0.8}, 4)
	second := lp.Process([]float32{0.2, -0.2, 0.2, -0.2}, 4)

	wantPeak := first.Peak + (0.2-first.Peak)*f
	if !approx(second.Peak, wantPeak, 1e-6) {
		t.Fatalf("expected smoothed peak %f, got %f", wantPeak, second.Peak)
	}
	wantRMS := first.RMS + (0.2-first.RMS)*f
	if !approx(second.RMS, wantRMS, 1e-6) {
		t.Fatalf("expected smoothed rms %f, got %f", wantRMS, second.RMS)
	}
}

func TestLevelFactorClamped(t *testing.T) {
	lp := NewLevelProcessor()
	lp.Configure(true, 2.5)
	if _, factor, _, _ := lp.State(); factor != 1 {
		t.Fatalf("factor must clamp to 1, got %f", factor)
	}
	lp.Configure(true, -0.5)
	if _, factor, _, _ := lp.State(); factor != 0 {
		t.Fatalf("factor must clamp to 0, got %f", factor)
	}
}

func TestLevelSmoothingDisabledTracksRaw(t *testing.T) {
	lp := NewLevelProcessor()
	lp.Process([]float32{0.5, -0.5}, 2)

	// Disabled smoothing still updates state, so enabling it later blends
	// from the last raw value rather than from zero.
	lp.Configure(true, 0.5)
	rms, _ := lp.ApplySmoothing(0.1, 0.1)
	want := 0.5 + (0.1-0.5)*0.5
	if !approx(rms, want, 1e-6) {
		t.Fatalf("expected blend from last raw value, want %f got %f", want, rms)
	}
}

func TestLevelReplayThroughHooks(t *testing.T) {
	lp := NewLevelProcessor()
	lp.SetState(true, 0.25, 0, 0)

	var rms, peak float64
	for _, v := range []float64{1, 1, 1, 1} {
		rms, peak = lp.ApplySmoothing(v, v)
	}
	// Four EMA steps toward 1 with factor 0.25.
	want := 1 - math.Pow(0.75, 4)
	if !approx(rms, want, 1e-9) || !approx(peak, want, 1e-9) {
		t.Fatalf("expected %f after replay, got rms=%f peak=%f", want, rms, peak)
	}

	lp.Reset()
	if _, _, r, p := lp.State(); r != 0 || p != 0 {
		t.Fatal("reset must zero the smoothed state")
	}
}
