package main

import (
	"math"
	"testing"
	"time"
)

func TestFadeValueAt_DecreasingEasing(t *testing.T) {
	t0 := time.Now()
	f := newFade(1.0, 0.0, time.Second, t0)

	// 1 - 2^(-6*0.5) = 1 - 2^-3 = 0.875, interpolated from 1 toward 0.
	v, done := f.valueAt(t0.Add(500 * time.Millisecond))
	if done {
		t.Fatal("fade must not be done at p=0.5")
	}
	if math.Abs(v-0.125) > 1e-9 {
		t.Fatalf("expected 0.125 at p=0.5, got %f", v)
	}

	// Fast start: the first quarter already drops most of the way.
	v, _ = f.valueAt(t0.Add(250 * time.Millisecond))
	if v > 0.4 {
		t.Fatalf("expected fast initial decay, got %f at p=0.25", v)
	}
}

func TestFadeValueAt_IncreasingEasing(t *testing.T) {
	t0 := time.Now()
	f := newFade(0.0, 1.0, time.Second, t0)

	// p^2 at p=0.5 is 0.25.
	v, done := f.valueAt(t0.Add(500 * time.Millisecond))
	if done {
		t.Fatal("fade must not be done at p=0.5")
	}
	if math.Abs(v-0.25) > 1e-9 {
		t.Fatalf("expected 0.25 at p=0.5, got %f", v)
	}

	// Slow start: barely moved in the first quarter.
	v, _ = f.valueAt(t0.Add(250 * time.Millisecond))
	if v > 0.1 {
		t.Fatalf("expected slow initial rise, got %f at p=0.25", v)
	}
}

func TestFadeValueAt_SnapsToEndpoint(t *testing.T) {
	t0 := time.Now()
	f := newFade(1.0, 0.7, 500*time.Millisecond, t0)

	v, done := f.valueAt(t0.Add(500 * time.Millisecond))
	if !done {
		t.Fatal("expected done at the full duration")
	}
	if v != 0.7 {
		t.Fatalf("expected exact endpoint 0.7, got %f", v)
	}

	// Well past the end: still the exact endpoint.
	v, done = f.valueAt(t0.Add(time.Hour))
	if !done || v != 0.7 {
		t.Fatalf("expected (0.7, true) past the end, got (%f, %v)", v, done)
	}
}

func TestFadeValueAt_BeforeStart(t *testing.T) {
	t0 := time.Now()
	f := newFade(0.3, 0.9, time.Second, t0)

	v, done := f.valueAt(t0.Add(-time.Second))
	if done {
		t.Fatal("fade must not be done before it starts")
	}
	if v != 0.3 {
		t.Fatalf("expected start value 0.3, got %f", v)
	}
}

func TestNewFade_ZeroDurationClamped(t *testing.T) {
	t0 := time.Now()
	f := newFade(1.0, 0.5, 0, t0)

	v, done := f.valueAt(t0.Add(time.Millisecond))
	if !done || v != 0.5 {
		t.Fatalf("expected immediate completion at 0.5, got (%f, %v)", v, done)
	}
}

func TestSoundRatio(t *testing.T) {
	if got := soundRatio(1.0, 0.7); math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("expected ratio 0.7, got %f", got)
	}
	if got := soundRatio(0.7, 1.0); math.Abs(got-1.0/0.7) > 1e-9 {
		t.Fatalf("expected ratio %f, got %f", 1.0/0.7, got)
	}
	if got := soundRatio(0, 0.5); got != 1 {
		t.Fatalf("expected ratio 1 for a zero start, got %f", got)
	}
}

func TestFlooredLevel(t *testing.T) {
	if got := flooredLevel(0.5); got != 0.5 {
		t.Fatalf("expected 0.5 passed through, got %f", got)
	}
	if got := flooredLevel(0); got != soundLevelFloor {
		t.Fatalf("expected floor %f, got %f", soundLevelFloor, got)
	}
}
