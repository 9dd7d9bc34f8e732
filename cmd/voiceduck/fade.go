package main

import (
	"math"
	"time"
)

// fade is one time-bounded transition of the shared volume scalar. It is an
// immutable value consumed by the tick loop; starting a new fade replaces the
// active one, so a superseded fade can never write again.
//
// Easing:
//   - decreasing: 1 - 2^(-6p), a fast-start exponential decay (gets out of
//     the way of speech quickly, then settles)
//   - increasing: p^2, a slow-start ease-in (restores volume unobtrusively)
type fade struct {
	from      float64
	to        float64
	duration  time.Duration
	startedAt time.Time
}

func newFade(from, to float64, duration time.Duration, now time.Time) *fade {
	if duration <= 0 {
		duration = time.Millisecond
	}
	return &fade{from: from, to: to, duration: duration, startedAt: now}
}

// progress returns elapsed-time progress clamped to [0, 1].
func (f *fade) progress(now time.Time) float64 {
	p := float64(now.Sub(f.startedAt)) / float64(f.duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// valueAt returns the eased interpolated volume for now, and whether the fade
// has run to completion. The final sample snaps to the endpoint: the decay
// curve never quite reaches it on its own (1 - 2^-6 at p=1).
func (f *fade) valueAt(now time.Time) (v float64, done bool) {
	p := f.progress(now)
	if p >= 1 {
		return f.to, true
	}

	var eased float64
	if f.to < f.from {
		eased = 1 - math.Exp2(-6*p)
	} else {
		eased = p * p
	}

	return f.from + (f.to-f.from)*eased, false
}

// soundRatio is the proportional per-sound adjustment for a scalar fade from
// one volume to another. A zero start has no meaningful proportion, so sounds
// are left as they are.
func soundRatio(from, to float64) float64 {
	if from == 0 {
		return 1
	}
	return to / from
}

// flooredLevel keeps a per-sound target level above the exponential-curve
// floor.
func flooredLevel(level float64) float64 {
	if level < soundLevelFloor {
		return soundLevelFloor
	}
	return level
}
