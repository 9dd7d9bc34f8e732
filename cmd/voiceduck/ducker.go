package main

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Ducker is the two-state (ducked / not ducked) controller. It owns the
// baseline volume, the single active fade, and the delayed-unduck window.
//
// All mutating methods run on the daemon goroutine only; there is exactly one
// mutation owner at any time and no lock on the hot path. Concurrent readers
// (status server, IPC) get a published snapshot instead.
type Ducker struct {
	vol      VolumeStore
	mixer    Mixer
	notify   Notifier
	settings *Settings
	logger   *slog.Logger

	ducked   bool
	baseline *float64 // nil before the first observation of the shared volume
	active   *fade    // nil when no transition is in flight
	unduckAt time.Time // zero when no unduck is pending

	snapshot atomic.Pointer[DuckerSnapshot]
}

// DuckerSnapshot is the read-only view published for observers.
type DuckerSnapshot struct {
	Ducked        bool     `json:"ducked"`
	Baseline      *float64 `json:"baseline_volume,omitempty"`
	Volume        float64  `json:"volume"`
	FadeActive    bool     `json:"fade_active"`
	UnduckPending bool     `json:"unduck_pending"`
}

func NewDucker(vol VolumeStore, mixer Mixer, notify Notifier, settings *Settings, logger *slog.Logger) *Ducker {
	d := &Ducker{
		vol:      vol,
		mixer:    mixer,
		notify:   notify,
		settings: settings,
		logger:   logger,
	}
	d.publishSnapshot()
	return d
}

// HandleSpeakingStarted processes a DUCK command.
func (d *Ducker) HandleSpeakingStarted(speakerCount int, now time.Time) {
	cfg := d.settings.Ducking()
	if !cfg.Enabled {
		return
	}
	if d.ducked {
		// Idempotent: more speakers joining an active duck changes nothing.
		d.logger.Debug("duck while already ducked; ignoring", "speakers", speakerCount)
		return
	}

	// A DUCK during the unduck grace window cancels the pending unduck; the
	// volume is still at the ducked level by our own doing, so reconciling
	// against it would corrupt the baseline.
	unduckPending := !d.unduckAt.IsZero()
	d.unduckAt = time.Time{}

	live := d.vol.Volume()
	if d.active == nil && !unduckPending {
		d.reconcileBaseline(live, cfg)
	}
	if d.baseline == nil {
		b := live
		d.baseline = &b
	}

	target := *d.baseline * (1 - cfg.Reduction())
	d.ducked = true
	d.startFade(live, target, cfg.DuckDuration(), now)

	metricDucks.Inc()
	d.logger.Debug("ducking",
		"speakers", speakerCount,
		"live", live,
		"baseline", *d.baseline,
		"target", target,
		"duration_ms", cfg.DuckDurationMS)
	d.publishSnapshot()
}

// HandleSpeakingStopped processes an UNDUCK command.
func (d *Ducker) HandleSpeakingStopped(now time.Time) {
	cfg := d.settings.Ducking()
	if !d.ducked {
		return
	}

	live := d.vol.Volume()
	if d.active == nil {
		d.reconcileBaseline(live, cfg)
	}

	// Flip before any waiting so the most recent command always wins: a DUCK
	// arriving during the grace window observes not-ducked and re-enters.
	d.ducked = false

	if delay := cfg.UnduckDelay(); delay > 0 {
		d.unduckAt = now.Add(delay)
		d.logger.Debug("unduck armed", "delay_ms", cfg.UnduckDelayMS)
		d.publishSnapshot()
		return
	}

	d.beginUnduckFade(cfg, now)
	d.publishSnapshot()
}

// HandleSoundStarted pulls a freshly started sound down to the ducked
// proportional level so it doesn't play at full volume until the next
// periodic update catches it.
func (d *Ducker) HandleSoundStarted(id string, now time.Time) {
	if !d.ducked || d.baseline == nil || *d.baseline == 0 {
		return
	}
	cfg := d.settings.Ducking()

	for _, s := range d.mixer.Playing() {
		if s.ID() != id {
			continue
		}
		level, err := s.Level()
		if err != nil {
			return // vanished already
		}
		target := flooredLevel(level * (1 - cfg.Reduction()))
		if err := s.FadeTo(target, newSoundFade); err != nil {
			d.logger.Debug("new-sound fade rejected", "sound", id, "error", err)
		}
		return
	}
}

// Tick advances the pending unduck and the active fade. Called at the
// configured ducking FPS.
func (d *Ducker) Tick(now time.Time) {
	if !d.unduckAt.IsZero() && !now.Before(d.unduckAt) {
		d.unduckAt = time.Time{}

		// Re-validate after the suspension: a DUCK may have re-entered during
		// the grace window, in which case its fade owns the volume and this
		// unduck is abandoned entirely.
		if d.ducked {
			metricAbortedUnducks.Inc()
			d.logger.Debug("pending unduck aborted by re-entrant duck")
		} else {
			d.beginUnduckFade(d.settings.Ducking(), now)
		}
	}

	if d.active != nil {
		v, done := d.active.valueAt(now)
		d.vol.SetVolume(v)
		if done {
			d.active = nil
		}
	}

	metricVolume.Set(d.vol.Volume())
	d.publishSnapshot()
}

// Disable cancels everything in flight and restores the baseline volume.
// Invoked when the master switch is turned off and on shutdown.
func (d *Ducker) Disable() {
	d.active = nil
	d.unduckAt = time.Time{}
	if d.ducked && d.baseline != nil {
		d.vol.SetVolume(*d.baseline)
	}
	d.ducked = false
	d.publishSnapshot()
}

// Snapshot returns the last published observer view.
func (d *Ducker) Snapshot() DuckerSnapshot {
	return *d.snapshot.Load()
}

// reconcileBaseline detects externally-driven volume changes and folds them
// into the baseline. Only called when no fade is in flight: mid-fade the
// shared volume is transiently in motion and reads are unreliable.
//
// This is a heuristic for "who last touched the volume", not a perfect
// detector: drift below tolerance is invisible, and while ducked the baseline
// is only ever raised, never lowered.
func (d *Ducker) reconcileBaseline(live float64, cfg DuckingConfig) {
	if d.baseline == nil {
		return
	}

	if !d.ducked {
		if math.Abs(live-*d.baseline) > volumeTolerance {
			d.adoptBaseline(live, cfg, "manual volume change while not ducked")
		}
		return
	}

	// reduction of 100% leaves no headroom to infer intent from (and a zero
	// divisor below); skip reconciliation outright.
	if cfg.ReductionPercent >= maxReductionPercent {
		return
	}

	expected := *d.baseline * (1 - cfg.Reduction())
	if live > expected+volumeTolerance {
		// The user raised volume while ducked: treat it as intent for a
		// louder baseline.
		b := live / (1 - cfg.Reduction())
		if b > 1 {
			b = 1
		}
		d.adoptBaseline(b, cfg, "volume raised while ducked")
	}
}

func (d *Ducker) adoptBaseline(b float64, cfg DuckingConfig, reason string) {
	d.baseline = &b
	metricBaselineAdoptions.Inc()
	d.logger.Debug("baseline adopted", "baseline", b, "reason", reason)
	if cfg.DebugLogging {
		d.notify.Info(fmt.Sprintf("Ducking baseline is now %d%% (%s)", int(math.Round(b*100)), reason))
	}
}

// startFade replaces any in-flight fade and kicks off the per-sound
// proportional adjustments. The superseded fade's continuation is simply the
// state being replaced; it never resumes and never writes again.
func (d *Ducker) startFade(from, to float64, duration time.Duration, now time.Time) {
	d.active = newFade(from, to, duration, now)

	ratio := soundRatio(from, to)
	for _, s := range d.mixer.Playing() {
		level, err := s.Level()
		if err != nil {
			// Vanished between selection and read.
			continue
		}
		target := flooredLevel(level * ratio)
		if err := s.FadeTo(target, duration); err != nil {
			d.logger.Debug("sound fade rejected", "sound", s.ID(), "error", err)
		}
	}
}

func (d *Ducker) beginUnduckFade(cfg DuckingConfig, now time.Time) {
	if d.baseline == nil {
		return
	}
	live := d.vol.Volume()
	d.startFade(live, *d.baseline, cfg.UnduckDuration(), now)
	metricUnducks.Inc()
	d.logger.Debug("unducking", "live", live, "baseline", *d.baseline, "duration_ms", cfg.UnduckDurationMS)
}

func (d *Ducker) publishSnapshot() {
	snap := DuckerSnapshot{
		Ducked:        d.ducked,
		Volume:        d.vol.Volume(),
		FadeActive:    d.active != nil,
		UnduckPending: !d.unduckAt.IsZero(),
	}
	if d.baseline != nil {
		b := *d.baseline
		snap.Baseline = &b
	}
	d.snapshot.Store(&snap)

	if d.ducked {
		metricDucked.Set(1)
	} else {
		metricDucked.Set(0)
	}
}
