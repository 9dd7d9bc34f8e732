package main

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ============================================================================
// Host collaborators
// ============================================================================
// The ducker manipulates audio it does not own: a shared global-volume scalar
// and a dynamic set of playing sounds, both controlled by the host and freely
// changeable behind our back (a user dragging a slider, sounds stopping).
// These interfaces keep that boundary narrow.
// ============================================================================

// VolumeStore is the shared global-volume scalar in [0, 1]. External actors
// may read and write it at any time, uncoordinated with the ducker; baseline
// reconciliation exists precisely because of that.
type VolumeStore interface {
	Volume() float64
	SetVolume(v float64)
}

// SoundHandle is an ephemeral reference to a playing sound. The host owns its
// lifetime: the sound may stop at any moment, after which Level and FadeTo
// return errors that callers must swallow per-sound.
type SoundHandle interface {
	ID() string
	Level() (float64, error)
	FadeTo(level float64, d time.Duration) error
}

// Mixer enumerates the currently playing sounds.
type Mixer interface {
	Playing() []SoundHandle
}

// Notifier is the user-facing notification/toast sink.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// ============================================================================
// In-memory host
// ============================================================================
// Backs the standalone daemon and the tests. IPC writes the volume directly
// through SetVolume, modeling the uncoordinated external writer.
// ============================================================================

type memoryHost struct {
	mu     sync.RWMutex
	volume float64
	sounds map[string]*memorySound
}

func newMemoryHost(initialVolume float64) *memoryHost {
	return &memoryHost{
		volume: initialVolume,
		sounds: make(map[string]*memorySound),
	}
}

func (h *memoryHost) Volume() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.volume
}

func (h *memoryHost) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	h.mu.Lock()
	h.volume = v
	h.mu.Unlock()
}

// StartSound registers a playing sound at the given level. Restarting an
// existing id replaces it.
func (h *memoryHost) StartSound(id string, level float64) SoundHandle {
	s := &memorySound{host: h, id: id, level: level, alive: true}
	h.mu.Lock()
	if old, ok := h.sounds[id]; ok {
		old.alive = false
	}
	h.sounds[id] = s
	h.mu.Unlock()
	return s
}

// StopSound removes a sound. Handles held by others become dead and start
// rejecting operations.
func (h *memoryHost) StopSound(id string) {
	h.mu.Lock()
	if s, ok := h.sounds[id]; ok {
		s.alive = false
		delete(h.sounds, id)
	}
	h.mu.Unlock()
}

func (h *memoryHost) Playing() []SoundHandle {
	h.mu.RLock()
	handles := make([]SoundHandle, 0, len(h.sounds))
	for _, s := range h.sounds {
		handles = append(handles, s)
	}
	h.mu.RUnlock()

	// Deterministic order keeps logs and tests stable.
	sort.Slice(handles, func(i, j int) bool { return handles[i].ID() < handles[j].ID() })
	return handles
}

type memorySound struct {
	host  *memoryHost
	id    string
	level float64
	alive bool
}

func (s *memorySound) ID() string { return s.id }

func (s *memorySound) Level() (float64, error) {
	s.host.mu.RLock()
	defer s.host.mu.RUnlock()
	if !s.alive {
		return 0, fmt.Errorf("sound %s no longer playing", s.id)
	}
	return s.level, nil
}

// FadeTo applies the target level immediately. A real host ramps over d with
// its own exponential curve; the in-memory host only records the endpoint.
func (s *memorySound) FadeTo(level float64, d time.Duration) error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if !s.alive {
		return fmt.Errorf("sound %s no longer playing", s.id)
	}
	if level < 0 {
		level = 0
	}
	s.level = level
	return nil
}

// logNotifier surfaces notifications through the daemon log. A host embedding
// would route these to its toast UI instead.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Info(msg string)  { n.logger.Info(msg, "notify", true) }
func (n logNotifier) Warn(msg string)  { n.logger.Warn(msg, "notify", true) }
func (n logNotifier) Error(msg string) { n.logger.Error(msg, "notify", true) }
