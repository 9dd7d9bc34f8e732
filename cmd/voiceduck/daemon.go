package main

import (
	"context"
	"log/slog"
	"time"
)

// runDaemon is the single-owner control loop: it consumes events from the
// connection/host/settings layers and emits ticks that drive fades. Every
// ducker mutation happens here, between suspension points, which is what
// makes the duck/unduck path reentrant-safe without locks.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	d *Ducker,
	src *EventSource,
	settings *Settings,
	logger *slog.Logger,
) {
	fps := settings.Ducking().FPS
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}

			switch e := ev.(type) {
			case SpeakingStarted:
				d.HandleSpeakingStarted(e.SpeakerCount, time.Now())

			case SpeakingStopped:
				d.HandleSpeakingStopped(time.Now())

			case Ping:
				if err := src.Send(wireMessage{Type: msgTypePong}); err != nil {
					logger.Debug("pong not sent", "error", err)
				}

			case SoundStarted:
				d.HandleSoundStarted(e.ID, time.Now())

			case SettingsChanged:
				cfg := settings.Ducking()
				if cfg.FPS != fps {
					fps = cfg.FPS
					ticker.Reset(time.Second / time.Duration(fps))
					logger.Debug("ducking update rate changed", "fps", fps)
				}
				if !cfg.Enabled {
					d.Disable()
					src.Disconnect()
				} else {
					// Dialing blocks up to the handshake timeout; keep the
					// loop ticking while it happens.
					go src.Connect()
				}

			case Tick:
				// Ticks arrive via the ticker below, not the event channel.
				d.Tick(e.Now)

			default:
				logger.Debug("ignoring unexpected event", "event", ev)
			}

		case now := <-ticker.C:
			d.Tick(now)
		}
	}
}
