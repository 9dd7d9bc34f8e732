package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSnapshot is the externally visible daemon state.
type StatusSnapshot struct {
	DuckerSnapshot
	Connection string `json:"connection"`
}

var (
	metricDucks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voiceduck_ducks_total",
		Help: "Duck transitions triggered.",
	})
	metricUnducks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voiceduck_unducks_total",
		Help: "Unduck fades started.",
	})
	metricAbortedUnducks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voiceduck_aborted_unducks_total",
		Help: "Pending unducks canceled by a re-entrant duck.",
	})
	metricBaselineAdoptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voiceduck_baseline_adoptions_total",
		Help: "Baseline volume reconciliations that adopted a new value.",
	})
	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voiceduck_reconnects_total",
		Help: "Reconnect attempts scheduled after unexpected closes.",
	})
	metricDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voiceduck_dropped_frames_total",
		Help: "Inbound frames dropped as unknown or malformed.",
	})
	metricVolume = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voiceduck_volume",
		Help: "Current shared global volume in [0, 1].",
	})
	metricDucked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voiceduck_ducked",
		Help: "Whether audio is currently ducked (1) or not (0).",
	})
	metricConnState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voiceduck_connection_state",
		Help: "Event-source connection state (0 disconnected, 1 connecting, 2 connected).",
	})
)

// runStatusServer serves /status and /metrics until ctx is canceled, then
// shuts down gracefully.
func runStatusServer(ctx context.Context, port int, snapshot func() StatusSnapshot, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			logger.Warn("status encode failed", "error", err)
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	logger.Info("status server listening", "port", port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
