package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (optional; defaults apply without one)")
		connURL    = flag.String("url", "", "Override ducking.connection_url")
		authToken  = flag.String("token", "", "Override ducking.auth_token")
		ipcSocket  = flag.String("ipc-socket", "", "Override ipc.socket_path")
		statusPort = flag.Int("status-port", -1, "Override status.port (0 disables the status server)")
		logLevel   = flag.String("log-level", "", "Override logging.level: error, warn, info, debug")
		showVer    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("voiceduck v%s\n", version)
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	// Flag overrides on top of file values.
	if *connURL != "" {
		cfg.Ducking.ConnectionURL = *connURL
	}
	if *authToken != "" {
		cfg.Ducking.AuthToken = *authToken
	}
	if *ipcSocket != "" {
		cfg.IPC.SocketPath = *ipcSocket
	}
	if *statusPort >= 0 {
		cfg.Status.Port = *statusPort
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	cfg.Normalize()

	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(level, cfg.Ducking.DebugLogging)

	settings := NewSettings(cfg, *configPath, logger)
	host := newMemoryHost(1.0)
	notify := logNotifier{logger: logger}

	events := make(chan Event, 64)
	ducker := NewDucker(host, host, notify, settings, logger)
	source := NewEventSource(settings, events, notify, logger)

	snapshot := func() StatusSnapshot {
		return StatusSnapshot{
			DuckerSnapshot: ducker.Snapshot(),
			Connection:     source.State().String(),
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting voiceduck",
		"version", version,
		"url", cfg.Ducking.ConnectionURL,
		"ipc", cfg.IPC.SocketPath,
		"status_port", cfg.Status.Port,
		"fps", cfg.Ducking.FPS)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, ducker, source, settings, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, &ipcHandler{
			host:     host,
			events:   events,
			snapshot: snapshot,
			logger:   logger,
		})
	})

	if cfg.Status.Port > 0 {
		g.Go(func() error {
			return runStatusServer(gctx, cfg.Status.Port, snapshot, logger)
		})
	}

	g.Go(func() error {
		return settings.Watch(gctx, func() {
			select {
			case events <- SettingsChanged{}:
			default:
			}
		})
	})

	source.Connect()

	err = g.Wait()

	// Shutdown: drop the connection (cancelling any pending reconnect timer)
	// and abandon any in-flight fade.
	_ = source.Close()
	ducker.Disable()

	if err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
