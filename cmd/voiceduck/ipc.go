package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC socket is the local control surface of the standalone daemon. It
// models the host side of the plugin boundary:
//   - set_volume is the "user drags the slider" path: it writes the shared
//     volume store directly, bypassing the daemon loop. That uncoordinated
//     write is exactly what baseline reconciliation exists for.
//   - sound_started / sound_stopped manage host-owned sound handles and
//     notify the ducker about new sounds.
//   - status returns the published snapshot.
//
// Protocol: line-delimited JSON.
//   Client sends: {"type": "...", "data": {...}}
//   Server responds: {"status":"ok", ...} or {"status":"error","error":"msg"}
// ============================================================================

type ipcRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ipcResponse struct {
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Snapshot *StatusSnapshot `json:"snapshot,omitempty"`
}

type ipcSetVolume struct {
	Volume float64 `json:"volume"`
}

type ipcSound struct {
	ID    string  `json:"id"`
	Level float64 `json:"level,omitempty"`
}

// ipcHandler bundles what the IPC surface may touch.
type ipcHandler struct {
	host     *memoryHost
	events   chan<- Event
	snapshot func() StatusSnapshot
	logger   *slog.Logger
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, h *ipcHandler) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	h.logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				h.logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				h.logger.Debug("IPC listener closed")
				return nil
			}
			h.logger.Error("IPC accept error", "error", err)
			continue
		}

		go h.handleConnection(conn)
	}
}

func (h *ipcHandler) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		h.logger.Debug("IPC received", "line", line)

		resp := h.handleRequest([]byte(line))
		if err := encoder.Encode(resp); err != nil {
			h.logger.Error("IPC failed to send response", "error", err)
			return
		}
	}
}

func (h *ipcHandler) handleRequest(line []byte) ipcResponse {
	var req ipcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return ipcResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	switch req.Type {
	case "set_volume":
		var p ipcSetVolume
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return ipcResponse{Status: "error", Error: fmt.Sprintf("parse set_volume: %v", err)}
		}
		if p.Volume < 0 || p.Volume > 1 {
			return ipcResponse{Status: "error", Error: "volume must be in [0, 1]"}
		}
		h.host.SetVolume(p.Volume)
		return ipcResponse{Status: "ok"}

	case "sound_started":
		var p ipcSound
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return ipcResponse{Status: "error", Error: fmt.Sprintf("parse sound_started: %v", err)}
		}
		if p.ID == "" {
			return ipcResponse{Status: "error", Error: "sound id must not be empty"}
		}
		level := p.Level
		if level <= 0 {
			level = 1.0
		}
		h.host.StartSound(p.ID, level)
		select {
		case h.events <- SoundStarted{ID: p.ID}:
		default:
			return ipcResponse{Status: "error", Error: "event queue full"}
		}
		return ipcResponse{Status: "ok"}

	case "sound_stopped":
		var p ipcSound
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return ipcResponse{Status: "error", Error: fmt.Sprintf("parse sound_stopped: %v", err)}
		}
		h.host.StopSound(p.ID)
		return ipcResponse{Status: "ok"}

	case "status":
		snap := h.snapshot()
		return ipcResponse{Status: "ok", Snapshot: &snap}

	default:
		return ipcResponse{Status: "error", Error: fmt.Sprintf("unknown request type: %q", req.Type)}
	}
}

// SendIPC sends one request to a running daemon and returns its response.
// Used by duckctl and by tests.
func SendIPC(socketPath string, req ipcRequest) (ipcResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(data))); err != nil {
		return ipcResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return ipcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
