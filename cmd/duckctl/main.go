// duckctl is a small control CLI for a running voiceduck daemon. It speaks
// the daemon's line-delimited JSON IPC protocol over the unix socket.
//
// Usage:
//
//	duckctl [-socket PATH] status
//	duckctl [-socket PATH] set-volume 0.5
//	duckctl [-socket PATH] sound-start <id> [level]
//	duckctl [-socket PATH] sound-stop <id>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

type ipcRequest struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func main() {
	socket := flag.String("socket", "/tmp/voiceduck.sock", "Daemon IPC socket path")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var req ipcRequest
	switch args[0] {
	case "status":
		req = ipcRequest{Type: "status"}

	case "set-volume":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fatal("invalid volume %q: %v", args[1], err)
		}
		req = ipcRequest{Type: "set_volume", Data: map[string]any{"volume": v}}

	case "sound-start":
		if len(args) < 2 || len(args) > 3 {
			usage()
			os.Exit(2)
		}
		data := map[string]any{"id": args[1]}
		if len(args) == 3 {
			level, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				fatal("invalid level %q: %v", args[2], err)
			}
			data["level"] = level
		}
		req = ipcRequest{Type: "sound_started", Data: data}

	case "sound-stop":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		req = ipcRequest{Type: "sound_stopped", Data: map[string]any{"id": args[1]}}

	default:
		usage()
		os.Exit(2)
	}

	resp, err := send(*socket, req)
	if err != nil {
		fatal("%v", err)
	}

	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
}

func send(socketPath string, req ipcRequest) (map[string]any, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp map[string]any
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if status, _ := resp["status"].(string); status != "ok" {
		errMsg, _ := resp["error"].(string)
		return resp, fmt.Errorf("daemon error: %s", errMsg)
	}
	return resp, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: duckctl [-socket PATH] status|set-volume <v>|sound-start <id> [level]|sound-stop <id>")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
