package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Daemon events
// ============================================================================
// Events represent intent from the event source, the host, and the settings
// layer. The daemon loop is the single consumer; all ducker state mutations
// happen there.
// ============================================================================

// Event is the marker interface for everything the daemon loop consumes.
type Event interface {
	eventMarker()
}

// SpeakingStarted is the DUCK command: the bot detected speech.
type SpeakingStarted struct {
	SpeakerCount int
}

func (SpeakingStarted) eventMarker() {}

// SpeakingStopped is the UNDUCK command: speech ended.
type SpeakingStopped struct{}

func (SpeakingStopped) eventMarker() {}

// Ping asks for an immediate PONG reply over the connection.
type Ping struct{}

func (Ping) eventMarker() {}

// SoundStarted is the host's "new sound began playing" notification. If a
// duck is active the sound gets pulled down right away.
type SoundStarted struct {
	ID string
}

func (SoundStarted) eventMarker() {}

// SettingsChanged signals that the settings file was reloaded.
type SettingsChanged struct{}

func (SettingsChanged) eventMarker() {}

// Tick drives fade animation and pending-unduck expiry. Emitted by the daemon
// loop's own ticker, never from outside.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// ============================================================================
// Wire protocol
// ============================================================================
// One flat JSON object per websocket text frame, discriminated by "type":
//
//	{"type":"DUCK","speakerCount":2}
//	{"type":"UNDUCK"}
//	{"type":"PING"}
//
// and outbound {"type":"PONG"}. Unknown types must be tolerated: the bot may
// grow new message kinds before this daemon learns about them.
// ============================================================================

type wireMessage struct {
	Type         string `json:"type"`
	SpeakerCount int    `json:"speakerCount,omitempty"`
}

// errUnknownMessageType marks a well-formed frame with an unrecognized type.
// Callers drop these quietly instead of treating them as protocol damage.
type errUnknownMessageType struct {
	Type string
}

func (e errUnknownMessageType) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

// decodeWireMessage parses an inbound frame into a daemon event.
func decodeWireMessage(data []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	switch msg.Type {
	case msgTypeDuck:
		return SpeakingStarted{SpeakerCount: msg.SpeakerCount}, nil
	case msgTypeUnduck:
		return SpeakingStopped{}, nil
	case msgTypePing:
		return Ping{}, nil
	default:
		return nil, errUnknownMessageType{Type: msg.Type}
	}
}
