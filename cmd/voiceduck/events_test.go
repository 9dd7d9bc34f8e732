package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWireMessage_Duck(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":"DUCK","speakerCount":2}`))
	require.NoError(t, err)

	started, ok := ev.(SpeakingStarted)
	require.True(t, ok, "expected SpeakingStarted, got %T", ev)
	assert.Equal(t, 2, started.SpeakerCount)
}

func TestDecodeWireMessage_DuckWithoutSpeakerCount(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":"DUCK"}`))
	require.NoError(t, err)

	started, ok := ev.(SpeakingStarted)
	require.True(t, ok)
	assert.Equal(t, 0, started.SpeakerCount)
}

func TestDecodeWireMessage_Unduck(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":"UNDUCK"}`))
	require.NoError(t, err)
	assert.IsType(t, SpeakingStopped{}, ev)
}

func TestDecodeWireMessage_Ping(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":"PING"}`))
	require.NoError(t, err)
	assert.IsType(t, Ping{}, ev)
}

func TestDecodeWireMessage_UnknownType(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":"SPEAKER_LIST","speakerCount":3}`))
	require.Error(t, err)
	assert.Nil(t, ev)

	var unknown errUnknownMessageType
	require.True(t, errors.As(err, &unknown), "expected errUnknownMessageType, got %v", err)
	assert.Equal(t, "SPEAKER_LIST", unknown.Type)
}

func TestDecodeWireMessage_Malformed(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":`))
	require.Error(t, err)
	assert.Nil(t, ev)

	var unknown errUnknownMessageType
	assert.False(t, errors.As(err, &unknown), "malformed JSON is not an unknown-type error")
}

func TestDecodeWireMessage_ExtraFieldsTolerated(t *testing.T) {
	ev, err := decodeWireMessage([]byte(`{"type":"UNDUCK","future":"field"}`))
	require.NoError(t, err)
	assert.IsType(t, SpeakingStopped{}, ev)
}
