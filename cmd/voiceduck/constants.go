package main

import "time"

// Wire protocol message types (ducker <-> event source).
const (
	msgTypeDuck   = "DUCK"
	msgTypeUnduck = "UNDUCK"
	msgTypePing   = "PING"
	msgTypePong   = "PONG"
)

// authRejectedCloseCode is the reserved websocket close status the event
// source sends when the token is wrong. A close with this code is never
// retried; the user has to fix the configuration.
const authRejectedCloseCode = 4001

const (
	// reconnectDelay is the fixed wait before a single reconnect attempt
	// after an unexpected close.
	reconnectDelay = 5 * time.Second

	// volumeTolerance is the threshold below which a difference between the
	// live volume and the tracked baseline is treated as float drift rather
	// than a manual change.
	volumeTolerance = 0.01

	// soundLevelFloor keeps per-sound exponential fades away from true zero.
	// The curve never reaches 0 and a level of 0 cannot be scaled back up by
	// a ratio, so fades bottom out here instead.
	soundLevelFloor = 0.0001

	// newSoundFade is how fast a sound that starts mid-duck is pulled down
	// to the ducked proportional level, so it doesn't blast at full volume
	// until the next periodic update.
	newSoundFade = 200 * time.Millisecond
)

// Ducking settings defaults and clamp ranges.
const (
	defaultReductionPercent = 30
	defaultDuckDurationMS   = 500
	defaultUnduckDurationMS = 500
	defaultUnduckDelayMS    = 0
	defaultDuckingFPS       = 30

	minReductionPercent  = 5
	maxReductionPercent  = 100
	reductionPercentStep = 5

	minFadeDurationMS = 100
	maxFadeDurationMS = 5000

	maxUnduckDelayMS = 3000

	minDuckingFPS = 5
	maxDuckingFPS = 60
)
