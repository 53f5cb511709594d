package voicecore

import "errors"

// Sentinel errors for voicecore operations.
// These errors enable reliable error classification using errors.Is().

// Session lifecycle errors.
var (
	// ErrSessionNotInitialized indicates Init has not completed successfully.
	ErrSessionNotInitialized = errors.New("session not initialized")

	// ErrSessionRunning indicates the session control loop is already running.
	ErrSessionRunning = errors.New("session already running")

	// ErrUnknownProcessor indicates the configured noise-suppression model
	// identifier has no registered processor factory.
	ErrUnknownProcessor = errors.New("unknown noise processor model")
)

// Bitrate controller errors.
var (
	// ErrControllerNotInitialized indicates Observe was called before the
	// controller was given a starting bitrate.
	ErrControllerNotInitialized = errors.New("bitrate controller not initialized")

	// ErrInvalidBitRate indicates an invalid starting bitrate or ceiling.
	ErrInvalidBitRate = errors.New("invalid bit rate")
)
