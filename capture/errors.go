package capture

import "errors"

// Capture-side failures are fatal to the current session and surfaced
// to the caller; the engine never retries on its own.
var (
	ErrPermissionDenied       = errors.New("capture: microphone access denied")
	ErrDeviceNotFound         = errors.New("capture: audio input device not found")
	ErrUnsupportedEnvironment = errors.New("capture: no usable capture backend")
	ErrAlreadyInitialized     = errors.New("capture: engine already initialized")
	ErrNotInitialized         = errors.New("capture: engine not initialized")
	ErrAlreadyRecording       = errors.New("capture: recording already in progress")
	ErrNotRecording           = errors.New("capture: no recording in progress")
	ErrNoEncoder              = errors.New("capture: no encoder supports the requested profile")
)
