package core

import (
	"errors"
)

var (
	ErrBackendUnavailable = errors.New("graphics backend not available")
	ErrDeviceCreation     = errors.New("graphics device creation failed")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrSurfaceNotReady    = errors.New("surface not laid out yet")
	ErrInvalidExtent      = errors.New("surface extent must be non-zero")
	ErrSwapchainInactive  = errors.New("swapchain is not active")
	ErrFrameInFlight      = errors.New("a frame acquired from the swapchain has not been presented")
	ErrNoFrameAcquired    = errors.New("no frame acquired")
	ErrRecording          = errors.New("command recording state mismatch")
	ErrInvalidState       = errors.New("invalid resource state for operation")
	ErrResourceReleased   = errors.New("resource already released")
	ErrProgramUnavailable = errors.New("shader program not available")
	ErrShaderBuild        = errors.New("shader build failed")
	ErrUnknown            = errors.New("unknown")
)
