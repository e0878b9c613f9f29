package callclient

import (
	"errors"
	"fmt"
)

// Guard errors returned by actions that were not attempted
var (
	ErrActionInProgress = errors.New("another call action is in progress")
	ErrCallInFlight     = errors.New("a call is already in progress")
	ErrNoCall           = errors.New("no call to act on")
	ErrClosed           = errors.New("call orchestrator is closed")
)

// DeviceClass names the capture devices a media request involved
type DeviceClass string

const (
	DeviceCamera     DeviceClass = "camera"
	DeviceMicrophone DeviceClass = "microphone"
	DeviceBoth       DeviceClass = "camera and microphone"
)

// deviceClassOf names the devices behind a set of constraints
func deviceClassOf(c Constraints) DeviceClass {
	switch {
	case c.Audio && c.Video:
		return DeviceBoth
	case c.Video:
		return DeviceCamera
	default:
		return DeviceMicrophone
	}
}

// MediaAccessError reports that local capture devices were denied or failed
type MediaAccessError struct {
	Device DeviceClass
	Err    error
}

// NewMediaAccessError creates a MediaAccessError for a device class
func NewMediaAccessError(device DeviceClass, err error) *MediaAccessError {
	return &MediaAccessError{Device: device, Err: err}
}

func (e *MediaAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Failed to access %s: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("Failed to access %s", e.Device)
}

func (e *MediaAccessError) Unwrap() error {
	return e.Err
}

// mediaError keeps a provider's own MediaAccessError (it knows which device
// failed) and otherwise blames every requested device
func mediaError(c Constraints, err error) *MediaAccessError {
	var mae *MediaAccessError
	if errors.As(err, &mae) {
		return mae
	}
	return NewMediaAccessError(deviceClassOf(c), err)
}

// TransportError reports a failed call service request. Code carries the
// server's error code when one was returned.
type TransportError struct {
	Op         string
	Code       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("call service %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("call service %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// transportError wraps err unless it already is a TransportError
func transportError(op string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Op: op, Err: err}
}
