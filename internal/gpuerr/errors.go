// Package gpuerr defines the error categories shared by the frame recording
// packages.
//
// Every error produced while setting up resources or recording a frame wraps
// exactly one of the category sentinels below, so callers can classify a
// failure with errors.Is without knowing which package produced it. All three
// categories are fatal for the frame being recorded.
package gpuerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a setup mistake: a layout that the image's
	// declared usage cannot support, an unknown program identity, or a
	// binding that does not match the program's slot schema.
	ErrConfiguration = errors.New("shadowmap: configuration error")

	// ErrDevice reports a failed call into the graphics device.
	ErrDevice = errors.New("shadowmap: device error")

	// ErrOrdering reports a broken recording contract, such as binding an
	// image before it was transitioned or beginning a pass before its
	// barriers were flushed.
	ErrOrdering = errors.New("shadowmap: ordering violation")
)

// Device wraps a failed device call as an ErrDevice.
func Device(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}

// Configf formats an ErrConfiguration.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
