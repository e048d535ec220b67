package shadowmap

import "github.com/gogpu/shadowmap/internal/gpuerr"

// Error categories. Every error returned by this module wraps exactly one
// of them; test with errors.Is. All three are fatal for the frame being
// recorded, and no partial frame is ever submitted.
var (
	// ErrConfiguration reports a missing resource, an unknown program, a
	// zero extent or a layout the image was not created for.
	ErrConfiguration = gpuerr.ErrConfiguration

	// ErrDevice reports a failure returned by the GPU device.
	ErrDevice = gpuerr.ErrDevice

	// ErrOrdering reports a call made out of sequence.
	ErrOrdering = gpuerr.ErrOrdering
)
