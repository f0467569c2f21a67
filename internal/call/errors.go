package call

import (
	"errors"

	"github.com/quickchat/quickcall/internal/media"
)

// Error taxonomy. Operations wrap these with context via fmt.Errorf("%w"),
// so callers branch with errors.Is.
var (
	// ErrUnsupported: a required platform primitive is missing (no capture
	// drivers, no screen capture). Fatal to the specific operation only.
	// Shared with the media package so errors.Is works across the boundary.
	ErrUnsupported = media.ErrUnsupported

	// ErrNotConnected: the signaling transport is not open.
	ErrNotConnected = errors.New("call: signaling transport not connected")

	// ErrCallNotFound: the referenced call id is absent from the expected
	// collection.
	ErrCallNotFound = errors.New("call: call not found")

	// ErrMediaAcquisition: camera/microphone/screen acquisition failed.
	ErrMediaAcquisition = errors.New("call: media acquisition failed")

	// ErrSignaling: a transport send failed.
	ErrSignaling = errors.New("call: signaling send failed")

	// ErrNegotiation: the peer-connection layer rejected an SDP apply.
	ErrNegotiation = errors.New("call: negotiation failed")
)
