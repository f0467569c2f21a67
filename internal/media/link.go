package media

import "sync/atomic"

// LinkState is the subset of peer-connection states the call layer reacts to.
type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Dead reports whether the underlying transport is beyond use.
func (s LinkState) Dead() bool {
	return s == LinkDisconnected || s == LinkFailed || s == LinkClosed
}

// PeerLink is the per-call peer-connection abstraction: ICE negotiation,
// SDP offer/answer and track management. Exactly one link per call, closed
// at termination and never shared across calls. pionLink is the production
// implementation.
type PeerLink interface {
	// OnICECandidate registers the handler for locally gathered candidates,
	// delivered as serialized candidate payloads.
	OnICECandidate(fn func(candidate string))
	// OnTrack fires when the remote side adds an inbound media track.
	OnTrack(fn func(t *RemoteTrack))
	// OnStateChange reports connection-state transitions.
	OnStateChange(fn func(s LinkState))

	// AddTrack attaches a local track for sending.
	AddTrack(t *Track) error
	// ReplaceVideoTrack swaps the outbound video source in place, with no
	// renegotiation round-trip; the swap is transparent to the remote peer.
	ReplaceVideoTrack(t *Track) error

	// Offer creates an SDP offer and applies it as the local description.
	Offer() (sdp string, err error)
	// Answer creates an SDP answer and applies it as the local description.
	Answer() (sdp string, err error)
	// SetRemoteOffer applies a remote offer SDP.
	SetRemoteOffer(sdp string) error
	// SetRemoteAnswer applies a remote answer SDP.
	SetRemoteAnswer(sdp string) error
	// AddICECandidate feeds one remote candidate. Late or duplicate
	// candidates may be rejected; such errors are non-fatal to the call.
	AddICECandidate(candidate string) error

	Close() error
}

// RemoteTrack is an inbound media track as exposed to the UI layer. The
// owning call drains and releases it; holders only read metadata.
type RemoteTrack struct {
	id      string
	kind    Kind
	packets atomic.Uint64
}

// NewRemoteTrack is used by PeerLink implementations when the remote side
// adds a track.
func NewRemoteTrack(id string, kind Kind) *RemoteTrack {
	return &RemoteTrack{id: id, kind: kind}
}

func (t *RemoteTrack) ID() string { return t.id }
func (t *RemoteTrack) Kind() Kind { return t.kind }

// Packets returns how many RTP packets the pump has drained so far.
func (t *RemoteTrack) Packets() uint64 { return t.packets.Load() }

func (t *RemoteTrack) countPacket() { t.packets.Add(1) }
