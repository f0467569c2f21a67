// Package call implements the signaling-driven call lifecycle: it turns
// inbound signaling messages and local user actions into consistent call
// state transitions, media operations and outbound signaling.
//
// Coupling to the transport and to the capture/peer-connection layers is via
// the Signaler and MediaSource interfaces only, so the package can be
// exercised end to end with in-memory fakes.
package call

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quickchat/quickcall/internal/media"
	"github.com/quickchat/quickcall/internal/proto"
)

// Direction of a call relative to the local user.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// State of a call. Terminated calls are removed from the registry rather
// than retained, so no Ended state constant exists; "ended" means absent.
type State int

const (
	// StateCalling: offer sent, awaiting answer (outgoing).
	StateCalling State = iota
	// StateIncoming: offer received, not yet answered.
	StateIncoming
	// StateConnecting: answered locally, ICE still completing.
	StateConnecting
	// StateConnected: handshake complete.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateCalling:
		return "calling"
	case StateIncoming:
		return "incoming"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Call is one logical call between the local user and a peer. All mutation
// happens under the manager's lock.
type Call struct {
	ID        string
	Direction Direction
	PeerID    string
	State     State
	StartedAt time.Time

	// Local capture stream. Owned by the call; stopped on termination.
	Local *media.Stream

	// Screen capture stream while sharing; nil otherwise.
	Screen *media.Stream

	link media.PeerLink

	// pendingOffer holds the remote SDP of an incoming call until it is
	// answered (deferred remote-description apply).
	pendingOffer string

	// reachedConnected gates duration reporting in the ended event.
	reachedConnected bool
}

// newCallID generates "call_<userId>_<millis>_<random>". Globally unique per
// initiating user for the lifetime of a signaling session.
func newCallID(userID string) string {
	return fmt.Sprintf("call_%s_%d_%s", userID, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Signaler is the transport surface the manager needs. signal.Client is the
// production implementation; tests use an in-memory fake.
type Signaler interface {
	// Connect opens the transport. Safe to call once per session.
	Connect(ctx context.Context) error
	// Send delivers one message to the signaling server for routing.
	Send(m proto.Message) error
	// Subscribe returns a channel of inbound messages. The channel is
	// closed when the transport closes, which is how subscribers observe
	// disconnection. cancel unsubscribes.
	Subscribe() (ch chan proto.Message, cancel func())
	// Connected reports whether the transport is currently open.
	Connected() bool
	// Close shuts the transport down, closing all subscriber channels.
	Close() error
}

// MediaSource acquires local media and creates peer links. media.Engine is
// the production implementation.
type MediaSource interface {
	// Supported reports whether capture primitives exist on this platform.
	Supported() bool
	// ScreenSupported reports whether screen capture exists.
	ScreenSupported() bool
	// EnumerateDevices returns a fresh device inventory snapshot.
	EnumerateDevices() (media.Inventory, error)
	// GetUserMedia acquires camera/microphone per the constraints.
	GetUserMedia(c media.Constraints) (*media.Stream, error)
	// GetDisplayMedia acquires a screen-capture stream (video only).
	GetDisplayMedia() (*media.Stream, error)
	// NewPeerLink creates the per-call peer-connection resource.
	NewPeerLink() (media.PeerLink, error)
}
