package call

import (
	"sync"
	"time"

	"github.com/quickchat/quickcall/internal/media"
)

// EventType identifies a lifecycle event delivered to subscribers.
type EventType string

const (
	EventInitialized        EventType = "initialized"
	EventConnected          EventType = "connected"
	EventDisconnected       EventType = "disconnected"
	EventError              EventType = "error"
	EventCallStarted        EventType = "callStarted"
	EventCallReceived       EventType = "callReceived"
	EventCallAnswered       EventType = "callAnswered"
	EventCallRejected       EventType = "callRejected"
	EventCallConnected      EventType = "callConnected"
	EventCallEnded          EventType = "callEnded"
	EventRemoteStreamAdded  EventType = "remoteStreamAdded"
	EventMuteChanged        EventType = "muteChanged"
	EventVideoChanged       EventType = "videoChanged"
	EventScreenShareStarted EventType = "screenSharingStarted"
	EventScreenShareEnded   EventType = "screenSharingEnded"
)

// Event is one lifecycle notification. Only the fields relevant to the
// event type are set.
type Event struct {
	Type   EventType
	CallID string
	PeerID string

	// Local stream for callStarted/callAnswered.
	Stream *media.Stream

	// Remote track for remoteStreamAdded. The UI holds a read-only
	// reference; the call owns and releases the underlying resources.
	Remote *media.RemoteTrack

	// Enabled carries the new state for muteChanged/videoChanged.
	Enabled bool

	// Termination details for callEnded.
	Duration      time.Duration
	EndedByRemote bool

	// RevertedToCamera is set on screenSharingEnded.
	RevertedToCamera bool

	Err error
}

// emitter fans events out to any number of subscribers. Slow subscribers
// drop events rather than block call handling.
type emitter struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	closed    bool
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[chan Event]struct{})}
}

// subscribe registers a listener channel. cancel unsubscribes and closes it.
func (e *emitter) subscribe() (ch chan Event, cancel func()) {
	ch = make(chan Event, 64)

	e.mu.Lock()
	if e.closed {
		close(ch)
		e.mu.Unlock()
		return ch, func() {}
	}
	e.listeners[ch] = struct{}{}
	e.mu.Unlock()

	cancel = func() {
		e.mu.Lock()
		if _, ok := e.listeners[ch]; ok {
			delete(e.listeners, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	for ch := range e.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
	e.mu.RUnlock()
}

func (e *emitter) close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		for ch := range e.listeners {
			close(ch)
		}
		e.listeners = make(map[chan Event]struct{})
	}
	e.mu.Unlock()
}
