package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/quickchat/quickcall/internal/media"
	"github.com/quickchat/quickcall/internal/proto"
)

var log = logging.Logger("call")

// Options tune a Manager.
type Options struct {
	// DefaultConstraints are used by StartCall/AnswerCall when the caller
	// passes none.
	DefaultConstraints media.Constraints
}

// Manager owns all call state. It mediates between the media source, one
// peer link per call and the signaling transport: inbound signaling messages
// and local actions become state transitions, outbound messages and media
// operations. All registry access happens under mu; media and SDP work runs
// outside the lock so slow hardware never blocks message handling.
type Manager struct {
	sig    Signaler
	source MediaSource
	opts   Options

	mu          sync.Mutex
	userID      string
	initialized bool
	connected   bool
	reg         *registry
	devices     media.Inventory
	cancelSub   func()

	events *emitter
}

// New creates a Manager bound to its transport and media source. Call
// Initialize and Connect before placing calls.
func New(sig Signaler, source MediaSource, opts Options) *Manager {
	if !opts.DefaultConstraints.Audio && !opts.DefaultConstraints.Video {
		opts.DefaultConstraints = media.Constraints{Audio: true, Video: true}
	}
	return &Manager{
		sig:    sig,
		source: source,
		opts:   opts,
		reg:    newRegistry(),
		events: newEmitter(),
	}
}

// Subscribe returns a channel of lifecycle events. cancel unsubscribes.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// Initialize checks platform support, stores the local user id and takes a
// best-effort device inventory snapshot. Enumeration failure is reported as
// an error event but does not fail initialization.
func (m *Manager) Initialize(userID string) error {
	if !m.source.Supported() {
		return m.fail(fmt.Errorf("%w: no media capture on this platform", ErrUnsupported))
	}

	m.mu.Lock()
	m.userID = userID
	m.initialized = true
	m.mu.Unlock()

	if inv, err := m.source.EnumerateDevices(); err != nil {
		m.events.emit(Event{Type: EventError, Err: fmt.Errorf("enumerate devices: %w", err)})
	} else {
		m.mu.Lock()
		m.devices = inv
		m.mu.Unlock()
	}

	log.Infof("initialized as %s", userID)
	m.events.emit(Event{Type: EventInitialized})
	return nil
}

// Devices returns the last device inventory snapshot.
func (m *Manager) Devices() media.Inventory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices
}

// RefreshDevices replaces the inventory snapshot wholesale.
func (m *Manager) RefreshDevices() (media.Inventory, error) {
	inv, err := m.source.EnumerateDevices()
	if err != nil {
		return media.Inventory{}, err
	}
	m.mu.Lock()
	m.devices = inv
	m.mu.Unlock()
	return inv, nil
}

// Connect opens the signaling transport, authenticates and starts the
// dispatch loop. On later transport close, from either side, the manager
// marks itself disconnected and emits a disconnected event; it does NOT end
// in-flight calls on a transient disconnect, that decision stays with the
// caller.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	inited := m.initialized
	m.mu.Unlock()
	if !inited {
		return m.fail(fmt.Errorf("call: Connect before Initialize"))
	}

	if err := m.sig.Connect(ctx); err != nil {
		return m.fail(fmt.Errorf("%w: connect: %v", ErrSignaling, err))
	}
	if err := m.sig.Send(proto.NewAuth(m.userID)); err != nil {
		return m.fail(fmt.Errorf("%w: auth: %v", ErrSignaling, err))
	}

	ch, cancel := m.sig.Subscribe()
	m.mu.Lock()
	m.connected = true
	m.cancelSub = cancel
	m.mu.Unlock()

	go m.dispatchLoop(ch)

	log.Infof("connected to signaling as %s", m.userID)
	m.events.emit(Event{Type: EventConnected})
	return nil
}

// Disconnect ends every call across all collections, then closes the
// transport.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	calls := m.reg.all()
	m.mu.Unlock()

	for _, c := range calls {
		m.endCall(c.ID, false)
	}
	_ = m.sig.Close()
}

// Close shuts the manager down completely.
func (m *Manager) Close() {
	m.Disconnect()

	m.mu.Lock()
	cancel := m.cancelSub
	m.cancelSub = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.events.close()
}

// Calls returns a snapshot of all registered calls.
func (m *Manager) Calls() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0)
	for _, c := range m.reg.all() {
		out = append(out, Summary{
			ID:        c.ID,
			PeerID:    c.PeerID,
			Direction: c.Direction,
			State:     c.State,
			StartedAt: c.StartedAt,
		})
	}
	return out
}

// Summary is a read-only view of one call.
type Summary struct {
	ID        string
	PeerID    string
	Direction Direction
	State     State
	StartedAt time.Time
}

// fail emits err as an error event and returns it; local actions report
// both to the caller and to passive observers.
func (m *Manager) fail(err error) error {
	m.events.emit(Event{Type: EventError, Err: err})
	return err
}

// wrapAcquire classifies a media acquisition failure.
func wrapAcquire(err error) error {
	if errors.Is(err, ErrUnsupported) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
}

// StartCall places an outgoing call. constraints may be nil to use the
// defaults. Returns the generated call id. If anything fails before the
// call is registered, no partial state is left behind: the stream is
// stopped, the link closed and the id absent from every collection.
func (m *Manager) StartCall(ctx context.Context, targetUserID string, constraints *media.Constraints) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !m.sig.Connected() {
		return "", m.fail(fmt.Errorf("%w: start call to %s", ErrNotConnected, targetUserID))
	}

	m.mu.Lock()
	userID := m.userID
	m.mu.Unlock()

	callID := newCallID(userID)
	cons := m.opts.DefaultConstraints
	if constraints != nil {
		cons = *constraints
	}

	stream, err := m.source.GetUserMedia(cons)
	if err != nil {
		return "", m.fail(wrapAcquire(err))
	}

	link, err := m.source.NewPeerLink()
	if err != nil {
		stream.Stop()
		return "", m.fail(fmt.Errorf("%w: create peer link: %v", ErrNegotiation, err))
	}

	rollback := func() {
		_ = link.Close()
		stream.Stop()
	}

	m.wireLink(link, callID, targetUserID)

	for _, t := range stream.Tracks() {
		if err := link.AddTrack(t); err != nil {
			rollback()
			return "", m.fail(fmt.Errorf("%w: attach %s track: %v", ErrNegotiation, t.Kind(), err))
		}
	}

	sdp, err := link.Offer()
	if err != nil {
		rollback()
		return "", m.fail(fmt.Errorf("%w: %v", ErrNegotiation, err))
	}

	if err := m.sig.Send(proto.NewOffer(callID, targetUserID, userID, sdp)); err != nil {
		rollback()
		return "", m.fail(fmt.Errorf("%w: send offer: %v", ErrSignaling, err))
	}

	c := &Call{
		ID:        callID,
		Direction: Outgoing,
		PeerID:    targetUserID,
		State:     StateCalling,
		StartedAt: time.Now(),
		Local:     stream,
		link:      link,
	}
	m.mu.Lock()
	m.reg.put(bucketOutgoing, c)
	m.mu.Unlock()

	log.Infof("call %s → %s: offer sent", callID, targetUserID)
	m.events.emit(Event{Type: EventCallStarted, CallID: callID, PeerID: targetUserID, Stream: stream})
	return callID, nil
}

// AnswerCall accepts an incoming call. If media acquisition fails the call
// is rejected (call-rejected sent, link released, entry removed) and the
// error re-raised; answering never leaves a half-open call.
func (m *Manager) AnswerCall(ctx context.Context, callID string, constraints *media.Constraints) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	c, ok := m.reg.get(bucketIncoming, callID)
	userID := m.userID
	m.mu.Unlock()
	if !ok {
		return m.fail(fmt.Errorf("%w: answer %s", ErrCallNotFound, callID))
	}

	cons := m.opts.DefaultConstraints
	if constraints != nil {
		cons = *constraints
	}

	abort := func(stream *media.Stream, cause error) error {
		m.mu.Lock()
		_, registered := m.reg.take(callID)
		m.mu.Unlock()
		if registered {
			if err := m.sig.Send(proto.NewCallRejected(callID, c.PeerID, userID)); err != nil {
				log.Debugf("call %s: send reject: %v", callID, err)
			}
			_ = c.link.Close()
			m.events.emit(Event{Type: EventCallRejected, CallID: callID, PeerID: c.PeerID})
		}
		if stream != nil {
			stream.Stop()
		}
		return m.fail(cause)
	}

	stream, err := m.source.GetUserMedia(cons)
	if err != nil {
		return abort(nil, wrapAcquire(err))
	}

	if err := c.link.SetRemoteOffer(c.pendingOffer); err != nil {
		return abort(stream, fmt.Errorf("%w: apply offer: %v", ErrNegotiation, err))
	}

	for _, t := range stream.Tracks() {
		if err := c.link.AddTrack(t); err != nil {
			return abort(stream, fmt.Errorf("%w: attach %s track: %v", ErrNegotiation, t.Kind(), err))
		}
	}

	sdp, err := c.link.Answer()
	if err != nil {
		return abort(stream, fmt.Errorf("%w: %v", ErrNegotiation, err))
	}

	if err := m.sig.Send(proto.NewAnswer(callID, c.PeerID, userID, sdp)); err != nil {
		return abort(stream, fmt.Errorf("%w: send answer: %v", ErrSignaling, err))
	}

	m.mu.Lock()
	moved := m.reg.move(callID, bucketIncoming, bucketActive)
	if moved {
		c.Local = stream
		c.State = StateConnecting
	}
	m.mu.Unlock()
	if !moved {
		// Call was torn down while we were acquiring media.
		stream.Stop()
		return m.fail(fmt.Errorf("%w: %s ended during answer", ErrCallNotFound, callID))
	}

	log.Infof("call %s: answered %s", callID, c.PeerID)
	m.events.emit(Event{Type: EventCallAnswered, CallID: callID, PeerID: c.PeerID, Stream: stream})
	return nil
}

// RejectCall declines an incoming call. Rejecting an unknown or already
// resolved call is a silent no-op, not an error.
func (m *Manager) RejectCall(callID string) {
	m.mu.Lock()
	c, ok := m.reg.get(bucketIncoming, callID)
	if ok {
		m.reg.take(callID)
	}
	userID := m.userID
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.sig.Send(proto.NewCallRejected(callID, c.PeerID, userID)); err != nil {
		log.Debugf("call %s: send reject: %v", callID, err)
	}
	if c.link != nil {
		_ = c.link.Close()
	}

	log.Infof("call %s: rejected %s", callID, c.PeerID)
	m.events.emit(Event{Type: EventCallRejected, CallID: callID, PeerID: c.PeerID})
}

// EndCall terminates a call from the local side. Unknown ids no-op, so
// ending twice (or racing a remote call-end) is safe.
func (m *Manager) EndCall(callID string) {
	m.endCall(callID, false)
}

// endCall is the single termination path for local end, remote end and
// connection failure. byRemote suppresses the outbound call-end so remote
// terminations are not echoed back.
func (m *Manager) endCall(callID string, byRemote bool) {
	m.mu.Lock()
	c, ok := m.reg.take(callID)
	var screen *media.Stream
	if ok {
		screen = c.Screen
		c.Screen = nil
	}
	userID := m.userID
	m.mu.Unlock()
	if !ok {
		return
	}

	if !byRemote {
		if err := m.sig.Send(proto.NewCallEnd(callID, c.PeerID, userID)); err != nil {
			log.Debugf("call %s: send end: %v", callID, err)
		}
	}

	if c.link != nil {
		_ = c.link.Close()
	}
	if c.Local != nil {
		c.Local.Stop()
	}
	if screen != nil {
		screen.Stop()
	}

	var duration time.Duration
	if c.reachedConnected {
		duration = time.Since(c.StartedAt)
	}

	log.Infof("call %s: ended (remote=%v, duration=%s)", callID, byRemote, duration)
	m.events.emit(Event{
		Type:          EventCallEnded,
		CallID:        callID,
		PeerID:        c.PeerID,
		Duration:      duration,
		EndedByRemote: byRemote,
	})
}

// ToggleMute flips the enabled flag on every local audio track of the call.
// Returns the new enabled state and whether anything was toggled; a call
// without audio tracks (or an unknown id) is a no-op, never a panic.
func (m *Manager) ToggleMute(callID string) (enabled bool, ok bool) {
	return m.toggleKind(callID, media.Audio, EventMuteChanged)
}

// ToggleVideo is ToggleMute for video tracks.
func (m *Manager) ToggleVideo(callID string) (enabled bool, ok bool) {
	return m.toggleKind(callID, media.Video, EventVideoChanged)
}

func (m *Manager) toggleKind(callID string, kind media.Kind, ev EventType) (bool, bool) {
	m.mu.Lock()
	c, b := m.reg.find(callID)
	m.mu.Unlock()
	if b == bucketNone || c.Local == nil {
		return false, false
	}

	tracks := c.Local.TracksOf(kind)
	if len(tracks) == 0 {
		return false, false
	}

	newState := !tracks[0].Enabled()
	for _, t := range tracks {
		if err := t.SetEnabled(newState); err != nil {
			log.Warnf("call %s: toggle %s: %v", callID, kind, err)
		}
	}

	m.events.emit(Event{Type: ev, CallID: callID, PeerID: c.PeerID, Enabled: newState})
	return newState, true
}

// ShareScreen swaps the outbound video source for a screen capture, with no
// renegotiation. When the capture ends on its own (user stops sharing via
// the OS UI) the camera is re-acquired and swapped back automatically.
func (m *Manager) ShareScreen(callID string) error {
	if !m.source.ScreenSupported() {
		return m.fail(fmt.Errorf("%w: no screen capture", ErrUnsupported))
	}

	m.mu.Lock()
	c, b := m.reg.find(callID)
	m.mu.Unlock()
	if b == bucketNone {
		return m.fail(fmt.Errorf("%w: share screen on %s", ErrCallNotFound, callID))
	}

	screen, err := m.source.GetDisplayMedia()
	if err != nil {
		return m.fail(wrapAcquire(err))
	}
	vts := screen.TracksOf(media.Video)
	if len(vts) == 0 {
		screen.Stop()
		return m.fail(fmt.Errorf("%w: screen capture produced no video track", ErrMediaAcquisition))
	}

	if err := c.link.ReplaceVideoTrack(vts[0]); err != nil {
		screen.Stop()
		return m.fail(fmt.Errorf("%w: %v", ErrNegotiation, err))
	}

	m.mu.Lock()
	c.Screen = screen
	if c.Local != nil {
		// The video sender now carries the screen track; camera toggles
		// must not reach it until the share ends.
		for _, t := range c.Local.TracksOf(media.Video) {
			t.Bind(nil)
		}
	}
	m.mu.Unlock()

	vts[0].OnEnded(func() { go m.revertScreenShare(callID) })

	log.Infof("call %s: screen sharing started", callID)
	m.events.emit(Event{Type: EventScreenShareStarted, CallID: callID, PeerID: c.PeerID})
	return nil
}

// revertScreenShare swaps the outbound video back to a camera source after
// a screen capture ended. Failure to re-acquire the camera is reported but
// does not terminate the call.
func (m *Manager) revertScreenShare(callID string) {
	m.mu.Lock()
	c, b := m.reg.find(callID)
	var screen *media.Stream
	if b != bucketNone {
		screen = c.Screen
		c.Screen = nil
	}
	m.mu.Unlock()
	if b == bucketNone || screen == nil {
		return // call gone, or the share was stopped deliberately
	}
	screen.Stop()

	cam, err := m.cameraVideoTrack(c)
	if err != nil {
		m.events.emit(Event{Type: EventScreenShareEnded, CallID: callID, PeerID: c.PeerID, RevertedToCamera: false, Err: err})
		return
	}
	if err := c.link.ReplaceVideoTrack(cam); err != nil {
		m.events.emit(Event{
			Type: EventScreenShareEnded, CallID: callID, PeerID: c.PeerID,
			RevertedToCamera: false, Err: fmt.Errorf("%w: %v", ErrNegotiation, err),
		})
		return
	}

	log.Infof("call %s: screen sharing ended, reverted to camera", callID)
	m.events.emit(Event{Type: EventScreenShareEnded, CallID: callID, PeerID: c.PeerID, RevertedToCamera: true})
}

// cameraVideoTrack returns a live camera video track for c, reusing the
// original capture when it is still running and re-acquiring otherwise.
func (m *Manager) cameraVideoTrack(c *Call) (*media.Track, error) {
	if c.Local != nil {
		for _, t := range c.Local.TracksOf(media.Video) {
			if !t.Stopped() {
				return t, nil
			}
		}
	}

	stream, err := m.source.GetUserMedia(media.Constraints{Video: true})
	if err != nil {
		return nil, wrapAcquire(err)
	}
	vts := stream.TracksOf(media.Video)
	if len(vts) == 0 {
		stream.Stop()
		return nil, fmt.Errorf("%w: camera produced no video track", ErrMediaAcquisition)
	}

	m.mu.Lock()
	if c.Local == nil {
		c.Local = stream
	} else {
		for _, t := range stream.Tracks() {
			c.Local.Add(t)
		}
	}
	m.mu.Unlock()
	return vts[0], nil
}

// wireLink installs the per-call handlers on a fresh peer link. Candidates
// are forwarded as they are gathered, possibly before the call is
// registered, which is fine: the closure carries the addressing.
func (m *Manager) wireLink(link media.PeerLink, callID, peerID string) {
	link.OnICECandidate(func(candidate string) {
		m.mu.Lock()
		userID := m.userID
		m.mu.Unlock()
		if err := m.sig.Send(proto.NewICECandidate(callID, peerID, userID, candidate)); err != nil {
			log.Debugf("call %s: send candidate: %v", callID, err)
		}
	})

	link.OnTrack(func(rt *media.RemoteTrack) {
		m.events.emit(Event{Type: EventRemoteStreamAdded, CallID: callID, PeerID: peerID, Remote: rt})
	})

	link.OnStateChange(func(s media.LinkState) {
		log.Debugf("call %s: link %s", callID, s)
		switch {
		case s == media.LinkConnected:
			m.markConnected(callID)
		case s.Dead():
			// A call is never left registered once its transport is dead.
			go m.endCall(callID, false)
		}
	})
}

// markConnected promotes an answered call once ICE completes, so duration
// accounting works for the callee side too.
func (m *Manager) markConnected(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, b := m.reg.find(callID)
	if b == bucketNone {
		return
	}
	c.reachedConnected = true
	if c.State == StateConnecting {
		c.State = StateConnected
	}
}

// dispatchLoop consumes inbound signaling until the transport closes.
// Messages for one call are handled in arrival order; nothing is buffered
// or reordered.
func (m *Manager) dispatchLoop(ch chan proto.Message) {
	for msg := range ch {
		m.dispatch(msg)
	}

	m.mu.Lock()
	was := m.connected
	m.connected = false
	m.mu.Unlock()
	if was {
		log.Infof("signaling transport closed")
		m.events.emit(Event{Type: EventDisconnected})
	}
}

func (m *Manager) dispatch(msg proto.Message) {
	switch v := msg.(type) {
	case *proto.Offer:
		m.handleOffer(v)
	case *proto.Answer:
		m.handleAnswer(v)
	case *proto.ICECandidate:
		m.handleICECandidate(v)
	case *proto.CallRejected:
		m.handleCallRejected(v)
	case *proto.CallEnd:
		m.endCall(v.CallID, true)
	case *proto.Error:
		m.events.emit(Event{Type: EventError, Err: fmt.Errorf("%w: server %s: %s", ErrSignaling, v.Code, v.Message)})
	case *proto.Auth:
		log.Debugf("unexpected inbound auth for %s", v.UserID)
	}
}

// handleOffer registers an incoming call. Media acquisition is deferred
// until the call is answered.
func (m *Manager) handleOffer(o *proto.Offer) {
	link, err := m.source.NewPeerLink()
	if err != nil {
		m.events.emit(Event{Type: EventError, CallID: o.CallID, Err: fmt.Errorf("%w: create peer link: %v", ErrNegotiation, err)})
		return
	}
	m.wireLink(link, o.CallID, o.FromUserID)

	c := &Call{
		ID:           o.CallID,
		Direction:    Incoming,
		PeerID:       o.FromUserID,
		State:        StateIncoming,
		StartedAt:    time.Now(),
		link:         link,
		pendingOffer: o.SDP,
	}

	m.mu.Lock()
	registered := m.reg.put(bucketIncoming, c)
	m.mu.Unlock()
	if !registered {
		// Duplicate or replayed offer for a known id.
		log.Debugf("offer for already-registered call %s dropped", o.CallID)
		_ = link.Close()
		return
	}

	log.Infof("call %s: incoming from %s", o.CallID, o.FromUserID)
	m.events.emit(Event{Type: EventCallReceived, CallID: o.CallID, PeerID: o.FromUserID})
}

// handleAnswer completes the handshake for an outgoing call. An answer for
// an id not in the outgoing collection (duplicate, replay, or a call ended
// meanwhile) is dropped silently.
func (m *Manager) handleAnswer(a *proto.Answer) {
	m.mu.Lock()
	c, ok := m.reg.get(bucketOutgoing, a.CallID)
	m.mu.Unlock()
	if !ok {
		log.Debugf("answer for unknown outgoing call %s dropped", a.CallID)
		return
	}

	if err := c.link.SetRemoteAnswer(a.SDP); err != nil {
		// A malformed answer must not leave a zombie outgoing entry.
		m.events.emit(Event{Type: EventError, CallID: a.CallID, Err: fmt.Errorf("%w: apply answer: %v", ErrNegotiation, err)})
		m.endCall(a.CallID, false)
		return
	}

	m.mu.Lock()
	moved := m.reg.move(a.CallID, bucketOutgoing, bucketActive)
	if moved {
		c.State = StateConnected
		c.reachedConnected = true
	}
	m.mu.Unlock()
	if !moved {
		return
	}

	log.Infof("call %s: connected to %s", a.CallID, c.PeerID)
	m.events.emit(Event{Type: EventCallConnected, CallID: a.CallID, PeerID: c.PeerID})
}

// handleICECandidate feeds a remote candidate to whichever collection holds
// the call; candidates may arrive before the call fully transitions.
// Candidate errors are non-fatal: real networks deliver late and duplicate
// candidates.
func (m *Manager) handleICECandidate(ic *proto.ICECandidate) {
	m.mu.Lock()
	c, b := m.reg.find(ic.CallID)
	m.mu.Unlock()
	if b == bucketNone {
		log.Debugf("candidate for unknown call %s dropped", ic.CallID)
		return
	}
	if err := c.link.AddICECandidate(ic.Candidate); err != nil {
		log.Warnf("call %s: add candidate: %v", ic.CallID, err)
	}
}

// handleCallRejected tears down an outgoing call the remote side declined.
// No call-end is echoed back.
func (m *Manager) handleCallRejected(cr *proto.CallRejected) {
	m.mu.Lock()
	c, ok := m.reg.get(bucketOutgoing, cr.CallID)
	if ok {
		m.reg.take(cr.CallID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if c.link != nil {
		_ = c.link.Close()
	}
	if c.Local != nil {
		c.Local.Stop()
	}

	log.Infof("call %s: rejected by %s", cr.CallID, c.PeerID)
	m.events.emit(Event{Type: EventCallRejected, CallID: cr.CallID, PeerID: c.PeerID})
}
