// Package media wraps local capture (camera, microphone, screen), device
// enumeration and the Pion peer-connection plumbing behind small types the
// call layer can consume without touching hardware APIs directly.
package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Kind of a media track.
type Kind string

const (
	Audio Kind = "audio"
	Video Kind = "video"
)

// Constraints select what to capture. Zero MaxWidth/MaxHeight means the
// engine's configured caps apply.
type Constraints struct {
	Audio bool
	Video bool

	MaxWidth  int
	MaxHeight int
}

// DeviceInfo describes one enumerated capture or playback device.
type DeviceInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Inventory is a read-only snapshot of available devices, replaced wholesale
// on each enumeration.
type Inventory struct {
	AudioInputs  []DeviceInfo `json:"audio_inputs"`
	AudioOutputs []DeviceInfo `json:"audio_outputs"`
	VideoInputs  []DeviceInfo `json:"video_inputs"`
}

// Track is one local media track. It carries the browser-style enabled flag:
// disabling a bound track stops its RTP flow via the sender without tearing
// the track down, so re-enabling is instant.
type Track struct {
	id   string
	kind Kind

	// local is the sendable form attached to peer links. Nil in tests.
	local webrtc.TrackLocal

	// stop releases the capture source. May be nil.
	stop func()

	mu      sync.Mutex
	enabled bool
	stopped bool
	ended   bool
	bind    func(enabled bool) error
	onEnded []func()
}

// NewTrack builds a track around a sendable source. local and stop may be
// nil (tests, or tracks that only exist as state).
func NewTrack(id string, kind Kind, local webrtc.TrackLocal, stop func()) *Track {
	return &Track{id: id, kind: kind, local: local, stop: stop, enabled: true}
}

func (t *Track) ID() string   { return t.id }
func (t *Track) Kind() Kind   { return t.kind }
func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Local returns the sendable form for peer-link attachment.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// SetEnabled flips the enabled flag. When the track is bound to a peer link
// the sender swap happens through the bound hook; before binding it is a
// pure flag change.
func (t *Track) SetEnabled(v bool) error {
	t.mu.Lock()
	if t.enabled == v {
		t.mu.Unlock()
		return nil
	}
	t.enabled = v
	bind := t.bind
	t.mu.Unlock()

	if bind != nil {
		return bind(v)
	}
	return nil
}

// Bind installs the sender hook a peer link uses to honor SetEnabled.
func (t *Track) Bind(fn func(enabled bool) error) {
	t.mu.Lock()
	t.bind = fn
	t.mu.Unlock()
}

// OnEnded registers a handler fired when the capture source ends on its own
// (e.g. the user stops screen sharing via the OS UI).
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// End marks the source as ended and fires handlers once. Called by capture
// drivers; exported so transports and tests can simulate source loss.
func (t *Track) End() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Stop releases the capture source. Idempotent.
func (t *Track) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Stopped reports whether Stop has run.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stream is a set of local tracks acquired together.
type Stream struct {
	tracks []*Track
}

func NewStream(tracks ...*Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns all tracks in the stream.
func (s *Stream) Tracks() []*Track { return s.tracks }

// Add appends a track acquired after the stream was created, such as a
// re-acquired camera track after screen sharing ends.
func (s *Stream) Add(t *Track) {
	s.tracks = append(s.tracks, t)
}

// TracksOf returns the tracks of one kind.
func (s *Stream) TracksOf(kind Kind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop releases every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
