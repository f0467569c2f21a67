package media

import (
	"errors"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// ErrUnsupported is returned when a capture primitive does not exist on the
// running platform (no camera/microphone drivers, no screen capture).
var ErrUnsupported = errors.New("media: not supported on this platform")

// Options configure an Engine.
type Options struct {
	ICEServers []webrtc.ICEServer

	// Caps for captured video. Zero means 640x480; higher resolutions
	// increase encode latency.
	MaxWidth  int
	MaxHeight int
}

func (o *Options) fill() {
	if o.MaxWidth <= 0 {
		o.MaxWidth = 640
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 480
	}
	if len(o.ICEServers) == 0 {
		o.ICEServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}
}

// Engine owns the WebRTC API instance (codecs, interceptors, setting engine)
// and hands out per-call peer links. Capture support is platform-gated in
// engine_linux.go / engine_other.go.
type Engine struct {
	opts Options
	api  *webrtc.API

	// selector is non-nil only where local capture is supported.
	selector *mediadevices.CodecSelector

	iceMu sync.RWMutex
	ice   []webrtc.ICEServer
}

// New builds the engine for this platform.
func New(opts Options) (*Engine, error) {
	opts.fill()
	e := &Engine{opts: opts, ice: opts.ICEServers}
	if err := e.initAPI(); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateICEServers swaps the STUN/TURN set used for future peer links.
// Existing links keep the configuration they were created with.
func (e *Engine) UpdateICEServers(servers []webrtc.ICEServer) {
	e.iceMu.Lock()
	e.ice = servers
	e.iceMu.Unlock()
	log.Infof("ICE servers updated (%d entries)", len(servers))
}

// NewPeerLink creates a fresh peer connection scoped to one call.
func (e *Engine) NewPeerLink() (PeerLink, error) {
	e.iceMu.RLock()
	servers := e.ice
	e.iceMu.RUnlock()

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}
	return newPionLink(pc), nil
}

// EnumerateDevices returns a fresh snapshot of capture/playback devices.
// The snapshot is replaced wholesale on each call, never mutated.
func (e *Engine) EnumerateDevices() (Inventory, error) {
	var inv Inventory
	for _, d := range mediadevices.EnumerateDevices() {
		info := DeviceInfo{ID: d.DeviceID, Label: d.Label}
		switch d.Kind {
		case mediadevices.AudioInput:
			inv.AudioInputs = append(inv.AudioInputs, info)
		case mediadevices.AudioOutput:
			inv.AudioOutputs = append(inv.AudioOutputs, info)
		case mediadevices.VideoInput:
			inv.VideoInputs = append(inv.VideoInputs, info)
		}
	}
	return inv, nil
}

// wrapStream adapts a mediadevices stream into our Track/Stream wrappers.
func wrapStream(ms mediadevices.MediaStream) *Stream {
	var tracks []*Track
	for _, mt := range ms.GetTracks() {
		kind := Audio
		if mt.Kind() == webrtc.RTPCodecTypeVideo {
			kind = Video
		}
		mt := mt
		t := NewTrack(mt.ID(), kind, mt, func() { mt.Close() })
		mt.OnEnded(func(err error) {
			if err != nil {
				log.Debugf("track %s ended: %v", t.ID(), err)
			}
			t.End()
		})
		tracks = append(tracks, t)
	}
	return NewStream(tracks...)
}
