package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var log = logging.Logger("media")

// pliInterval is how often the pump nudges the remote encoder for a
// keyframe so video recovers from packet loss.
const pliInterval = 3 * time.Second

// pionLink implements PeerLink over a Pion PeerConnection.
type pionLink struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	senders     map[Kind]*webrtc.RTPSender
	onTrack     func(*RemoteTrack)
	onState     func(LinkState)
	closed      bool
	done        chan struct{}
}

func newPionLink(pc *webrtc.PeerConnection) *pionLink {
	l := &pionLink{
		pc:      pc,
		senders: make(map[Kind]*webrtc.RTPSender),
		done:    make(chan struct{}),
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := Audio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = Video
		}
		rt := NewRemoteTrack(remote.ID(), kind)
		log.Infof("remote track %s (%s)", rt.ID(), kind)

		go l.pump(remote, rt)
		if kind == Video {
			go l.pliLoop(remote)
		}

		l.mu.Lock()
		fn := l.onTrack
		l.mu.Unlock()
		if fn != nil {
			fn(rt)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.mu.Lock()
		fn := l.onState
		l.mu.Unlock()
		if fn != nil {
			fn(mapConnectionState(s))
		}
	})

	return l
}

func mapConnectionState(s webrtc.PeerConnectionState) LinkState {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		return LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		return LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		return LinkFailed
	case webrtc.PeerConnectionStateClosed:
		return LinkClosed
	default:
		return LinkConnecting
	}
}

func (l *pionLink) OnICECandidate(fn func(candidate string)) {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering complete marker
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Warnf("marshal candidate: %v", err)
			return
		}
		fn(string(b))
	})
}

func (l *pionLink) OnTrack(fn func(*RemoteTrack)) {
	l.mu.Lock()
	l.onTrack = fn
	l.mu.Unlock()
}

func (l *pionLink) OnStateChange(fn func(LinkState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *pionLink) AddTrack(t *Track) error {
	if t.Local() == nil {
		return errors.New("media: track has no sendable source")
	}
	sender, err := l.pc.AddTrack(t.Local())
	if err != nil {
		return fmt.Errorf("media: add track: %w", err)
	}

	l.mu.Lock()
	l.senders[t.Kind()] = sender
	l.mu.Unlock()

	// Drain RTCP on the sender so interceptors (NACK, reports) keep working.
	go l.drainRTCP(sender)

	local := t.Local()
	t.Bind(func(enabled bool) error {
		if enabled {
			return sender.ReplaceTrack(local)
		}
		return sender.ReplaceTrack(nil)
	})
	return nil
}

func (l *pionLink) ReplaceVideoTrack(t *Track) error {
	l.mu.Lock()
	sender := l.senders[Video]
	l.mu.Unlock()
	if sender == nil {
		return errors.New("media: no outbound video sender")
	}
	if t.Local() == nil {
		return errors.New("media: track has no sendable source")
	}
	// Honor the enabled flag at swap time; a disabled track swaps in as nil.
	next := t.Local()
	if !t.Enabled() {
		next = nil
	}
	if err := sender.ReplaceTrack(next); err != nil {
		return fmt.Errorf("media: replace video track: %w", err)
	}

	local := t.Local()
	t.Bind(func(enabled bool) error {
		if enabled {
			return sender.ReplaceTrack(local)
		}
		return sender.ReplaceTrack(nil)
	})
	return nil
}

func (l *pionLink) Offer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("media: set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (l *pionLink) Answer() (string, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("media: set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (l *pionLink) SetRemoteOffer(sdp string) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
}

func (l *pionLink) SetRemoteAnswer(sdp string) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (l *pionLink) AddICECandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		// Raw candidate-line form from non-JSON peers.
		init = webrtc.ICECandidateInit{Candidate: candidate}
	}
	return l.pc.AddICECandidate(init)
}

func (l *pionLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()
	return l.pc.Close()
}

// pump drains inbound RTP so the receiver's jitter buffer and interceptors
// stay live, counting packets for diagnostics.
func (l *pionLink) pump(remote *webrtc.TrackRemote, rt *RemoteTrack) {
	buf := make([]byte, 1500)
	var pkt rtp.Packet
	for {
		n, _, err := remote.Read(buf)
		if err != nil {
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		rt.countPacket()
	}
}

// pliLoop periodically requests a keyframe for the remote video track.
func (l *pionLink) pliLoop(remote *webrtc.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			err := l.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
			})
			if err != nil {
				return
			}
		}
	}
}

// drainRTCP reads and discards sender reports until the sender stops.
func (l *pionLink) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
