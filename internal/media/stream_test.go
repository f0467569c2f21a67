package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestTrackSetEnabledCallsBind(t *testing.T) {
	tr := NewTrack("t1", Audio, nil, nil)
	if !tr.Enabled() {
		t.Fatal("new track not enabled")
	}

	var got []bool
	tr.Bind(func(enabled bool) error {
		got = append(got, enabled)
		return nil
	})

	if err := tr.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	// Same value again must not re-trigger the hook.
	if err := tr.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := tr.SetEnabled(true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Fatalf("bind calls = %v", got)
	}
}

func TestTrackSetEnabledPropagatesBindError(t *testing.T) {
	tr := NewTrack("t1", Video, nil, nil)
	boom := errors.New("sender gone")
	tr.Bind(func(bool) error { return boom })

	if err := tr.SetEnabled(false); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want bind error", err)
	}
}

func TestTrackOnEnded(t *testing.T) {
	tr := NewTrack("t1", Video, nil, nil)

	fired := 0
	tr.OnEnded(func() { fired++ })
	tr.End()
	tr.End()
	if fired != 1 {
		t.Fatalf("handler fired %d times, want 1", fired)
	}

	// Registering after the end fires immediately.
	late := 0
	tr.OnEnded(func() { late++ })
	if late != 1 {
		t.Fatal("late handler not fired")
	}
}

func TestTrackStopIdempotent(t *testing.T) {
	stops := 0
	tr := NewTrack("t1", Audio, nil, func() { stops++ })

	tr.Stop()
	tr.Stop()
	if stops != 1 {
		t.Fatalf("stop ran %d times, want 1", stops)
	}
	if !tr.Stopped() {
		t.Fatal("Stopped() false after Stop")
	}
}

func TestStreamTracksOfAndAdd(t *testing.T) {
	audio := NewTrack("a", Audio, nil, nil)
	video := NewTrack("v", Video, nil, nil)
	s := NewStream(audio, video)

	if got := s.TracksOf(Audio); len(got) != 1 || got[0] != audio {
		t.Fatalf("TracksOf(Audio) = %v", got)
	}

	extra := NewTrack("v2", Video, nil, nil)
	s.Add(extra)
	if got := s.TracksOf(Video); len(got) != 2 {
		t.Fatalf("TracksOf(Video) has %d tracks, want 2", len(got))
	}

	s.Stop()
	for _, tr := range s.Tracks() {
		if !tr.Stopped() {
			t.Fatalf("track %s not stopped", tr.ID())
		}
	}
}

func TestMapConnectionState(t *testing.T) {
	cases := []struct {
		in   webrtc.PeerConnectionState
		want LinkState
	}{
		{webrtc.PeerConnectionStateNew, LinkConnecting},
		{webrtc.PeerConnectionStateConnecting, LinkConnecting},
		{webrtc.PeerConnectionStateConnected, LinkConnected},
		{webrtc.PeerConnectionStateDisconnected, LinkDisconnected},
		{webrtc.PeerConnectionStateFailed, LinkFailed},
		{webrtc.PeerConnectionStateClosed, LinkClosed},
	}
	for _, c := range cases {
		if got := mapConnectionState(c.in); got != c.want {
			t.Errorf("mapConnectionState(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestLinkStateDead(t *testing.T) {
	for s, want := range map[LinkState]bool{
		LinkConnecting:   false,
		LinkConnected:    false,
		LinkDisconnected: true,
		LinkFailed:       true,
		LinkClosed:       true,
	} {
		if got := s.Dead(); got != want {
			t.Errorf("%s.Dead() = %v, want %v", s, got, want)
		}
	}
}
