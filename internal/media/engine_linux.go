//go:build linux && cgo

package media

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the V4L2 camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the malgo microphone driver
	_ "github.com/pion/mediadevices/pkg/driver/screen"     // registers the X11 screen driver
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// initAPI wires VP8+Opus encoders and the default interceptors into a
// webrtc.API shared by all peer links.
func (e *Engine) initAPI() error {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return err
	}

	e.selector = mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	e.selector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return err
	}

	// Generous ICE timeouts so a brief relay/NAT hiccup does not immediately
	// terminate the call. The default disconnectedTimeout of 5 s is too short
	// for relay paths with short outages during re-keying or failover.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	e.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)
	return nil
}

func (e *Engine) Supported() bool       { return true }
func (e *Engine) ScreenSupported() bool { return true }

// GetUserMedia acquires camera and/or microphone per the constraints.
func (e *Engine) GetUserMedia(c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("media: constraints request no tracks")
	}

	maxW, maxH := c.MaxWidth, c.MaxHeight
	if maxW <= 0 {
		maxW = e.opts.MaxWidth
	}
	if maxH <= 0 {
		maxH = e.opts.MaxHeight
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: e.selector}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// Exclude MJPEG: some cameras expose an MJPEG V4L2 node that
			// produces malformed JPEG frames, which poisons the VP8 encoder.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: maxW}
			mc.Height = prop.IntRanged{Max: maxH}
		}
	}
	if c.Audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("media: get user media: %w", err)
	}
	s := wrapStream(ms)
	log.Infof("captured local media, %d tracks", len(s.Tracks()))
	return s, nil
}

// GetDisplayMedia acquires a screen-capture stream (video only).
func (e *Engine) GetDisplayMedia() (*Stream, error) {
	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: e.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("media: get display media: %w", err)
	}
	s := wrapStream(ms)
	log.Infof("captured screen, %d tracks", len(s.Tracks()))
	return s, nil
}
