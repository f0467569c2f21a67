//go:build !linux || !cgo

package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// initAPI registers the default codec set. Capture via pion/mediadevices
// needs platform drivers (V4L2/malgo/X11 on Linux); on other platforms the
// engine can negotiate and receive but not capture.
func (e *Engine) initAPI() error {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return err
	}

	e.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)
	return nil
}

func (e *Engine) Supported() bool       { return false }
func (e *Engine) ScreenSupported() bool { return false }

func (e *Engine) GetUserMedia(_ Constraints) (*Stream, error) {
	return nil, ErrUnsupported
}

func (e *Engine) GetDisplayMedia() (*Stream, error) {
	return nil, ErrUnsupported
}
