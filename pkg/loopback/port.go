package loopback

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// AudioPort is the contract between the engine and a platform audio
// backend. The engine drives the lifecycle in the order Open, Start,
// Stop, Close; the port opens devices, negotiates the format, and invokes
// the engine's two entry points from its capture and playback contexts.
//
// Ports report mid-session device conditions through the engine's
// ReportTransientError/ReportFatalError, but never from inside their own
// Stop or Close (the engine may be holding its control lock there), and
// never block inside OnCaptured or OnNeedPlayback.
type AudioPort interface {
	Open(e *Engine) error
	Start() error
	Stop() error
	Close() error
}

// PortAudioPort feeds the engine from a PortAudio capture stream and
// drains it from a PortAudio playback stream. The two streams run on
// independent device clocks; the engine's ring absorbs the skew.
type PortAudioPort struct {
	cfg    *Config
	log    *Logger
	engine *Engine

	in          *portaudio.Stream
	out         *portaudio.Stream
	initialized bool
}

// NewPortAudioPort creates an unopened port for cfg's devices.
func NewPortAudioPort(cfg *Config) *PortAudioPort {
	return &PortAudioPort{
		cfg: cfg,
		log: GetGlobalLogger().WithComponent("PortAudioPort"),
	}
}

// Open initializes PortAudio and opens the capture and playback streams.
// The engine reference is what the real-time callbacks deliver into; no
// globals are involved.
func (p *PortAudioPort) Open(e *Engine) error {
	p.engine = e

	if err := portaudio.Initialize(); err != nil {
		return NewDeviceOpenError(err)
	}
	p.initialized = true

	inDev, err := p.resolveDevice(p.cfg.InputDeviceID, true)
	if err != nil {
		p.teardown()
		return NewDeviceOpenError(err)
	}
	outDev, err := p.resolveDevice(p.cfg.OutputDeviceID, false)
	if err != nil {
		p.teardown()
		return NewDeviceOpenError(err)
	}

	inParams := portaudio.LowLatencyParameters(inDev, nil)
	inParams.Input.Channels = p.cfg.Channels
	inParams.SampleRate = float64(p.cfg.SampleRate)
	inParams.FramesPerBuffer = p.cfg.PeriodFrames
	p.in, err = portaudio.OpenStream(inParams, func(in []float32) {
		p.engine.OnCaptured(in)
	})
	if err != nil {
		p.teardown()
		return NewDeviceOpenError(err).AddDetail("device", inDev.Name)
	}

	outParams := portaudio.LowLatencyParameters(nil, outDev)
	outParams.Output.Channels = p.cfg.Channels
	outParams.SampleRate = float64(p.cfg.SampleRate)
	outParams.FramesPerBuffer = p.cfg.PeriodFrames
	p.out, err = portaudio.OpenStream(outParams, func(out []float32) {
		p.engine.OnNeedPlayback(out)
	})
	if err != nil {
		p.teardown()
		return NewDeviceOpenError(err).AddDetail("device", outDev.Name)
	}

	p.log.WithField("input", inDev.Name).WithField("output", outDev.Name).
		Debug("Streams opened")
	return nil
}

// Start starts the playback stream first so the output clock is pulling
// by the time capture frames arrive; anything captured before then would
// only age in the ring.
func (p *PortAudioPort) Start() error {
	if p.in == nil || p.out == nil {
		return NewDeviceStartError(errors.New("port not open"))
	}
	if err := p.out.Start(); err != nil {
		return NewDeviceStartError(err)
	}
	if err := p.in.Start(); err != nil {
		_ = p.out.Stop()
		return NewDeviceStartError(err)
	}
	return nil
}

// Stop stops both streams. Callbacks already in flight complete; the
// engine's drain flag makes their work a no-op.
func (p *PortAudioPort) Stop() error {
	var firstErr error
	if p.in != nil {
		if err := p.in.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.out != nil {
		if err := p.out.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the streams and the PortAudio library.
func (p *PortAudioPort) Close() error {
	p.teardown()
	return nil
}

func (p *PortAudioPort) teardown() {
	if p.in != nil {
		_ = p.in.Close()
		p.in = nil
	}
	if p.out != nil {
		_ = p.out.Close()
		p.out = nil
	}
	if p.initialized {
		if err := portaudio.Terminate(); err != nil {
			p.log.WithError(err).Warn("PortAudio terminate failed")
		}
		p.initialized = false
	}
}

// resolveDevice maps an optional device ID to a PortAudio device,
// falling back to the defaults.
func (p *PortAudioPort) resolveDevice(id *int, isInput bool) (*portaudio.DeviceInfo, error) {
	if id == nil {
		if isInput {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if *id < 0 || *id >= len(devices) {
		return nil, fmt.Errorf("device ID %d out of range (%d devices)", *id, len(devices))
	}
	dev := devices[*id]
	if isInput && dev.MaxInputChannels < p.cfg.Channels {
		return nil, fmt.Errorf("device '%s' supports max %d input channels, requested %d",
			dev.Name, dev.MaxInputChannels, p.cfg.Channels)
	}
	if !isInput && dev.MaxOutputChannels < p.cfg.Channels {
		return nil, fmt.Errorf("device '%s' supports max %d output channels, requested %d",
			dev.Name, dev.MaxOutputChannels, p.cfg.Channels)
	}
	return dev, nil
}
