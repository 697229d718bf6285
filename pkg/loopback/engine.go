package loopback

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Engine binds one FrameRing to a capture source and a playback sink and
// owns the session lifecycle around them. The two real-time entry points,
// OnCaptured and OnNeedPlayback, are wait-free and never log, allocate,
// or touch the control-plane mutex; everything else runs on the caller's
// (single) control thread.
type Engine struct {
	cfg  *Config
	ring *FrameRing
	port AudioPort
	tap  *Tap
	log  *Logger

	// Hot-path gates. running flips on the Starting->Running and
	// *->Stopped/Failed edges; draining is the stop flag both entry
	// points observe so in-flight callbacks finish harmlessly.
	running  atomic.Bool
	draining atomic.Bool

	overruns   atomic.Uint64
	underruns  atomic.Uint64
	transients atomic.Uint64
	restarts   atomic.Uint64
	captured   atomic.Uint64
	played     atomic.Uint64
	peakBits   atomic.Uint32

	mu    sync.Mutex // control plane only; hot path never takes it
	state State

	// Handler registry on its own lock so ports can report errors while
	// the control plane is mid-Start/Stop.
	hmu           sync.Mutex
	nextHandlerID int
	errorHandlers map[int]ErrorHandler
	stateHandlers map[int]StateHandler
}

// NewEngine creates a stopped engine around cfg and port. The ring is
// sized here, once, from the latency target; capacity does not change for
// the life of the engine.
func NewEngine(cfg *Config, port AudioPort) *Engine {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Engine{
		cfg:           cfg,
		ring:          NewFrameRing(cfg.RingFrames(), cfg.Channels),
		port:          port,
		log:           GetGlobalLogger().WithComponent("Engine"),
		state:         StateStopped,
		errorHandlers: make(map[int]ErrorHandler),
		stateHandlers: make(map[int]StateHandler),
	}
}

// OnCaptured accepts freshly captured frames from the capture context.
// Frames that do not fit in the ring are dropped (drop-newest) and the
// overrun counter is bumped; that is a recorded condition, not an error.
func (e *Engine) OnCaptured(in []float32) {
	if !e.running.Load() || e.draining.Load() {
		return
	}

	peak := float32(0)
	for _, s := range in {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	e.peakBits.Store(math.Float32bits(peak))

	frames := len(in) / e.cfg.Channels
	wrote := e.ring.Push(in)
	e.captured.Add(uint64(wrote))
	if wrote < frames {
		e.overruns.Add(1)
	}
}

// OnNeedPlayback fills out with the oldest buffered frames, padding with
// silence when fewer are available (underrun). The whole of out is always
// written before returning, so the device callback contract holds even
// while stopped or draining.
func (e *Engine) OnNeedPlayback(out []float32) {
	if !e.running.Load() || e.draining.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	frames := len(out) / e.cfg.Channels
	got := e.ring.Pop(out)
	e.played.Add(uint64(frames))
	if got < frames {
		e.underruns.Add(1)
	}
	if t := e.tap; t != nil {
		t.feed(out)
	}
}

// Start moves the engine from Stopped or Failed through Starting to
// Running. Device open and start failures are retried up to the
// configured budget; exhausting it leaves the engine Failed and returns
// a fatal device error. Configuration problems surface synchronously as
// CONFIG_INVALID and leave the engine in its prior state.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning, StateStarting, StateStopping:
		return NewLoopbackError("engine already started", ErrCodeEngineState).
			AddDetail("state", string(e.state))
	}
	wasFailed := e.state == StateFailed

	if err := e.cfg.check(); err != nil {
		e.log.LogError(err)
		return err
	}

	e.setState(StateStarting)
	e.draining.Store(false)

	if err := e.openPort(); err != nil {
		e.setState(StateFailed)
		e.log.LogError(err)
		return err
	}

	if e.cfg.TapPath != "" && e.tap == nil {
		e.tap = NewTap(e.cfg.TapPath, e.cfg)
	}
	if e.tap != nil {
		if err := e.tap.start(); err != nil {
			e.log.LogError(err)
			e.tap = nil
		}
	}

	e.running.Store(true)
	e.setState(StateRunning)
	if wasFailed {
		e.restarts.Add(1)
	}
	e.log.LogSessionEvent("started", StateRunning, map[string]interface{}{
		"sample_rate": e.cfg.SampleRate,
		"channels":    e.cfg.Channels,
		"ring_frames": e.ring.Cap(),
	})
	return nil
}

// openPort opens and starts the port with a bounded retry, reporting each
// failed attempt as a transient condition.
func (e *Engine) openPort() *LoopbackError {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := e.port.Open(e)
		if err == nil {
			err = e.port.Start()
			if err == nil {
				return nil
			}
			_ = e.port.Close()
		}
		lastErr = err

		if attempt >= e.cfg.MaxDeviceRetries {
			break
		}
		e.reportTransient(NewTransientDeviceError(err).AddDetail("attempt", attempt+1))
		time.Sleep(time.Duration(e.cfg.RetryDelay * float64(time.Second)))
	}
	return NewFatalDeviceError("device unavailable after retries", lastErr).
		AddDetail("attempts", e.cfg.MaxDeviceRetries+1)
}

// Stop drains and tears the session down. Idempotent, and safe to call
// while capture/playback contexts are mid-callback: the drain flag makes
// their remaining work a no-op, and the port owns actual device teardown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		return
	}

	e.draining.Store(true)
	e.running.Store(false)
	e.setState(StateStopping)

	if err := e.port.Stop(); err != nil {
		e.log.WithError(err).Warn("Port stop reported an error")
	}
	if err := e.port.Close(); err != nil {
		e.log.WithError(err).Warn("Port close reported an error")
	}
	if e.tap != nil {
		e.tap.stop()
	}

	e.setState(StateStopped)
	e.log.LogSessionEvent("stopped", StateStopped, map[string]interface{}{
		"overruns":  e.overruns.Load(),
		"underruns": e.underruns.Load(),
	})
}

// ReportTransientError is the port-facing error plane for recoverable
// mid-session conditions (stream re-preparation and the like). The
// session stays Running; the period with no frames moved shows up in the
// under/overrun counters instead.
func (e *Engine) ReportTransientError(err error) {
	e.reportTransient(NewTransientDeviceError(err))
}

func (e *Engine) reportTransient(lerr *LoopbackError) {
	e.transients.Add(1)
	e.log.LogError(lerr)
	e.dispatchError(lerr)
}

// ReportFatalError moves the engine to Failed: frame flow stops, device
// teardown stays with the port, and only an explicit Start re-enters the
// lifecycle.
func (e *Engine) ReportFatalError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning && e.state != StateStarting {
		return
	}
	e.running.Store(false)
	e.setState(StateFailed)

	lerr := NewFatalDeviceError("device failed mid-session", err)
	e.log.LogError(lerr)
	e.dispatchError(lerr)
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Counters returns the cumulative session counters.
func (e *Engine) Counters() Counters {
	return Counters{
		Overruns:       e.overruns.Load(),
		Underruns:      e.underruns.Load(),
		Transients:     e.transients.Load(),
		Restarts:       e.restarts.Load(),
		FramesCaptured: e.captured.Load(),
		FramesPlayed:   e.played.Load(),
	}
}

// Snapshot returns a point-in-time diagnostic view; safe from any
// goroutine.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:          e.State(),
		Counters:       e.Counters(),
		BufferedFrames: e.ring.Len(),
		CapacityFrames: e.ring.Cap(),
		PeakLevel:      math.Float32frombits(e.peakBits.Load()),
		Timestamp:      time.Now(),
	}
}

// Config returns the engine's fixed session configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// SetTap attaches a WAV tap recording everything handed to the playback
// sink. Must be called while the engine is stopped.
func (e *Engine) SetTap(t *Tap) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped && e.state != StateFailed {
		return NewLoopbackError("tap can only be attached while stopped", ErrCodeEngineState)
	}
	e.tap = t
	return nil
}

// AddErrorHandler registers a handler for transient and fatal device
// errors; returns a remover.
func (e *Engine) AddErrorHandler(handler ErrorHandler) func() {
	e.hmu.Lock()
	id := e.nextHandlerID
	e.nextHandlerID++
	e.errorHandlers[id] = handler
	e.hmu.Unlock()

	return func() {
		e.hmu.Lock()
		delete(e.errorHandlers, id)
		e.hmu.Unlock()
	}
}

// AddStateHandler registers a handler for session state transitions;
// returns a remover.
func (e *Engine) AddStateHandler(handler StateHandler) func() {
	e.hmu.Lock()
	id := e.nextHandlerID
	e.nextHandlerID++
	e.stateHandlers[id] = handler
	e.hmu.Unlock()

	return func() {
		e.hmu.Lock()
		delete(e.stateHandlers, id)
		e.hmu.Unlock()
	}
}

func (e *Engine) setState(state State) {
	if e.state == state {
		return
	}
	e.state = state

	e.hmu.Lock()
	for _, handler := range e.stateHandlers {
		go handler(state)
	}
	e.hmu.Unlock()
}

func (e *Engine) dispatchError(err *LoopbackError) {
	e.hmu.Lock()
	for _, handler := range e.errorHandlers {
		go handler(err)
	}
	e.hmu.Unlock()
}
