package loopback

import "time"

// State enum for the loopback session lifecycle.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

// Counters holds the engine's cumulative session counters. Overruns and
// underruns are expected rate-mismatch events, not errors; they never
// interrupt the session.
type Counters struct {
	Overruns       uint64 `json:"overruns"`
	Underruns      uint64 `json:"underruns"`
	Transients     uint64 `json:"transients"`
	Restarts       uint64 `json:"restarts"`
	FramesCaptured uint64 `json:"frames_captured"`
	FramesPlayed   uint64 `json:"frames_played"`
}

// Snapshot is a point-in-time diagnostic view of the engine, safe to take
// from any goroutine while the session is live.
type Snapshot struct {
	State          State     `json:"state"`
	Counters       Counters  `json:"counters"`
	BufferedFrames int       `json:"buffered_frames"`
	CapacityFrames int       `json:"capacity_frames"`
	PeakLevel      float32   `json:"peak_level"`
	Timestamp      time.Time `json:"timestamp"`
}

// Healthy reports whether the session is running without sustained data
// loss: a handful of under/overruns around startup is normal.
func (s Snapshot) Healthy() bool {
	if s.State != StateRunning {
		return false
	}
	moved := s.Counters.FramesCaptured + s.Counters.FramesPlayed
	if moved == 0 {
		return true
	}
	glitches := s.Counters.Overruns + s.Counters.Underruns
	return glitches*1000 < moved
}

// ErrorHandler receives engine errors reported outside the Start/Stop
// control plane (transient and fatal device conditions).
type ErrorHandler func(*LoopbackError)

// StateHandler receives session state transitions.
type StateHandler func(State)
