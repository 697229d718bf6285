// Package loopback provides a low-latency full-duplex audio loopback
// engine: frames captured from an input device are handed, with minimal
// delay, to an output device for playback.
//
// # Overview
//
// The package is built around three pieces:
//   - FrameRing: a wait-free single-producer/single-consumer ring buffer
//     of float32 audio frames that bridges two independently clocked
//     real-time contexts.
//   - Engine: the session lifecycle and policy around the ring:
//     start/stop, overrun/underrun accounting, device-error recovery.
//   - AudioPort: the pluggable device backend; PortAudioPort ships with
//     the package.
//
// # Quick Start
//
//	cfg := loopback.NewConfig()
//	engine := loopback.NewEngine(cfg, loopback.NewPortAudioPort(cfg))
//
//	if err := engine.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	// ... speak into the mic; playback follows within the latency target.
//	fmt.Printf("%+v\n", engine.Snapshot())
//
// # Real-time discipline
//
// Engine.OnCaptured and Engine.OnNeedPlayback are invoked from the
// platform's capture and playback contexts. Both are wait-free: no locks,
// no allocation, no syscalls, bounded work per call. Overruns drop the
// newest input frames; underruns pad the output with silence. Neither
// interrupts the session; both are counted and visible in Snapshot.
//
// Start and Stop are control-plane calls from a single non-real-time
// thread. Stop is idempotent and safe to call while callbacks are in
// flight: a drain flag turns their remaining work into no-ops.
//
// # Configuration
//
// Config carries the fixed session format (sample rate, channels, period,
// latency target) and is populated from LOOPBACK_* environment variables:
//
//	cfg := loopback.NewConfig()
//	cfg.TargetLatencyMs = 10
//	if issues := cfg.Validate(); len(issues) > 0 {
//		// ...
//	}
//
// # Diagnostics
//
// Snapshot exposes state, counters, ring occupancy and peak level. A Tap
// records the played signal to a WAV file off the hot path, and a Monitor
// streams snapshots over WebSocket for live inspection.
//
// # Dependencies
//
// The package depends on:
//   - github.com/gordonklaus/portaudio: audio device I/O
//   - github.com/rs/zerolog: structured logging
//   - github.com/gorilla/websocket: diagnostics streaming
//   - github.com/go-audio/wav: tap recording
//   - github.com/joho/godotenv: environment configuration
package loopback
