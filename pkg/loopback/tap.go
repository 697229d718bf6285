package loopback

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const tapDrainInterval = 10 * time.Millisecond

// Tap records everything the engine hands to the playback sink into a
// 16-bit PCM WAV file. The real-time path only pushes into the tap's own
// ring; a background goroutine drains it to disk, so the tap never adds
// blocking work to an audio callback. Frames that arrive while the drain
// goroutine is behind are dropped and counted, never waited for.
type Tap struct {
	path       string
	sampleRate int
	channels   int
	ring       *FrameRing
	log        *Logger

	file    *os.File
	enc     *wav.Encoder
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewTap creates a tap writing to path with cfg's format. The tap ring is
// sized to half a second so it only has to ride out scheduler delay
// between drains, not sustained backpressure.
func NewTap(path string, cfg *Config) *Tap {
	return &Tap{
		path:       path,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		ring:       NewFrameRing(cfg.SampleRate/2, cfg.Channels),
		log:        GetGlobalLogger().WithComponent("Tap").WithField("path", path),
	}
}

// Dropped returns the number of feed calls that lost frames because the
// drain goroutine was behind.
func (t *Tap) Dropped() uint64 {
	return t.dropped.Load()
}

// feed accepts frames from the real-time path. Wait-free.
func (t *Tap) feed(samples []float32) {
	frames := len(samples) / t.channels
	if t.ring.Push(samples) < frames {
		t.dropped.Add(1)
	}
}

// start opens (or truncates) the WAV file and launches the drain
// goroutine. Called by the engine during Start.
func (t *Tap) start() *LoopbackError {
	f, err := os.Create(t.path)
	if err != nil {
		return WrapError(err, ErrCodeTapWrite)
	}
	t.file = f
	t.enc = wav.NewEncoder(f, t.sampleRate, 16, t.channels, 1)
	t.done = make(chan struct{})

	t.wg.Add(1)
	go t.drain()

	t.log.Info("Tap recording started")
	return nil
}

// stop flushes the remaining frames and finalizes the WAV header. Called
// by the engine during Stop.
func (t *Tap) stop() {
	if t.enc == nil {
		return
	}
	close(t.done)
	t.wg.Wait()

	if err := t.enc.Close(); err != nil {
		t.log.WithError(err).Error("Failed to finalize WAV file")
	}
	if err := t.file.Close(); err != nil {
		t.log.WithError(err).Error("Failed to close tap file")
	}
	t.enc = nil
	t.file = nil

	t.log.WithField("dropped", t.dropped.Load()).Info("Tap recording stopped")
}

func (t *Tap) drain() {
	defer t.wg.Done()

	scratch := make([]float32, 4096*t.channels)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: t.channels,
			SampleRate:  t.sampleRate,
		},
		Data:           make([]int, 0, len(scratch)),
		SourceBitDepth: 16,
	}

	ticker := time.NewTicker(tapDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !t.flush(scratch, buf) {
				return
			}
		case <-t.done:
			t.flush(scratch, buf)
			return
		}
	}
}

// flush moves everything currently buffered out to the encoder; returns
// false when writing fails and draining should stop.
func (t *Tap) flush(scratch []float32, buf *audio.IntBuffer) bool {
	for t.ring.Len() > 0 {
		got := t.ring.Pop(scratch)
		if got == 0 {
			break
		}
		buf.Data = buf.Data[:0]
		for _, s := range scratch[:got*t.channels] {
			buf.Data = append(buf.Data, int(float32ToInt16(s)))
		}
		if err := t.enc.Write(buf); err != nil {
			t.log.WithError(err).Error("Tap write failed; recording aborted")
			return false
		}
	}
	return true
}

func float32ToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767.0)
}
