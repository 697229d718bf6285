package loopback

import "sync/atomic"

// FrameRing is a wait-free single-producer/single-consumer ring buffer of
// audio frames. One frame is one float32 sample per channel; the channel
// count is fixed at construction and storage is interleaved.
//
// The two positions are monotonically increasing uint32 counters; the
// physical slot is position & mask, so capacity must be a power of two
// (the constructor rounds up). writeIdx - readIdx is always the number of
// readable frames, unsigned wraparound included.
//
// Thread assignment is strict: Push is called by exactly one producer
// (the capture context), Pop by exactly one consumer (the playback
// context). Neither blocks, allocates, or takes a lock, so both are safe
// to call from real-time audio callbacks.
type FrameRing struct {
	// Producer and consumer positions live on separate cache lines to
	// avoid false sharing between the two real-time contexts.
	writeIdx atomic.Uint32
	_pad1    [60]byte
	readIdx  atomic.Uint32
	_pad2    [60]byte

	buf      []float32
	mask     uint32
	channels int
}

// NewFrameRing creates a ring holding at least capacityFrames frames of
// channels interleaved float32 samples. Capacity is rounded up to the next
// power of two and is at least one frame.
func NewFrameRing(capacityFrames, channels int) *FrameRing {
	if channels < 1 {
		channels = 1
	}
	n := nextPowerOfTwo(capacityFrames)
	return &FrameRing{
		buf:      make([]float32, n*channels),
		mask:     uint32(n - 1),
		channels: channels,
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push copies whole frames from src into the ring and returns the number
// of frames actually written. When src holds more frames than there is
// free space, the tail of src is dropped (drop-newest). Producer side only.
func (r *FrameRing) Push(src []float32) int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()

	n := uint32(len(src) / r.channels)
	free := uint32(r.Cap()) - (w - rd)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	pos := (w & r.mask) * uint32(r.channels)
	cnt := n * uint32(r.channels)
	first := uint32(len(r.buf)) - pos
	if first >= cnt {
		copy(r.buf[pos:pos+cnt], src[:cnt])
	} else {
		copy(r.buf[pos:], src[:first])
		copy(r.buf[:cnt-first], src[first:cnt])
	}

	r.writeIdx.Store(w + n)
	return int(n)
}

// Pop copies up to len(dst)/channels frames out of the ring into dst and
// returns the number of frames actually read. Any remainder of dst is
// zero-filled, so the destination always comes back fully initialized
// (silence on underrun). Consumer side only.
func (r *FrameRing) Pop(dst []float32) int {
	rd := r.readIdx.Load()
	w := r.writeIdx.Load()

	n := uint32(len(dst) / r.channels)
	avail := w - rd
	got := n
	if got > avail {
		got = avail
	}

	if got > 0 {
		pos := (rd & r.mask) * uint32(r.channels)
		cnt := got * uint32(r.channels)
		first := uint32(len(r.buf)) - pos
		if first >= cnt {
			copy(dst[:cnt], r.buf[pos:pos+cnt])
		} else {
			copy(dst[:first], r.buf[pos:])
			copy(dst[first:cnt], r.buf[:cnt-first])
		}
		r.readIdx.Store(rd + got)
	}

	for i := int(got) * r.channels; i < int(n)*r.channels; i++ {
		dst[i] = 0
	}
	return int(got)
}

// Len returns the number of frames buffered and ready to read.
func (r *FrameRing) Len() int {
	return int(r.writeIdx.Load() - r.readIdx.Load())
}

// Cap returns the ring capacity in frames.
func (r *FrameRing) Cap() int {
	return int(r.mask) + 1
}

// Free returns the number of frames that can be pushed without loss.
func (r *FrameRing) Free() int {
	return r.Cap() - r.Len()
}

// Channels returns the fixed channel count per frame.
func (r *FrameRing) Channels() int {
	return r.channels
}
