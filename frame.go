package netcore

//
// Frame: the single-owner packet buffer that moves between layers.
//

import "time"

// queueNode is the explicit, move-only linkage a [Frame] carries
// while it sits on an ARP/NDP pending-transmit list. spec.md's Design
// Notes call out that the C original aliases this bookkeeping onto the
// (otherwise unused) Ethernet header region of a queued frame; here it
// is its own field, valid only while the frame is owned by such a list.
// The TCP retransmit queue does not use it; it keeps its own
// [retransmitEntry] records.
type queueNode struct {
	next    *Frame    // next frame on the same queue, nil at the tail
	txTime  time.Time // transmit timestamp; zero for retransmissions (so RTT is not sampled on resend)
	dataLen int        // payload length this segment represents (TCP retransmit queue only)
	resent  bool       // true once this frame has been retransmitted in the current retransmit round
}

// Frame is an owned, single-owner packet buffer. It is exclusively
// referenced by whichever layer currently holds it: the pool's free
// list, an interface's RX ring, a driver about to transmit it, an
// ARP/NDP pending-transmit queue, or a TCP retransmit queue — never
// more than one at a time (spec.md §3 invariant i). Frames are passed
// by move: once you hand a *Frame to a queue or to [Interface.Send],
// you must not touch it again.
type Frame struct {
	buf  []byte // backing array, HeadroomMax+bufSize bytes
	off  int    // index of the first valid byte
	end  int    // index one past the last valid byte
	pool *Pool

	// node is valid only while the frame sits on a resolver pending
	// list; see [queueNode].
	node queueNode

	// Deadline is when a [Link] (or the real driver) should emit
	// this frame; used by the test-harness link-delay emulation and
	// left zero (meaning "now") by the live interface worker.
	Deadline time.Time
}

func (f *Frame) reset() {
	f.off = HeadroomMax
	f.end = HeadroomMax
	f.node = queueNode{}
	f.Deadline = time.Time{}
}

// Bytes returns the frame's current valid region.
func (f *Frame) Bytes() []byte {
	return f.buf[f.off:f.end]
}

// Len returns the number of valid bytes.
func (f *Frame) Len() int {
	return f.end - f.off
}

// Headroom returns how many bytes can still be prepended.
func (f *Frame) Headroom() int {
	return f.off
}

// Tailroom returns how many bytes can still be appended.
func (f *Frame) Tailroom() int {
	return len(f.buf) - f.end
}

// Prepend reserves n bytes immediately before the current valid
// region and returns them for the caller to fill in, moving the
// start of the valid region backward. Used to build headers
// outside-in (IPv4 wraps TCP, Ethernet wraps IPv4, ...). Returns nil
// if there isn't enough headroom.
func (f *Frame) Prepend(n int) []byte {
	if n > f.Headroom() {
		return nil
	}
	f.off -= n
	return f.buf[f.off : f.off+n]
}

// Consume removes n bytes from the front of the valid region and
// returns them, advancing the frame's parse index. Used to strip a
// header while walking down the receive path. Returns nil if fewer
// than n bytes remain.
func (f *Frame) Consume(n int) []byte {
	if n > f.Len() {
		return nil
	}
	hdr := f.buf[f.off : f.off+n]
	f.off += n
	return hdr
}

// Peek returns the next n bytes of the valid region without
// consuming them, or nil if fewer than n bytes remain.
func (f *Frame) Peek(n int) []byte {
	if n > f.Len() {
		return nil
	}
	return f.buf[f.off : f.off+n]
}

// Append copies p onto the end of the valid region, growing it.
// Returns false if there isn't enough tailroom.
func (f *Frame) Append(p []byte) bool {
	if len(p) > f.Tailroom() {
		return false
	}
	copy(f.buf[f.end:], p)
	f.end += len(p)
	return true
}

// Truncate shrinks the valid region to n bytes from its current
// start, discarding any trailing bytes beyond that.
func (f *Frame) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if f.off+n < f.end {
		f.end = f.off + n
	}
}

// Clone deep-copies the frame's valid region into a freshly allocated
// frame from the same pool, preserving the same headroom offset so
// the clone can still have headers prepended. Used by the TCP send and
// retransmit paths (tcp_send.go, tcp_retransmit.go), which transmit a
// copy and keep the original on the retransmit queue. The ARP/NDP
// pending-transmit queues do not clone: they take ownership of the
// caller's frame.
func (f *Frame) Clone() *Frame {
	c := f.pool.AllocNoFail()
	if c == nil {
		return nil
	}
	c.off = f.off
	c.end = f.off + f.Len()
	copy(c.buf[c.off:c.end], f.Bytes())
	return c
}

// Release returns the frame to its pool. After calling Release the
// caller must not touch the frame again.
func (f *Frame) Release() {
	if f != nil && f.pool != nil {
		f.pool.release(f)
	}
}
