package netcore

//
// Shared neighbor-cache vocabulary: ARP (arp.go) and NDP (ndp.go)
// mirror each other's entry lifecycle (spec.md §4.3: "Entry lifecycle
// mirrors ARP with IPv6 semantics"), so the state/type enums and the
// move-only pending-frame queue live here once instead of twice.
//

import "time"

// neighState is the resolution state of an ARP or NDP cache entry.
type neighState int

const (
	neighStateReserved  neighState = iota // slot allocated, resolution not yet started
	neighStatePending                     // actively probing, frames may be queued
	neighStateResolved                    // MAC known and believed current
	neighStateRefresh                     // resolved but due for a refresh probe
)

// neighType classifies a cache entry for eviction/refresh policy
// (spec.md §4.2's allocation and refresh policy).
type neighType int

const (
	neighTypeTempIP   neighType = iota // learned opportunistically, evicted first
	neighTypeInuseIP                   // refreshed once, then reclassified TempIP
	neighTypeStaticIP                  // user-configured, never expires but released if off-link
	neighTypeFixedIP                   // the default gateway; always refreshed on expiry
)

// pendingQueue is the move-only FIFO of frames a [neighState]Pending
// or Refresh entry accumulates while resolution is in flight,
// threaded through each [Frame]'s [queueNode] (spec.md Design Notes
// §9: "explicit QueueNode... discriminated by the frame's current
// owner").
type pendingQueue struct {
	head, tail *Frame
	len        int
}

// append adds f to the tail of the queue. Ownership of f moves to the
// queue; the caller must not touch f again directly.
func (q *pendingQueue) append(f *Frame) {
	f.node.next = nil
	f.node.txTime = time.Time{}
	if q.tail == nil {
		q.head, q.tail = f, f
	} else {
		q.tail.node.next = f
		q.tail = f
	}
	q.len++
}

// drain removes and returns every queued frame in FIFO order,
// transferring ownership to the caller.
func (q *pendingQueue) drain() []*Frame {
	var out []*Frame
	for f := q.head; f != nil; {
		next := f.node.next
		f.node.next = nil
		out = append(out, f)
		f = next
	}
	q.head, q.tail, q.len = nil, nil, 0
	return out
}

// releaseAll drops every queued frame back to its pool without
// transmitting it (used when an entry is evicted or its resolution
// ultimately fails).
func (q *pendingQueue) releaseAll() {
	for _, f := range q.drain() {
		f.Release()
	}
}
