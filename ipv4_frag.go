package netcore

//
// IPv4 fragmentation/reassembly (RFC 791 §3.2), spec.md §4.5.
// Fragmentation on egress lives in ipv4.go; this file is the ingress
// reassembly side, one session per (src, dst, id, proto) tuple.
//

import "sync"

const (
	ipv4ReassemblyTimeoutTicks = 300 // 30 s at the 100 ms tick rate (RFC 791's 15-60 s guidance)
	ipv4ReassemblyMaxSessions  = 64
)

type ipv4ReassemblyKey struct {
	src, dst IPv4Addr
	id       uint16
	proto    uint8
}

type ipv4Fragment struct {
	offset int
	data   []byte
}

type ipv4ReassemblySession struct {
	fragments []ipv4Fragment
	haveLast  bool
	totalLen  int
	timeout   int
}

// ipv4ReassemblyTable holds in-progress reassembly sessions for every
// interface sharing a [Stack] (the datagram ID space is per
// source/destination pair regardless of which interface it arrived
// on).
type ipv4ReassemblyTable struct {
	mu       sync.Mutex
	sessions map[ipv4ReassemblyKey]*ipv4ReassemblySession
}

func newIPv4ReassemblyTable() *ipv4ReassemblyTable {
	return &ipv4ReassemblyTable{sessions: map[ipv4ReassemblyKey]*ipv4ReassemblySession{}}
}

// ipv4Reassemble folds one fragment into its session, returning the
// fully reassembled payload (and protocol) once every hole is filled.
// data must not be retained by the caller past this call; it is
// copied.
func (s *Stack) ipv4Reassemble(h ipv4Header, data []byte) (payload []byte, proto uint8, done bool) {
	t := s.v4reasm
	key := ipv4ReassemblyKey{src: h.src, dst: h.dst, id: h.id, proto: h.proto}

	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[key]
	if !ok {
		if len(t.sessions) >= ipv4ReassemblyMaxSessions {
			return nil, 0, false
		}
		sess = &ipv4ReassemblySession{timeout: ipv4ReassemblyTimeoutTicks}
		t.sessions[key] = sess
	}
	sess.timeout = ipv4ReassemblyTimeoutTicks

	cp := append([]byte(nil), data...)
	sess.fragments = append(sess.fragments, ipv4Fragment{offset: h.fragOff, data: cp})
	if h.flags&ipv4FlagMF == 0 {
		sess.haveLast = true
		sess.totalLen = h.fragOff + len(cp)
	}

	if !sess.haveLast {
		return nil, 0, false
	}

	reassembled, complete := assembleIPv4Fragments(sess)
	if !complete {
		return nil, 0, false
	}
	delete(t.sessions, key)
	return reassembled, h.proto, true
}

func assembleIPv4Fragments(sess *ipv4ReassemblySession) ([]byte, bool) {
	out := make([]byte, sess.totalLen)
	covered := make([]bool, sess.totalLen)
	for _, f := range sess.fragments {
		end := f.offset + len(f.data)
		if end > sess.totalLen {
			end = sess.totalLen
		}
		if f.offset >= end {
			continue
		}
		copy(out[f.offset:end], f.data[:end-f.offset])
		for i := f.offset; i < end; i++ {
			covered[i] = true
		}
	}
	for _, c := range covered {
		if !c {
			return nil, false
		}
	}
	return out, true
}

// tick ages out reassembly sessions that never completed.
func (t *ipv4ReassemblyTable) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, sess := range t.sessions {
		sess.timeout--
		if sess.timeout <= 0 {
			delete(t.sessions, k)
		}
	}
}
