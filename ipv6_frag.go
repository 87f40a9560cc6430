package netcore

//
// IPv6 fragmentation (RFC 8200 §4.5), spec.md §4.6. Mirrors
// ipv4_frag.go's session shape; the wire difference is the 8-byte
// Fragment extension header instead of bits packed into the fixed
// IPv4 header.
//

import "sync"

const (
	ipv6FragHeaderLen           = 8
	ipv6ReassemblyTimeoutTicks  = 600 // 60 s (RFC 8200 suggests 60 s)
	ipv6ReassemblyMaxSessions   = 64
)

func buildIPv6FragmentHeader(f *Frame, nextHeader uint8, offset int, more bool, id uint32) bool {
	hdr := f.Prepend(ipv6FragHeaderLen)
	if hdr == nil {
		return false
	}
	hdr[0] = nextHeader
	hdr[1] = 0
	offsetFlags := uint16(offset/8) << 3
	if more {
		offsetFlags |= 1
	}
	putUint16(hdr[2:4], offsetFlags)
	putUint32(hdr[4:8], id)
	return true
}

func parseIPv6FragmentHeader(b []byte) (nextHeader uint8, offset int, more bool, id uint32, ok bool) {
	if len(b) < ipv6FragHeaderLen {
		return 0, 0, false, 0, false
	}
	nextHeader = b[0]
	offsetFlags := getUint16(b[2:4])
	offset = int(offsetFlags>>3) * 8
	more = offsetFlags&1 != 0
	id = getUint32(b[4:8])
	return nextHeader, offset, more, id, true
}

type ipv6ReassemblyKey struct {
	src, dst IPv6Addr
	id       uint32
}

type ipv6ReassemblySession struct {
	fragments []ipv4Fragment // same {offset, data} shape as IPv4
	haveLast  bool
	totalLen  int
	proto     uint8
	hopLimit  int
	timeout   int
}

type ipv6ReassemblyTable struct {
	mu       sync.Mutex
	sessions map[ipv6ReassemblyKey]*ipv6ReassemblySession
}

func newIPv6ReassemblyTable() *ipv6ReassemblyTable {
	return &ipv6ReassemblyTable{sessions: map[ipv6ReassemblyKey]*ipv6ReassemblySession{}}
}

// ipv6Reassemble folds one fragment (its 8-byte Fragment header still
// at the front of data) into its session, returning the reassembled
// upper-layer payload once complete.
func (s *Stack) ipv6Reassemble(h ipv6Header, data []byte) (payload []byte, proto uint8, hl int, done bool) {
	nextHeader, offset, more, id, ok := parseIPv6FragmentHeader(data)
	if !ok {
		return nil, 0, 0, false
	}
	fragData := data[ipv6FragHeaderLen:]

	t := s.v6reasm
	key := ipv6ReassemblyKey{src: h.src, dst: h.dst, id: id}

	t.mu.Lock()
	defer t.mu.Unlock()

	sess, exists := t.sessions[key]
	if !exists {
		if len(t.sessions) >= ipv6ReassemblyMaxSessions {
			return nil, 0, 0, false
		}
		sess = &ipv6ReassemblySession{timeout: ipv6ReassemblyTimeoutTicks, proto: nextHeader, hopLimit: int(h.hopLimit)}
		t.sessions[key] = sess
	}
	sess.timeout = ipv6ReassemblyTimeoutTicks

	cp := append([]byte(nil), fragData...)
	sess.fragments = append(sess.fragments, ipv4Fragment{offset: offset, data: cp})
	if !more {
		sess.haveLast = true
		sess.totalLen = offset + len(cp)
	}

	if !sess.haveLast {
		return nil, 0, 0, false
	}

	reassembled, complete := assembleIPv4Fragments(&ipv4ReassemblySession{
		fragments: sess.fragments,
		haveLast:  sess.haveLast,
		totalLen:  sess.totalLen,
	})
	if !complete {
		return nil, 0, 0, false
	}
	delete(t.sessions, key)
	return reassembled, sess.proto, sess.hopLimit, true
}

// tick ages out reassembly sessions that never completed.
func (t *ipv6ReassemblyTable) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, sess := range t.sessions {
		sess.timeout--
		if sess.timeout <= 0 {
			delete(t.sessions, k)
		}
	}
}
