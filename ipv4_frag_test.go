package netcore

import "testing"

func TestIPv4ReassembleOutOfOrderFragments(t *testing.T) {
	s := &Stack{v4reasm: newIPv4ReassemblyTable()}
	src, _ := ParseIPv4("192.0.2.1")
	dst, _ := ParseIPv4("192.0.2.2")

	base := ipv4Header{src: src, dst: dst, id: 42, proto: 17}

	full := []byte("0123456789ABCDEF") // 16 bytes, split into three fragments below
	frag0 := full[0:8]
	frag1 := full[8:12]
	frag2 := full[12:16]

	// fragment 2 (last) arrives first, fragment 1 (middle) second,
	// fragment 0 (first) last -- exercises the hole-filling path.
	h2 := base
	h2.fragOff = 12
	h2.flags = 0 // no MF: last fragment
	if _, _, done := s.ipv4Reassemble(h2, frag2); done {
		t.Fatal("reassembly should not be complete with holes remaining")
	}

	h1 := base
	h1.fragOff = 8
	h1.flags = ipv4FlagMF
	if _, _, done := s.ipv4Reassemble(h1, frag1); done {
		t.Fatal("reassembly should not be complete with a hole remaining")
	}

	h0 := base
	h0.fragOff = 0
	h0.flags = ipv4FlagMF
	payload, proto, done := s.ipv4Reassemble(h0, frag0)
	if !done {
		t.Fatal("expected reassembly to complete once every fragment is present")
	}
	if proto != 17 {
		t.Fatalf("proto = %d, want 17", proto)
	}
	if string(payload) != string(full) {
		t.Fatalf("reassembled payload = %q, want %q", payload, full)
	}

	// the session must be gone: a completed datagram, not a leaked one.
	if len(s.v4reasm.sessions) != 0 {
		t.Fatalf("expected reassembly table to be empty, got %d sessions", len(s.v4reasm.sessions))
	}
}

func TestIPv4ReassembleTicksOutIncompleteSession(t *testing.T) {
	s := &Stack{v4reasm: newIPv4ReassemblyTable()}
	src, _ := ParseIPv4("192.0.2.1")
	dst, _ := ParseIPv4("192.0.2.2")

	h := ipv4Header{src: src, dst: dst, id: 7, proto: 6, fragOff: 0, flags: ipv4FlagMF}
	s.ipv4Reassemble(h, []byte("partial"))

	if len(s.v4reasm.sessions) != 1 {
		t.Fatalf("expected one pending session, got %d", len(s.v4reasm.sessions))
	}
	for i := 0; i < ipv4ReassemblyTimeoutTicks; i++ {
		s.v4reasm.tick()
	}
	if len(s.v4reasm.sessions) != 0 {
		t.Fatal("expected session to be aged out after its timeout")
	}
}

func TestIPv4ReassemblyTableRejectsSessionsPastCapacity(t *testing.T) {
	s := &Stack{v4reasm: newIPv4ReassemblyTable()}
	dst, _ := ParseIPv4("192.0.2.2")

	for i := 0; i < ipv4ReassemblyMaxSessions; i++ {
		src, _ := ParseIPv4("192.0.2.1")
		h := ipv4Header{src: src, dst: dst, id: uint16(i), proto: 17, fragOff: 0, flags: ipv4FlagMF}
		s.ipv4Reassemble(h, []byte("x"))
	}
	if len(s.v4reasm.sessions) != ipv4ReassemblyMaxSessions {
		t.Fatalf("expected %d sessions, got %d", ipv4ReassemblyMaxSessions, len(s.v4reasm.sessions))
	}

	overflowSrc, _ := ParseIPv4("192.0.2.1")
	h := ipv4Header{src: overflowSrc, dst: dst, id: 999, proto: 17, fragOff: 0, flags: ipv4FlagMF}
	if _, _, done := s.ipv4Reassemble(h, []byte("y")); done {
		t.Fatal("expected the over-capacity session to be rejected, not completed")
	}
	if len(s.v4reasm.sessions) != ipv4ReassemblyMaxSessions {
		t.Fatalf("session count changed on rejected fragment: got %d", len(s.v4reasm.sessions))
	}
}
