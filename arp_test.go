package netcore

import "testing"

func TestARPBuildParseRoundTrip(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	senderMAC := MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	targetMAC := MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	senderIP, _ := ParseIPv4("192.168.1.1")
	targetIP, _ := ParseIPv4("192.168.1.2")

	if !buildARP(f, arpOpRequest, senderMAC, senderIP, targetMAC, targetIP) {
		t.Fatal("buildARP failed")
	}

	got, ok := parseARP(f.Bytes())
	if !ok {
		t.Fatal("parseARP rejected a frame this package built")
	}
	if got.op != arpOpRequest {
		t.Fatalf("op = %d, want %d", got.op, arpOpRequest)
	}
	if got.senderMAC != senderMAC || got.targetMAC != targetMAC {
		t.Fatal("MAC round trip mismatch")
	}
	if got.senderIP != senderIP || got.targetIP != targetIP {
		t.Fatal("IP round trip mismatch")
	}
}

func TestParseARPRejectsShortOrWrongType(t *testing.T) {
	if _, ok := parseARP(make([]byte, arpPacketLen-1)); ok {
		t.Fatal("expected rejection of a too-short buffer")
	}

	b := make([]byte, arpPacketLen)
	putUint16(b[0:2], 6) // wrong hardware type (not Ethernet)
	putUint16(b[2:4], arpPTypeIPv4)
	b[4], b[5] = 6, 4
	if _, ok := parseARP(b); ok {
		t.Fatal("expected rejection of a non-Ethernet hardware type")
	}
}

func TestParseARPAcceptsInverseOpcodes(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	mac := MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}
	ip, _ := ParseIPv4("10.0.0.1")
	buildARP(f, arpOpInverseRequest, mac, ip, MAC{}, IPv4Addr{})

	got, ok := parseARP(f.Bytes())
	if !ok || got.op != arpOpInverseRequest {
		t.Fatal("expected an Inverse ARP request to parse cleanly")
	}
}
