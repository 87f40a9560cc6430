package netcore

import "testing"

func TestEthernetBuildParseRoundTripUntagged(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	dst := MAC{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	src := MAC{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	f.Append([]byte("payload"))
	if !prependEthernet(f, dst, src, 0, EtherTypeIPv4) {
		t.Fatal("prependEthernet failed")
	}

	h, ok := parseEthernet(f.Bytes())
	if !ok {
		t.Fatal("parseEthernet rejected a frame this package built")
	}
	if h.HasVLAN {
		t.Fatal("untagged frame should not report HasVLAN")
	}
	if h.Dst != dst || h.Src != src {
		t.Fatal("MAC round trip mismatch")
	}
	if h.Type != EtherTypeIPv4 {
		t.Fatalf("Type = %v, want %v", h.Type, EtherTypeIPv4)
	}
	if h.HdrLen != EthernetHeaderLen {
		t.Fatalf("HdrLen = %d, want %d", h.HdrLen, EthernetHeaderLen)
	}
}

func TestEthernetBuildParseRoundTripVLANTagged(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	dst := MAC{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	src := MAC{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	f.Append([]byte("payload"))
	if !prependEthernet(f, dst, src, 42, EtherTypeIPv6) {
		t.Fatal("prependEthernet failed")
	}

	h, ok := parseEthernet(f.Bytes())
	if !ok {
		t.Fatal("parseEthernet rejected a VLAN-tagged frame this package built")
	}
	if !h.HasVLAN {
		t.Fatal("expected HasVLAN")
	}
	if h.VLANID != 42 {
		t.Fatalf("VLANID = %d, want 42", h.VLANID)
	}
	if h.Type != EtherTypeIPv6 {
		t.Fatalf("Type = %v, want %v", h.Type, EtherTypeIPv6)
	}
	if h.HdrLen != EthernetHeaderLen+VLANTagLen {
		t.Fatalf("HdrLen = %d, want %d", h.HdrLen, EthernetHeaderLen+VLANTagLen)
	}
}

func TestParseEthernetRejectsShortBuffer(t *testing.T) {
	if _, ok := parseEthernet(make([]byte, EthernetHeaderLen-1)); ok {
		t.Fatal("expected rejection of a too-short buffer")
	}
}

func TestParseEthernetRejectsTruncatedVLANTag(t *testing.T) {
	buf := make([]byte, EthernetHeaderLen+2) // claims VLAN but tag is incomplete
	putUint16(buf[12:14], uint16(EtherTypeVLAN))
	if _, ok := parseEthernet(buf); ok {
		t.Fatal("expected rejection of a truncated VLAN tag")
	}
}
