package netcore

import "testing"

func TestIPv4AddrRoundTrip(t *testing.T) {
	cases := []string{"0.0.0.0", "127.0.0.1", "192.168.1.1", "255.255.255.255"}
	for _, s := range cases {
		a, err := ParseIPv4(s)
		if err != nil {
			t.Fatalf("ParseIPv4(%q): %v", s, err)
		}
		if got := a.String(); got != s {
			t.Fatalf("round trip: got %q, want %q", got, s)
		}
	}
}

func TestIPv4AddrParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "1.2.3", "1.2.3.4.5", "1.2.3.256", "a.b.c.d"} {
		if _, err := ParseIPv4(s); err == nil {
			t.Fatalf("ParseIPv4(%q): expected error", s)
		}
	}
}

func TestIPv6AddrRoundTripCanonical(t *testing.T) {
	cases := map[string]string{
		"::":                     "::",
		"::1":                    "::1",
		"fe80::1":                "fe80::1",
		"2001:db8::1":            "2001:db8::1",
		"2001:0db8:0000:0000:0000:0000:0000:0001": "2001:db8::1",
		"ff02::1:ff00:0":         "ff02::1:ff00:0",
	}
	for in, want := range cases {
		a, err := ParseIPv6(in)
		if err != nil {
			t.Fatalf("ParseIPv6(%q): %v", in, err)
		}
		if got := a.String(); got != want {
			t.Fatalf("ParseIPv6(%q).String() = %q, want %q", in, got, want)
		}
	}
}

func TestIPv6CanonicalPrefersLeftmostLongestZeroRun(t *testing.T) {
	// RFC 5952 §4.2.3: two equal-length zero runs -> compress the leftmost.
	a, err := ParseIPv6("2001:0:0:1:0:0:1:1")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := a.String(), "2001::1:0:0:1:1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIPv4ClassPredicates(t *testing.T) {
	mustParse := func(s string) IPv4Addr {
		a, err := ParseIPv4(s)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}
	if !mustParse("224.0.0.1").IsMulticast() {
		t.Fatal("224.0.0.1 should be multicast")
	}
	if mustParse("192.168.1.1").IsMulticast() {
		t.Fatal("192.168.1.1 should not be multicast")
	}
	if mustParse("192.168.1.1").IsValidUnicast4() == false {
		t.Fatal("192.168.1.1 should be a valid unicast address")
	}
	for _, s := range []string{"0.0.0.0", "255.255.255.255", "224.0.0.1"} {
		if mustParse(s).IsValidUnicast4() {
			t.Fatalf("%s should not be a valid unicast address", s)
		}
	}
}

func TestIPv6LinkLocalAndMulticast(t *testing.T) {
	ll, err := ParseIPv6("fe80::1")
	if err != nil {
		t.Fatal(err)
	}
	if !ll.IsLinkLocal6() {
		t.Fatal("fe80::1 should be link-local")
	}
	mc, err := ParseIPv6("ff02::1")
	if err != nil {
		t.Fatal(err)
	}
	if !mc.IsMulticast() {
		t.Fatal("ff02::1 should be multicast")
	}
	if mc.IsValidUnicast6() {
		t.Fatal("ff02::1 should not be a valid unicast address")
	}
}

func TestSubnetBroadcastAndSameSubnet(t *testing.T) {
	addr, _ := ParseIPv4("192.168.1.10")
	mask, _ := ParseIPv4("255.255.255.0")
	bcast, _ := ParseIPv4("192.168.1.255")
	if got := addr.SubnetBroadcast(mask); got != bcast {
		t.Fatalf("SubnetBroadcast = %v, want %v", got, bcast)
	}
	other, _ := ParseIPv4("192.168.1.20")
	if !addr.SameSubnet(other, mask) {
		t.Fatal("expected same subnet")
	}
	outside, _ := ParseIPv4("192.168.2.20")
	if addr.SameSubnet(outside, mask) {
		t.Fatal("expected different subnet")
	}
}

func TestEUI64AndLinkLocalFromMAC(t *testing.T) {
	mac := MAC{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
	ll := LinkLocalFromMAC(mac)
	if !ll.IsLinkLocal6() {
		t.Fatal("derived address should be link-local")
	}
	// universal/local bit flips, ff:fe inserted at byte 3/4 of the IID.
	if ll[8] != mac[0]^0x02 {
		t.Fatalf("unexpected IID first byte: %#x", ll[8])
	}
	if ll[11] != 0xff || ll[12] != 0xfe {
		t.Fatal("missing ff:fe EUI-64 marker")
	}
}

func TestSolicitedNodeAddress(t *testing.T) {
	a, _ := ParseIPv6("2001:db8::1:2:aabb")
	sn := a.SolicitedNode()
	want, _ := ParseIPv6("ff02::1:ff02:aabb")
	if sn != want {
		t.Fatalf("SolicitedNode() = %v, want %v", sn, want)
	}
}

func TestMulticastMACDerivation(t *testing.T) {
	a4, _ := ParseIPv4("224.1.2.3")
	wantMAC4 := MAC{0x01, 0x00, 0x5e, 0x01, 0x02, 0x03}
	if got := a4.MulticastMAC(); got != wantMAC4 {
		t.Fatalf("IPv4 MulticastMAC = %v, want %v", got, wantMAC4)
	}

	a6, _ := ParseIPv6("ff02::1:2:3")
	wantMAC6 := MAC{0x33, 0x33, 0x00, 0x02, 0x00, 0x03}
	if got := a6.MulticastMAC(); got != wantMAC6 {
		t.Fatalf("IPv6 MulticastMAC = %v, want %v", got, wantMAC6)
	}
}
