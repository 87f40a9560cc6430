package netcore

import "testing"

func TestIGMPGroupAllowed(t *testing.T) {
	mustParse := func(s string) IPv4Addr {
		a, err := ParseIPv4(s)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	if igmpGroupAllowed(mustParse("192.168.1.1")) {
		t.Fatal("a non-multicast address must not be a joinable group")
	}
	if igmpGroupAllowed(mustParse("224.0.0.1")) {
		t.Fatal("224.0.0.0/24 is reserved for link-local protocols and must be rejected")
	}
	if igmpGroupAllowed(mustParse("224.0.0.251")) {
		t.Fatal("mDNS's 224.0.0.251 still falls in the reserved /24 and must be rejected")
	}
	if !igmpGroupAllowed(mustParse("224.0.1.1")) {
		t.Fatal("224.0.1.1 is outside the reserved /24 and should be a joinable group")
	}
	if !igmpGroupAllowed(mustParse("239.1.2.3")) {
		t.Fatal("administratively scoped 239.1.2.3 should be joinable")
	}
}

func TestIGMPChecksum(t *testing.T) {
	b := []byte{0x11, 0x0a, 0x00, 0x00, 224, 0, 0, 1}
	putUint16(b[2:4], igmpChecksum(b))

	// RFC 1071: once the computed checksum is filled into the buffer,
	// re-running the same (inverting) checksum function over the whole
	// buffer must fold to zero.
	sum := igmpChecksum(b)
	if sum != 0 {
		t.Fatalf("checksum of a self-consistent buffer = %#x, want 0", sum)
	}
}
