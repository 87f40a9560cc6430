package netcore

//
// Internet checksum. The ones'-complement running-sum algorithm
// (RFC 1071) used by IPv4, ICMPv4, ICMPv6, UDP and TCP is easy to get
// subtly wrong (byte-order of the final fold, odd-length padding,
// incremental-update semantics); gvisor's tcpip/header package — a
// dependency the teacher repo already carries for exactly this
// purpose, see gvisor.go's use of the same package — implements it
// once and is reused here instead of a bespoke copy. Header *layout*
// (field offsets) stays hand-written; see ethernet.go's header comment
// for why.
//

import (
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// checksum computes the RFC 1071 ones'-complement checksum of b,
// folded with the given initial value (0 for a standalone checksum,
// or a running total when combining several regions).
func checksum(b []byte, initial uint16) uint16 {
	return header.Checksum(b, initial)
}

// pseudoHeaderChecksumV4 returns the partial checksum of the IPv4
// pseudo-header for protocol proto between src and dst covering
// totalLen bytes of transport payload (header+data), to be folded
// together with the transport segment's own checksum.
func pseudoHeaderChecksumV4(proto tcpip.TransportProtocolNumber, src, dst IPv4Addr, totalLen int) uint16 {
	return header.PseudoHeaderChecksum(proto, tcpip.Address(src[:]), tcpip.Address(dst[:]), uint16(totalLen))
}

// pseudoHeaderChecksumV6 is the IPv6 analog of [pseudoHeaderChecksumV4].
func pseudoHeaderChecksumV6(proto tcpip.TransportProtocolNumber, src, dst IPv6Addr, totalLen int) uint16 {
	return header.PseudoHeaderChecksum(proto, tcpip.Address(src[:]), tcpip.Address(dst[:]), uint16(totalLen))
}

// finalizeChecksum folds a running checksum accumulator into its
// final ones'-complement form. gvisor's header.Checksum already
// returns a folded value when called with data, but transport
// protocols fold a pseudo-header partial sum computed separately, so
// this is exposed for that last step (the ^ is the "ones' complement"
// in "ones'-complement checksum").
func finalizeChecksum(partial uint16) uint16 {
	return ^partial
}
