package netcore

//
// Minimal UDP framing. A general-purpose UDP socket API is out of
// scope (spec.md Non-goals); the only in-scope UDP consumer is the
// DHCPv4 client (dhcp.go), which needs to send and receive
// unconnected datagrams to/from port 67/68 before it has an address.
//

const udpHeaderLen = 8

func buildUDP(f *Frame, srcPort, dstPort uint16) {
	hdr := f.Prepend(udpHeaderLen)
	putUint16(hdr[0:2], srcPort)
	putUint16(hdr[2:4], dstPort)
	putUint16(hdr[4:6], uint16(f.Len()))
	putUint16(hdr[6:8], 0)
}

// udp4Send wraps f (positioned at its application payload) in a UDP
// header and hands it to IPv4 egress with the DF bit clear (only TCP
// sets DF).
func udp4Send(iface *Interface, f *Frame, srcPort, dstPort uint16, dst IPv4Addr) bool {
	buildUDP(f, srcPort, dstPort)
	src := iface.v4.address
	pseudo := pseudoHeaderChecksumV4(transportProtoUDP, src, dst, f.Len())
	sum := finalizeChecksum(checksum(f.Bytes(), pseudo))
	if sum == 0 {
		sum = 0xffff // RFC 768: a computed zero is transmitted as all-ones
	}
	putUint16(f.Bytes()[6:8], sum)
	return ipv4Egress(iface, f, dst, ProtoUDP, false)
}

func udp4Ingress(iface *Interface, frame *Frame, src, dst IPv4Addr) {
	defer frame.Release()
	b := frame.Bytes()
	if len(b) < udpHeaderLen {
		return
	}
	srcPort := getUint16(b[0:2])
	dstPort := getUint16(b[2:4])
	payload := b[udpHeaderLen:]

	if dstPort == dhcpClientPort && iface.dhcp != nil {
		iface.dhcp.process(payload, src, srcPort)
	}
}

// udp6Ingress has no in-scope consumer (spec.md relies on SLAAC, not
// DHCPv6, for IPv6 configuration); inbound UDP/IPv6 is simply dropped.
func udp6Ingress(iface *Interface, frame *Frame, src, dst IPv6Addr) {
	frame.Release()
}
