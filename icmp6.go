package netcore

//
// ICMPv6 (RFC 4443), the transport for NDP (ndp.go, types 133-136)
// and MLD (mld.go, types 130-132), plus Echo Request/Reply.
//

const (
	icmp6TypeEchoRequest        = 128
	icmp6TypeEchoReply          = 129
	icmp6TypeMLDQuery           = 130
	icmp6TypeMLDReport          = 131
	icmp6TypeMLDDone            = 132
	icmp6TypeRouterSolicit      = 133
	icmp6TypeRouterAdvert       = 134
	icmp6TypeNeighborSolicit    = 135
	icmp6TypeNeighborAdvert     = 136
)

// icmp6Send builds an ICMPv6 message of the given type/code around
// body (which must leave room via its own Prepend calls for nothing
// further) and hands it to IPv6 egress with hop-limit hl.
func icmp6Send(iface *Interface, f *Frame, typ, code uint8, src, dst IPv6Addr, hl int) bool {
	hdr := f.Prepend(4)
	if hdr == nil {
		f.Release()
		return false
	}
	hdr[0] = typ
	hdr[1] = code
	putUint16(hdr[2:4], 0)

	pseudo := pseudoHeaderChecksumV6(transportProtoICMPv6, src, dst, f.Len())
	sum := finalizeChecksum(checksum(f.Bytes(), pseudo))
	putUint16(f.Bytes()[2:4], sum)

	return ipv6EgressHopLimit(iface, f, src, dst, ProtoICMPv6, hl)
}

// icmp6Ingress dispatches an inbound ICMPv6 message to NDP, MLD or
// Echo handling. hl is the IPv6 hop limit the datagram carried
// (several ICMPv6 message types require it to be 255 or 1).
func icmp6Ingress(iface *Interface, frame *Frame, srcV6, dstV6 IPv6Addr, hl int) {
	b := frame.Bytes()
	if len(b) < 4 {
		frame.Release()
		return
	}
	typ := b[0]

	switch typ {
	case icmp6TypeEchoRequest:
		icmp6EchoReply(iface, frame, srcV6, dstV6)
	case icmp6TypeRouterAdvert, icmp6TypeNeighborSolicit, icmp6TypeNeighborAdvert, icmp6TypeRouterSolicit:
		ndpIngress(iface, frame, srcV6, dstV6, hl, typ)
	case icmp6TypeMLDQuery, icmp6TypeMLDReport, icmp6TypeMLDDone:
		mldIngress(iface, frame, srcV6, dstV6, hl, typ)
	default:
		frame.Release()
	}
}

func icmp6EchoReply(iface *Interface, frame *Frame, srcV6, dstV6 IPv6Addr) {
	b := frame.Bytes()
	if len(b) < 8 {
		frame.Release()
		return
	}
	reply := iface.stack.pool.AllocNoFail()
	if reply == nil {
		frame.Release()
		return
	}
	payload := append([]byte(nil), b[8:]...)
	reply.Append(payload)
	idseq := reply.Prepend(4)
	copy(idseq, b[4:8])
	frame.Release()
	icmp6Send(iface, reply, icmp6TypeEchoReply, 0, dstV6, srcV6, 64)
}
