package netcore

//
// IPv6 (RFC 8200), spec.md §4.6. Header layout is hand-rolled (see
// checksum.go's note on why); the only extension header this engine
// generates or parses is the Fragment header (RFC 8200 §4.5),
// handled in ipv6_frag.go.
//

const ipv6HeaderLen = 40

type ipv6Header struct {
	payloadLen int
	nextHeader uint8
	hopLimit   uint8
	src, dst   IPv6Addr
}

func parseIPv6(b []byte) (ipv6Header, bool) {
	var h ipv6Header
	if len(b) < ipv6HeaderLen {
		return h, false
	}
	if b[0]>>4 != 6 {
		return h, false
	}
	h.payloadLen = int(getUint16(b[4:6]))
	h.nextHeader = b[6]
	h.hopLimit = b[7]
	copy(h.src[:], b[8:24])
	copy(h.dst[:], b[24:40])
	return h, true
}

// ipv6Ingress validates and dispatches an inbound IPv6 datagram
// (Ethernet header already stripped by iface.handleFrame).
func ipv6Ingress(iface *Interface, frame *Frame) {
	b := frame.Bytes()
	h, ok := parseIPv6(b)
	if !ok || ipv6HeaderLen+h.payloadLen > len(b) {
		frame.Release()
		return
	}
	if h.src.IsMulticast() {
		frame.Release()
		return
	}
	if h.src.IsLoopback() && !h.dst.IsLoopback() {
		frame.Release()
		return
	}

	if !ipv6AcceptsDestination(iface, h.dst) {
		frame.Release()
		return
	}

	frame.Truncate(ipv6HeaderLen + h.payloadLen)
	frame.Consume(ipv6HeaderLen)

	nextHeader := h.nextHeader
	for nextHeader == ProtoIPv6Frag {
		payload, proto, hl, done := iface.stack.ipv6Reassemble(h, frame.Bytes())
		frame.Release()
		if !done {
			return
		}
		reassembled := iface.stack.pool.AllocNoFail()
		if reassembled == nil {
			return
		}
		reassembled.Append(payload)
		ipv6Dispatch(iface, reassembled, h.src, h.dst, proto, hl)
		return
	}

	ipv6Dispatch(iface, frame, h.src, h.dst, nextHeader, int(h.hopLimit))
}

func ipv6AcceptsDestination(iface *Interface, dst IPv6Addr) bool {
	if iface.ownsAddress(dst) {
		return true
	}
	if !dst.IsMulticast() {
		return false
	}
	if dst == IPv6AllNodes || dst == IPv6AllRouters {
		return true
	}
	iface.mu.Lock()
	ll := iface.v6.linkLocal
	hasTemp := iface.v6.hasTemp
	tmp := iface.v6.tempAddr
	iface.mu.Unlock()
	if dst == ll.SolicitedNode() || (hasTemp && dst == tmp.SolicitedNode()) {
		return true
	}
	if iface.mld != nil {
		iface.mld.mu.Lock()
		_, joined := iface.mld.groups[dst]
		iface.mld.mu.Unlock()
		return joined
	}
	return false
}

func ipv6Dispatch(iface *Interface, frame *Frame, src, dst IPv6Addr, proto uint8, hl int) {
	switch proto {
	case ProtoICMPv6:
		icmp6Ingress(iface, frame, src, dst, hl)
	case ProtoUDP:
		udp6Ingress(iface, frame, src, dst)
	case ProtoTCP:
		tcpIngress6(iface, frame, src, dst)
	default:
		frame.Release()
	}
}

// ipv6Egress is [ipv6EgressHopLimit] with the default unicast hop
// limit of 64.
func ipv6Egress(iface *Interface, payload *Frame, src, dst IPv6Addr, proto uint8) bool {
	return ipv6EgressHopLimit(iface, payload, src, dst, proto, 64)
}

// ipv6EgressHopLimit builds a 40-byte IPv6 header around payload
// (already positioned at its protocol payload), fragmenting with a
// Fragment extension header if it exceeds the interface MTU.
func ipv6EgressHopLimit(iface *Interface, payload *Frame, src, dst IPv6Addr, proto uint8, hl int) bool {
	protoPayload := append([]byte(nil), payload.Bytes()...)
	payload.Release()

	mtu := iface.mtu
	if len(protoPayload)+ipv6HeaderLen <= mtu {
		f := iface.stack.pool.AllocNoFail()
		if f == nil {
			return false
		}
		f.Append(protoPayload)
		if !buildIPv6Header(f, proto, uint8(hl), src, dst) {
			f.Release()
			return false
		}
		return iface.sendFrame(f, 6, IPv4Addr{}, dst)
	}

	id := iface.nextIPv6ID()
	chunkSize := ((mtu - ipv6HeaderLen - 8) / 8) * 8
	if chunkSize <= 0 {
		return false
	}
	ok := true
	for offset := 0; offset < len(protoPayload); offset += chunkSize {
		end := offset + chunkSize
		more := true
		if end >= len(protoPayload) {
			end = len(protoPayload)
			more = false
		}
		f := iface.stack.pool.AllocNoFail()
		if f == nil {
			ok = false
			break
		}
		f.Append(protoPayload[offset:end])
		if !buildIPv6FragmentHeader(f, proto, offset, more, id) {
			f.Release()
			ok = false
			break
		}
		if !buildIPv6Header(f, ProtoIPv6Frag, uint8(hl), src, dst) {
			f.Release()
			ok = false
			break
		}
		if !iface.sendFrame(f, 6, IPv4Addr{}, dst) {
			ok = false
		}
	}
	return ok
}

func buildIPv6Header(f *Frame, nextHeader uint8, hopLimit uint8, src, dst IPv6Addr) bool {
	hdr := f.Prepend(ipv6HeaderLen)
	if hdr == nil {
		return false
	}
	hdr[0] = 6 << 4
	hdr[1], hdr[2], hdr[3] = 0, 0, 0
	putUint16(hdr[4:6], uint16(f.Len()-ipv6HeaderLen))
	hdr[6] = nextHeader
	hdr[7] = hopLimit
	copy(hdr[8:24], src[:])
	copy(hdr[24:40], dst[:])
	return true
}

func (iface *Interface) nextIPv6ID() uint32 {
	return iface.stack.randUint32()
}
