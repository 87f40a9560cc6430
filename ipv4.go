package netcore

//
// IPv4 (RFC 791), spec.md §4.5. Header layout is hand-rolled (see
// checksum.go); header/pseudo-header checksums reuse gvisor's
// header.Checksum via checksum.go.
//

const ipv4HeaderLen = 20
const ipv4RouterAlertOptLen = 4

const (
	ipv4FlagDF = 0x4000
	ipv4FlagMF = 0x2000
)

type ipv4Header struct {
	ihl      int
	totalLen int
	id       uint16
	flags    uint16
	fragOff  int
	ttl      uint8
	proto    uint8
	src, dst IPv4Addr
	hdrLen   int
}

func parseIPv4(b []byte) (ipv4Header, bool) {
	var h ipv4Header
	if len(b) < ipv4HeaderLen {
		return h, false
	}
	if b[0]>>4 != 4 {
		return h, false
	}
	h.ihl = int(b[0]&0x0f) * 4
	if h.ihl < ipv4HeaderLen || h.ihl > len(b) {
		return h, false
	}
	h.totalLen = int(getUint16(b[2:4]))
	h.id = getUint16(b[4:6])
	flagsOff := getUint16(b[6:8])
	h.flags = flagsOff & 0xe000
	h.fragOff = int(flagsOff&0x1fff) * 8
	h.ttl = b[8]
	h.proto = b[9]
	copy(h.src[:], b[12:16])
	copy(h.dst[:], b[16:20])
	h.hdrLen = h.ihl
	return h, true
}

// ipv4Ingress validates and dispatches an inbound IPv4 datagram
// (Ethernet header already stripped by iface.handleFrame).
func ipv4Ingress(iface *Interface, frame *Frame) {
	b := frame.Bytes()
	h, ok := parseIPv4(b)
	if !ok || h.totalLen == 0 || h.totalLen > len(b) {
		frame.Release()
		return
	}
	if !h.src.IsValidUnicast4() || h.src.IsLoopback() || h.src == iface.v4.address.SubnetBroadcast(iface.v4.netmask) || h.src == h.dst {
		frame.Release()
		return
	}
	if !iface.caps.Has(CapRxChecksumIPv4) {
		if checksum(b[:h.ihl], 0) != 0xffff {
			frame.Release()
			return
		}
	}

	if h.flags&ipv4FlagDF != 0 && (h.flags&ipv4FlagMF != 0 || h.fragOff != 0) {
		frame.Release()
		return
	}

	ours := h.dst == iface.v4.address
	broadcast := h.dst.IsBroadcast()
	subnetBcast := h.dst == iface.v4.address.SubnetBroadcast(iface.v4.netmask)
	multicastJoined := h.dst.IsMulticast() && iface.igmp != nil
	llBroadcast := h.dst == IPv4Broadcast // DHCP before address assignment, RFC 2131 §4.1

	switch {
	case ours, broadcast, llBroadcast:
	case subnetBcast && h.proto == ProtoUDP:
	case multicastJoined && (h.proto == ProtoIGMP || h.proto == ProtoUDP):
	default:
		frame.Release()
		return
	}

	frame.Truncate(h.totalLen)
	frame.Consume(h.hdrLen)

	if h.flags&ipv4FlagMF != 0 || h.fragOff != 0 {
		payload, proto, done := iface.stack.ipv4Reassemble(h, frame.Bytes())
		frame.Release()
		if !done {
			return
		}
		reassembled := iface.stack.pool.AllocNoFail()
		if reassembled == nil {
			return
		}
		reassembled.Append(payload)
		ipv4Dispatch(iface, reassembled, h.src, h.dst, proto)
		return
	}

	ipv4Dispatch(iface, frame, h.src, h.dst, h.proto)
}

func ipv4Dispatch(iface *Interface, frame *Frame, src, dst IPv4Addr, proto uint8) {
	switch proto {
	case ProtoICMP:
		icmp4Ingress(iface, frame, src)
	case ProtoIGMP:
		iface.igmp.process(frame, dst)
	case ProtoUDP:
		udp4Ingress(iface, frame, src, dst)
	case ProtoTCP:
		tcpIngress4(iface, frame, src, dst)
	default:
		frame.Release()
	}
}

// ipv4Egress builds a 20-byte IPv4 header around payload (already
// positioned at its protocol payload) and hands it to the interface,
// fragmenting if it exceeds the interface MTU.
func ipv4Egress(iface *Interface, payload *Frame, dst IPv4Addr, proto uint8, setDF bool) bool {
	return ipv4EgressOpts(iface, payload, dst, proto, setDF, 64, 0)
}

// ipv4EgressIGMP is [ipv4Egress] with hop-limit 1 and, when
// routerAlert is set, the 4-byte IP Router Alert option IGMPv2
// requires (spec.md §4.4).
func ipv4EgressIGMP(iface *Interface, payload *Frame, dst IPv4Addr, routerAlert bool) bool {
	optLen := 0
	if routerAlert {
		optLen = ipv4RouterAlertOptLen
	}
	return ipv4EgressOpts(iface, payload, dst, ProtoIGMP, false, 1, optLen)
}

func ipv4EgressOpts(iface *Interface, payload *Frame, dst IPv4Addr, proto uint8, setDF bool, ttl uint8, optLen int) bool {
	src := iface.v4.address
	protoPayload := append([]byte(nil), payload.Bytes()...)
	payload.Release()

	mtu := iface.mtu
	if len(protoPayload)+ipv4HeaderLen+optLen <= mtu {
		f := iface.stack.pool.AllocNoFail()
		if f == nil {
			return false
		}
		f.Append(protoPayload)
		id := iface.nextIPv4ID()
		flags := uint16(0)
		if setDF {
			flags = ipv4FlagDF
		}
		if !buildIPv4Header(f, id, flags, 0, ttl, proto, src, dst, optLen) {
			f.Release()
			return false
		}
		return iface.sendFrame(f, 4, dst, IPv6Addr{})
	}

	if setDF {
		return false // cannot fragment a DF datagram
	}

	id := iface.nextIPv4ID()
	chunkSize := ((mtu - ipv4HeaderLen - optLen) / 8) * 8
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
		flags := uint16(0)
		if more {
			flags = ipv4FlagMF
		}
		if !buildIPv4Header(f, id, flags, offset, ttl, proto, src, dst, 0) {
			f.Release()
			ok = false
			break
		}
		if !iface.sendFrame(f, 4, dst, IPv6Addr{}) {
			ok = false
		}
	}
	return ok
}

func buildIPv4Header(f *Frame, id uint16, flags uint16, fragOffset int, ttl uint8, proto uint8, src, dst IPv4Addr, optLen int) bool {
	hdrLen := ipv4HeaderLen + optLen
	hdr := f.Prepend(hdrLen)
	if hdr == nil {
		return false
	}
	hdr[0] = byte(4<<4) | byte(hdrLen/4)
	hdr[1] = 0
	putUint16(hdr[2:4], uint16(f.Len()))
	putUint16(hdr[4:6], id)
	putUint16(hdr[6:8], flags|uint16(fragOffset/8))
	hdr[8] = ttl
	hdr[9] = proto
	putUint16(hdr[10:12], 0)
	copy(hdr[12:16], src[:])
	copy(hdr[16:20], dst[:])
	if optLen == ipv4RouterAlertOptLen {
		hdr[20] = 148 // IP Router Alert option type
		hdr[21] = 4
		putUint16(hdr[22:24], 0)
	}
	putUint16(hdr[10:12], finalizeChecksum(checksum(hdr[:hdrLen], 0)))
	return true
}

func (iface *Interface) nextIPv4ID() uint16 {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	iface.v4.idCounter++
	return iface.v4.idCounter
}

// routeIPv4 picks an egress interface for dst per spec.md §4.5:
// loopback for 127/8, the default interface for global broadcast,
// otherwise the first on-link match, falling back to the default
// interface.
func (s *Stack) routeIPv4(dst IPv4Addr) *Interface {
	if dst.IsLoopback() {
		if lo := s.loopbackInterface(); lo != nil {
			return lo
		}
	}
	if dst.IsBroadcast() {
		return s.defaultInterface()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iface := range s.ifaces {
		if iface.IsOnLink4(dst) {
			return iface
		}
	}
	if len(s.ifaces) > 0 {
		return s.ifaces[0]
	}
	return nil
}
