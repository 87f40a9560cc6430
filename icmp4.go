package netcore

//
// ICMPv4 (RFC 792). Only the subset the core needs: Echo Request/Reply
// (the "ping helper" itself is an external collaborator per spec.md
// §1, but a host that cannot answer pings is a poor integration-test
// citizen). No ICMPv4 error messages are generated.
//

const (
	icmp4TypeEchoReply   = 0
	icmp4TypeEchoRequest = 8
)

func icmp4Checksum(b []byte) uint16 {
	return finalizeChecksum(checksum(b, 0))
}

// icmp4Ingress handles an ICMPv4 message already stripped of its IPv4
// header. srcV4 is the IPv4 source of the datagram that carried it.
func icmp4Ingress(iface *Interface, frame *Frame, srcV4 IPv4Addr) {
	b := frame.Bytes()
	if len(b) < 8 {
		frame.Release()
		return
	}
	typ := b[0]
	if typ != icmp4TypeEchoRequest {
		frame.Release()
		return
	}

	reply := iface.stack.pool.AllocNoFail()
	if reply == nil {
		frame.Release()
		return
	}
	payload := append([]byte(nil), b[8:]...)
	hdr := reply.Prepend(8)
	if hdr == nil {
		reply.Release()
		frame.Release()
		return
	}
	hdr[0] = icmp4TypeEchoReply
	hdr[1] = 0
	putUint16(hdr[2:4], 0)
	copy(hdr[4:8], b[4:8]) // identifier + sequence
	reply.Append(payload)
	putUint16(reply.Bytes()[2:4], icmp4Checksum(reply.Bytes()))

	frame.Release()
	ipv4Egress(iface, reply, srcV4, ProtoICMP, false)
}

// icmp4BuildEchoRequest fills frame (at the ICMP payload offset) with
// an Echo Request carrying id/seq/payload, for use by a higher-level
// ping helper built on top of this engine.
func icmp4BuildEchoRequest(f *Frame, id, seq uint16, payload []byte) bool {
	if !f.Append(payload) {
		return false
	}
	hdr := f.Prepend(8)
	if hdr == nil {
		return false
	}
	hdr[0] = icmp4TypeEchoRequest
	hdr[1] = 0
	putUint16(hdr[2:4], 0)
	putUint16(hdr[4:6], id)
	putUint16(hdr[6:8], seq)
	putUint16(f.Bytes()[2:4], icmp4Checksum(f.Bytes()))
	return true
}
