package netcore

//
// Ethernet II / 802.1Q framing (spec.md §6: "Ethernet II (14 B)
// optionally 802.1Q (18 B)"). Hand-rolled rather than built on
// gvisor's header.Ethernet: that type is designed to sit on top of
// gvisor's own stack.PacketBuffer/bufferv2 scatter-gather buffers (see
// DESIGN.md), whereas here it is four fixed-offset field reads/writes
// against our own [Frame]-backed []byte — exactly the kind of literal
// wire-layout code spec.md's Design Notes say should be written
// directly against a byte slice.
//

const (
	// EthernetHeaderLen is the size of an untagged Ethernet II header.
	EthernetHeaderLen = 14

	// VLANTagLen is the size of an inserted 802.1Q tag.
	VLANTagLen = 4

	// vlanTPID is the EtherType value that introduces an 802.1Q tag.
	vlanTPID = uint16(EtherTypeVLAN)
)

// ethernetHeader is the parsed result of [parseEthernet].
type ethernetHeader struct {
	Dst     MAC
	Src     MAC
	HasVLAN bool
	VLANID  uint16
	VLANPCP uint8
	Type    EtherType
	HdrLen  int
}

// parseEthernet decodes the Ethernet (and, if present, 802.1Q) header
// at the front of buf. It returns ok=false if buf is shorter than a
// minimal header.
func parseEthernet(buf []byte) (ethernetHeader, bool) {
	var h ethernetHeader
	if len(buf) < EthernetHeaderLen {
		return h, false
	}
	copy(h.Dst[:], buf[0:6])
	copy(h.Src[:], buf[6:12])
	etype := EtherType(getUint16(buf[12:14]))
	if etype == EtherTypeVLAN {
		if len(buf) < EthernetHeaderLen+VLANTagLen {
			return h, false
		}
		tci := getUint16(buf[14:16])
		h.HasVLAN = true
		h.VLANID = tci & 0x0fff
		h.VLANPCP = uint8(tci >> 13)
		h.Type = EtherType(getUint16(buf[16:18]))
		h.HdrLen = EthernetHeaderLen + VLANTagLen
	} else {
		h.Type = etype
		h.HdrLen = EthernetHeaderLen
	}
	return h, true
}

// prependEthernet builds an Ethernet header (tagged with vlanID if
// nonzero) in front of f's current contents.
func prependEthernet(f *Frame, dst, src MAC, vlanID uint16, etype EtherType) bool {
	if vlanID != 0 {
		hdr := f.Prepend(EthernetHeaderLen + VLANTagLen)
		if hdr == nil {
			return false
		}
		copy(hdr[0:6], dst[:])
		copy(hdr[6:12], src[:])
		putUint16(hdr[12:14], vlanTPID)
		putUint16(hdr[14:16], vlanID&0x0fff)
		putUint16(hdr[16:18], uint16(etype))
		return true
	}
	hdr := f.Prepend(EthernetHeaderLen)
	if hdr == nil {
		return false
	}
	copy(hdr[0:6], dst[:])
	copy(hdr[6:12], src[:])
	putUint16(hdr[12:14], uint16(etype))
	return true
}
