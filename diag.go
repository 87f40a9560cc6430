package netcore

//
// Frame diagnostics: a gopacket-based summarizer used for debug
// logging, adapted from the teacher's dissect.go. The teacher
// dissects raw IPv4/IPv6 packets handed to it by a gvisor UNetStack;
// here the unit crossing the wire is a full Ethernet frame, so
// dissection starts one layer lower.
//

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrDiagShortFrame indicates the frame is too short to contain even
// an Ethernet header.
var ErrDiagShortFrame = errors.New("netcore: diag: frame too short")

// FrameSummary is a best-effort, logging-oriented decode of one
// Ethernet frame. Fields are nil when the corresponding layer is
// absent or unrecognized. Only a frame shorter than an Ethernet header
// is an error ([ErrDiagShortFrame]); any longer but unintelligible
// frame comes back with an empty summary rather than an error.
type FrameSummary struct {
	Packet gopacket.Packet
	Eth    *layers.Ethernet
	Dot1Q  *layers.Dot1Q
	IP     gopacket.NetworkLayer
	TCP    *layers.TCP
	UDP    *layers.UDP
	ARP    *layers.ARP
	ICMPv4 *layers.ICMPv4
	ICMPv6 *layers.ICMPv6
}

// SummarizeFrame decodes raw for diagnostic logging. It never returns
// an error for frames the engine itself already accepted onto the
// wire; [ErrDiagShortFrame] only fires for clearly truncated input,
// e.g. a corrupted capture fed back in from a test.
func SummarizeFrame(raw []byte) (*FrameSummary, error) {
	if len(raw) < EthernetHeaderLen {
		return nil, ErrDiagShortFrame
	}
	fs := &FrameSummary{
		Packet: gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.Lazy),
	}
	if l := fs.Packet.Layer(layers.LayerTypeEthernet); l != nil {
		fs.Eth = l.(*layers.Ethernet)
	}
	if l := fs.Packet.Layer(layers.LayerTypeDot1Q); l != nil {
		fs.Dot1Q = l.(*layers.Dot1Q)
	}
	if l := fs.Packet.Layer(layers.LayerTypeARP); l != nil {
		fs.ARP = l.(*layers.ARP)
	}
	if l := fs.Packet.Layer(layers.LayerTypeIPv4); l != nil {
		fs.IP = l.(*layers.IPv4)
	} else if l := fs.Packet.Layer(layers.LayerTypeIPv6); l != nil {
		fs.IP = l.(*layers.IPv6)
	}
	if l := fs.Packet.Layer(layers.LayerTypeTCP); l != nil {
		fs.TCP = l.(*layers.TCP)
	}
	if l := fs.Packet.Layer(layers.LayerTypeUDP); l != nil {
		fs.UDP = l.(*layers.UDP)
	}
	if l := fs.Packet.Layer(layers.LayerTypeICMPv4); l != nil {
		fs.ICMPv4 = l.(*layers.ICMPv4)
	}
	if l := fs.Packet.Layer(layers.LayerTypeICMPv6); l != nil {
		fs.ICMPv6 = l.(*layers.ICMPv6)
	}
	return fs, nil
}

// String renders a one-line summary suitable for [Logger.Debugf],
// mirroring the terse "srcIP:srcPort -> dstIP:dstPort proto" style the
// teacher's own log lines use around dissected packets.
func (fs *FrameSummary) String() string {
	if fs.IP == nil {
		if fs.ARP != nil {
			return fmt.Sprintf("arp op=%d %v -> %v", fs.ARP.Operation, fs.ARP.SourceProtAddress, fs.ARP.DstProtAddress)
		}
		return "non-IP frame"
	}
	src, dst := fs.IP.NetworkFlow().Endpoints()
	switch {
	case fs.TCP != nil:
		return fmt.Sprintf("tcp %v:%d -> %v:%d flags=%s seq=%d ack=%d", src, fs.TCP.SrcPort, dst, fs.TCP.DstPort, tcpFlagSummary(fs.TCP), fs.TCP.Seq, fs.TCP.Ack)
	case fs.UDP != nil:
		return fmt.Sprintf("udp %v:%d -> %v:%d", src, fs.UDP.SrcPort, dst, fs.UDP.DstPort)
	case fs.ICMPv4 != nil:
		return fmt.Sprintf("icmpv4 %v -> %v type=%d code=%d", src, dst, fs.ICMPv4.TypeCode.Type(), fs.ICMPv4.TypeCode.Code())
	case fs.ICMPv6 != nil:
		return fmt.Sprintf("icmpv6 %v -> %v type=%d code=%d", src, dst, fs.ICMPv6.TypeCode.Type(), fs.ICMPv6.TypeCode.Code())
	default:
		return fmt.Sprintf("ip %v -> %v", src, dst)
	}
}

func tcpFlagSummary(t *layers.TCP) string {
	var b []byte
	if t.SYN {
		b = append(b, 'S')
	}
	if t.ACK {
		b = append(b, 'A')
	}
	if t.FIN {
		b = append(b, 'F')
	}
	if t.RST {
		b = append(b, 'R')
	}
	if t.PSH {
		b = append(b, 'P')
	}
	if len(b) == 0 {
		return "-"
	}
	return string(b)
}
