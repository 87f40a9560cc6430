package netcore

//
// Mapping from the local IANA protocol-number constants (model.go)
// to gvisor's tcpip.TransportProtocolNumber, used only where the
// pseudo-header checksum helper in checksum.go needs gvisor's type.
//

import "gvisor.dev/gvisor/pkg/tcpip/header"

var (
	transportProtoTCP    = header.TCPProtocolNumber
	transportProtoUDP    = header.UDPProtocolNumber
	transportProtoICMPv4 = header.ICMPv4ProtocolNumber
	transportProtoICMPv6 = header.ICMPv6ProtocolNumber
)
