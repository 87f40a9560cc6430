package netcore

//
// Core data model: logging and addressing primitives shared by every
// layer of the engine.
//

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Logger is the logger used throughout the engine. Embedders
// typically pass apex/log's global `log.Log`, which already
// satisfies this interface structurally.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// MAC is an IEEE 802 48-bit hardware address.
type MAC [6]byte

// String implements fmt.Stringer.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether m is the all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// IsBroadcast reports whether m is ff:ff:ff:ff:ff:ff.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsMulticast reports whether m has the group bit set.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

// EtherType values the engine classifies on ingress.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeIPv6 EtherType = 0x86DD
)

// IP protocol numbers (IANA "next header" values). Kept as local
// constants: the subset used here is small, stable, and reused for
// both the IPv4 protocol field and the IPv6 next-header field, so a
// dependency would buy nothing over naming six numbers once.
const (
	ProtoICMP     = 1
	ProtoIGMP     = 2
	ProtoTCP      = 6
	ProtoUDP      = 17
	ProtoIPv6Frag = 44
	ProtoICMPv6   = 58
)

// putUint16/getUint16/putUint32/getUint32 read and write big-endian
// wire fields; the hand-rolled header codecs in this package lean on
// these instead of spelling out encoding/binary at every field.
func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }

// clockNow is a replaceable time source. Nothing in the package reads
// it: the tick schedulers (timers.go) run on time.Ticker.
var clockNow = time.Now
