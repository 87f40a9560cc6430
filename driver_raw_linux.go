//go:build linux

package netcore

//
// RawLinuxDriver: a real AF_PACKET Ethernet driver, the engine's one
// concrete non-mock [Driver] implementation (SPEC_FULL §3), grounded
// on the pack's raw-socket examples (cezamee-Yoda's go.mod pulls in
// golang.org/x/sys, and other_examples/9fe95334's Linux raw-socket
// file shows the same unix.Socket/unix.Bind/SockaddrLinklayer shape
// applied to a different protocol family).
//

import (
	"encoding/binary"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// htons converts a host-order uint16 to network order, as every
// AF_PACKET caller must for the sll_protocol/protocol argument.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

// RawLinuxDriver is a [Driver] backed by an AF_PACKET SOCK_RAW socket
// bound to one network interface. It has no offload capabilities:
// GetCapabilities always returns zero, so the engine computes and
// verifies every checksum itself.
type RawLinuxDriver struct {
	mu     sync.Mutex
	fd     int
	ifName string
	mac    MAC
	link   LinkState

	eventCB func(DriverEvent)
	closed  bool
	stopCh  chan struct{}
}

var _ Driver = &RawLinuxDriver{}

// NewRawLinuxDriver opens an AF_PACKET socket bound to ifName and
// reads its hardware MAC address.
func NewRawLinuxDriver(ifName string) (*RawLinuxDriver, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, newError(KindDriverError, "raw_linux.socket", err)
	}
	iface, err := netInterfaceByName(ifName)
	if err != nil {
		unix.Close(fd)
		return nil, newError(KindDriverError, "raw_linux.interface", err)
	}
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, newError(KindDriverError, "raw_linux.bind", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, newError(KindDriverError, "raw_linux.nonblock", err)
	}
	return &RawLinuxDriver{
		fd:     fd,
		ifName: ifName,
		mac:    iface.mac,
		link:   LinkState{Up: iface.up, Speed: 1000, FullDx: true},
		stopCh: make(chan struct{}),
	}, nil
}

// Initialize implements Driver. The raw socket has no interrupt path,
// so RX readiness is polled by [Interface]'s worker rather than
// pushed through eventCB; it is still stored so a future epoll-backed
// variant can wire it in without changing the Driver contract.
func (d *RawLinuxDriver) Initialize(eventCB func(DriverEvent)) error {
	d.mu.Lock()
	d.eventCB = eventCB
	d.mu.Unlock()
	return nil
}

// PowerControl implements Driver; a raw socket has no power state of
// its own, this is a no-op.
func (d *RawLinuxDriver) PowerControl(on bool) error { return nil }

// GetCapabilities implements Driver: no hardware offload through a
// raw socket.
func (d *RawLinuxDriver) GetCapabilities() Capabilities { return 0 }

// SetMACAddress implements Driver. AF_PACKET sockets do not let an
// unprivileged process reprogram the adapter's hardware address; this
// returns a driver error rather than silently ignoring the request.
func (d *RawLinuxDriver) SetMACAddress(mac MAC) error {
	return newError(KindDriverError, "raw_linux.set_mac", nil)
}

// GetMACAddress implements Driver.
func (d *RawLinuxDriver) GetMACAddress() MAC {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mac
}

// Control implements Driver; control-plane knobs (VLAN filter, RX/TX
// on/off) have no AF_PACKET equivalent and are accepted as no-ops.
func (d *RawLinuxDriver) Control(op ControlOp, arg any) error { return nil }

// SetAddressFilter implements Driver. AF_PACKET delivers every frame
// on the wire regardless of destination multicast address; precise
// hardware filtering is unavailable, so this reports a driver error
// and the caller falls back to accept-all-multicast, per the Driver
// doc comment's documented fallback.
func (d *RawLinuxDriver) SetAddressFilter(macs []MAC) error {
	return newError(KindDriverError, "raw_linux.set_filter", nil)
}

// SendFrame implements Driver.
func (d *RawLinuxDriver) SendFrame(buf []byte, flags SendFlags) error {
	d.mu.Lock()
	fd := d.fd
	d.mu.Unlock()
	if flags == SendFragment {
		// a real socket write is atomic; fragments are reassembled by
		// the caller before SendFrame is invoked a second time with
		// SendComplete carrying the whole frame, so nothing to do here
		// beyond accepting the call.
		return nil
	}
	if _, err := unix.Write(fd, buf); err != nil {
		return newError(KindDriverError, "raw_linux.write", err)
	}
	return nil
}

// ReadFrame implements Driver.
func (d *RawLinuxDriver) ReadFrame(buf []byte) (int, error) {
	d.mu.Lock()
	fd := d.fd
	d.mu.Unlock()
	if buf == nil {
		var discard [MaxFrameSize]byte
		_, err := unix.Read(fd, discard[:])
		if err == unix.EAGAIN {
			return 0, ErrWouldBlock
		}
		if err != nil {
			return 0, newError(KindDriverError, "raw_linux.read", err)
		}
		return 0, nil
	}
	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, newError(KindDriverError, "raw_linux.read", err)
	}
	return n, nil
}

// GetRXFrameSize implements Driver. AF_PACKET has no MSG_PEEK length
// probe cheap enough to call on every poll iteration, so this always
// reports a full-size buffer as available; ReadFrame's actual byte
// count is authoritative.
func (d *RawLinuxDriver) GetRXFrameSize() int { return MaxFrameSize }

// LinkState implements Driver by re-reading the interface's current
// operstate.
func (d *RawLinuxDriver) LinkState() LinkState {
	iface, err := netInterfaceByName(d.ifName)
	if err != nil {
		return LinkState{}
	}
	return LinkState{Up: iface.up, Speed: 1000, FullDx: true}
}

// Close releases the underlying socket.
func (d *RawLinuxDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}

type rawIfaceInfo struct {
	index int
	mac   MAC
	up    bool
}

// netInterfaceByName resolves an interface's index, hardware address
// and operational state. AF_PACKET itself only needs the ifindex for
// SockaddrLinklayer; a raw ioctl/netlink round-trip for that one field
// would be needlessly platform-fragile compared to the stdlib's own
// interface enumeration, which already does the netlink work.
func netInterfaceByName(name string) (rawIfaceInfo, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return rawIfaceInfo{}, err
	}
	var mac MAC
	copy(mac[:], ifi.HardwareAddr)
	return rawIfaceInfo{index: ifi.Index, mac: mac, up: ifi.Flags&net.FlagUp != 0}, nil
}
