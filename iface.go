package netcore

//
// Interface: the driver bridge and per-interface worker of spec.md
// §4.1. Owns the [Driver], the ARP/NDP caches, the IGMP/MLD
// membership tables and (optionally) a DHCPv4 client, and serializes
// all of that state behind one mutex (the "interface lock" of
// spec.md §5/Glossary).
//

import (
	"sync"
	"time"
)

// IPv4Config is an interface's static (or DHCP-managed) IPv4
// configuration.
type IPv4Config struct {
	Address IPv4Addr
	Netmask IPv4Addr
	Gateway IPv4Addr
	// DHCP, if true, starts a [dhcpClient] that overwrites Address,
	// Netmask and Gateway once a lease is acquired.
	DHCP       bool
	DHCPConfig DHCPConfig
}

// IPv6Config is an interface's IPv6 configuration. The link-local
// address is always derived from the MAC (spec.md §4.3); this only
// controls whether IPv6 and SLAAC are enabled at all, plus any
// statically assigned addresses.
type IPv6Config struct {
	Enabled         bool
	StaticAddresses []IPv6Addr
}

// InterfaceConfig is the "ROM configuration table" entry for one
// interface (spec.md §6's configuration surface), minus the fields
// that are properties of the driver itself (MAC-from-hardware is
// expressed by leaving MAC zero and relying on [CapMACFromHardware]).
type InterfaceConfig struct {
	Name    string
	MAC     MAC
	VLANID  uint16
	MTU     int
	IPv4    IPv4Config
	IPv6    IPv6Config
	ARPSize int
	NDPSize int
}

// DefaultInterfaceConfig returns a config for an interface with the
// given MAC, IPv6 SLAAC enabled, no static IPv4 address and no DHCP
// (callers opt into DHCP explicitly).
func DefaultInterfaceConfig(mac MAC) InterfaceConfig {
	return InterfaceConfig{
		MAC:     mac,
		MTU:     1500,
		IPv6:    IPv6Config{Enabled: true},
		ARPSize: 32,
		NDPSize: 32,
	}
}

// ifaceV4State is an interface's live IPv4 control block (spec.md
// Design Notes §9's "IPv4 control block" as a struct field instead of
// a global singleton).
type ifaceV4State struct {
	address   IPv4Addr
	netmask   IPv4Addr
	gateway   IPv4Addr
	idCounter uint16 // IPv4 Identification field counter (spec.md §4.5 egress)
}

// ifaceV6State is an interface's live IPv6 control block ("LocM6" in
// spec.md §4.3).
type ifaceV6State struct {
	linkLocal  IPv6Addr
	staticAddr []IPv6Addr
	tempAddr   IPv6Addr // the active SLAAC temporary address, if any
	hasTemp    bool
	defGW      IPv6Addr
	hasDefGW   bool
}

// Interface bridges a [Driver] to the protocol layers: it owns the
// receive/transmit pipeline, the neighbor caches, the multicast
// membership tables and an optional DHCP client.
type Interface struct {
	stack  *Stack
	logger Logger

	name   string
	mac    MAC
	vlanID uint16
	mtu    int
	drv    Driver
	caps   Capabilities

	mu     sync.Mutex // the "interface lock"
	linkUp bool

	v4 ifaceV4State
	v6 ifaceV6State

	arp  *arpCache
	ndp  *ndpCache
	igmp *igmpTable
	mld  *mldTable
	dhcp *dhcpClient

	rxEvents  chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newInterface(stack *Stack, cfg InterfaceConfig, drv Driver) (*Interface, error) {
	if err := drv.PowerControl(true); err != nil {
		return nil, newError(KindDriverError, "iface.power_control", err)
	}
	caps := drv.GetCapabilities()

	mac := cfg.MAC
	if caps.Has(CapMACFromHardware) {
		mac = drv.GetMACAddress()
	} else if err := drv.SetMACAddress(mac); err != nil {
		return nil, newError(KindDriverError, "iface.set_mac_address", err)
	}

	name := cfg.Name
	if name == "" {
		name = newIfaceName()
	}
	mtu := cfg.MTU
	if mtu == 0 {
		mtu = 1500
	}

	iface := &Interface{
		stack:  stack,
		logger: stack.logger,
		name:   name,
		mac:    mac,
		vlanID: cfg.VLANID,
		mtu:    mtu,
		drv:    drv,
		caps:   caps,
		v4: ifaceV4State{
			address: cfg.IPv4.Address,
			netmask: cfg.IPv4.Netmask,
			gateway: cfg.IPv4.Gateway,
		},
		rxEvents: make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}

	arpSize := cfg.ARPSize
	if arpSize == 0 {
		arpSize = 32
	}
	ndpSize := cfg.NDPSize
	if ndpSize == 0 {
		ndpSize = 32
	}
	iface.arp = newARPCache(iface, arpSize)
	iface.igmp = newIGMPTable(iface)

	if cfg.IPv6.Enabled {
		iface.v6.linkLocal = LinkLocalFromMAC(mac)
		iface.v6.staticAddr = append([]IPv6Addr(nil), cfg.IPv6.StaticAddresses...)
		iface.ndp = newNDPCache(iface, ndpSize)
		iface.mld = newMLDTable(iface)
	}

	if cfg.IPv4.DHCP {
		iface.dhcp = newDHCPClient(iface, cfg.IPv4.DHCPConfig)
	}

	if err := drv.Initialize(func(ev DriverEvent) {
		if ev.Kind == DriverEventRxFrame {
			select {
			case iface.rxEvents <- struct{}{}:
			default:
			}
		}
	}); err != nil {
		return nil, newError(KindDriverError, "iface.initialize", err)
	}

	return iface, nil
}

// Name returns the interface's log/debug name.
func (iface *Interface) Name() string { return iface.name }

// MAC returns the interface's hardware address.
func (iface *Interface) MAC() MAC { return iface.mac }

// LinkUp reports whether the interface currently considers its link up.
func (iface *Interface) LinkUp() bool {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	return iface.linkUp
}

// IPv4Address returns the interface's current IPv4 address.
func (iface *Interface) IPv4Address() IPv4Addr {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	return iface.v4.address
}

// LinkLocalIPv6 returns the interface's link-local IPv6 address.
func (iface *Interface) LinkLocalIPv6() IPv6Addr {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	return iface.v6.linkLocal
}

func (iface *Interface) start() {
	iface.wg.Add(1)
	go iface.worker()
}

// Close stops the interface's worker and powers off its driver.
func (iface *Interface) Close() error {
	iface.closeOnce.Do(func() {
		close(iface.closeCh)
		iface.wg.Wait()
		iface.drv.PowerControl(false)
	})
	return nil
}

// worker is the per-interface goroutine of spec.md §4.1: drains RX and
// polls link state once a second. The 100 ms cache/timer ticks for this
// interface's resolvers come from the stack's tickScheduler (timers.go).
func (iface *Interface) worker() {
	defer iface.wg.Done()

	pollInterval := 2 * time.Millisecond
	const pollMax = 25 * time.Millisecond
	pollTimer := time.NewTimer(pollInterval)
	defer pollTimer.Stop()

	linkTicker := time.NewTicker(1 * time.Second)
	defer linkTicker.Stop()

	iface.pollLinkState() // establish initial state without waiting a full second

	for {
		select {
		case <-iface.closeCh:
			return

		case <-iface.rxEvents:
			iface.drainRX()
			pollInterval = 2 * time.Millisecond

		case <-pollTimer.C:
			if iface.caps.Has(CapEventDriven) {
				pollTimer.Reset(pollMax)
				continue
			}
			n := iface.drainRX()
			if n > 0 {
				pollInterval = 2 * time.Millisecond
			} else if pollInterval < pollMax {
				pollInterval *= 2
				if pollInterval > pollMax {
					pollInterval = pollMax
				}
			}
			pollTimer.Reset(pollInterval)

		case <-linkTicker.C:
			iface.pollLinkState()
		}
	}
}

// drainRX empties the driver's RX FIFO, allocating one pool frame per
// queued frame and handing each to [Interface.handleFrame]. Overflow
// of the pool silently drops the frame (spec.md §4.1.a).
func (iface *Interface) drainRX() int {
	n := 0
	for {
		size := iface.drv.GetRXFrameSize()
		if size <= 0 {
			return n
		}
		if size < EthernetHeaderLen || size > HeadroomMax+MaxFrameSize {
			iface.drv.ReadFrame(nil) // discard malformed/oversized frame
			continue
		}
		frame := iface.stack.pool.AllocNoFail()
		if frame == nil {
			iface.drv.ReadFrame(nil)
			iface.logger.Warnf("netcore: %s: rx dropped, pool exhausted", iface.name)
			continue
		}
		buf := frame.buf[frame.off:cap(frame.buf)]
		got, err := iface.drv.ReadFrame(buf)
		if err != nil || got == 0 {
			frame.Release()
			continue
		}
		frame.end = frame.off + got
		n++
		iface.handleFrame(frame)
	}
}

// pollLinkState implements spec.md §4.1's link-up/link-down actions.
func (iface *Interface) pollLinkState() {
	ls := iface.drv.LinkState()

	iface.mu.Lock()
	was := iface.linkUp
	iface.linkUp = ls.Up
	iface.mu.Unlock()

	if ls.Up && !was {
		iface.onLinkUp()
	} else if !ls.Up && was {
		iface.onLinkDown()
	}
}

func (iface *Interface) onLinkUp() {
	iface.logger.Infof("netcore: %s: link up", iface.name)
	iface.drv.Control(CtrlRxOn, nil)
	iface.drv.Control(CtrlTxOn, nil)
	iface.updateMulticastFilter()

	iface.mu.Lock()
	v4 := iface.v4.address
	dhcpEnabled := iface.dhcp != nil
	iface.mu.Unlock()

	if !v4.IsZero() && !dhcpEnabled {
		iface.arp.notify()
	}
	if iface.dhcp != nil {
		iface.dhcp.onLinkUp()
	}
	if iface.ndp != nil {
		iface.ndp.onLinkUp()
	}
}

func (iface *Interface) onLinkDown() {
	iface.logger.Infof("netcore: %s: link down", iface.name)
	iface.drv.Control(CtrlTxOff, nil)
	iface.drv.Control(CtrlRxOff, nil)
	iface.drv.Control(CtrlFlush, nil)

	if iface.dhcp != nil {
		iface.dhcp.onLinkDown()
	}
	if iface.ndp != nil {
		iface.ndp.onLinkDown()
	}
}

// updateMulticastFilter programs the hardware multicast filter from
// the union of active IGMP/MLD groups and the IPv6 solicited-node
// addresses (spec.md §4.4's collect_mcast, consumed here).
func (iface *Interface) updateMulticastFilter() {
	var macs []MAC
	if iface.igmp != nil {
		macs = append(macs, iface.igmp.collectMcast()...)
	}
	if iface.mld != nil {
		macs = append(macs, iface.mld.collectMcast()...)
	}
	if err := iface.drv.SetAddressFilter(macs); err != nil {
		iface.logger.Debugf("netcore: %s: no hardware multicast filter, falling back to promiscuous", iface.name)
	}
}

// handleFrame strips VLAN framing per spec.md §4.1's "VLAN accept"
// rule and dispatches by EtherType. The frame is always released by
// the end of this call; no path below may retain it beyond the
// protocol layer it hands off to (which takes ownership explicitly,
// e.g. by cloning onto a pending queue).
func (iface *Interface) handleFrame(frame *Frame) {
	hdr, ok := parseEthernet(frame.Bytes())
	if !ok {
		frame.Release()
		return
	}

	vlanID := iface.vlanID
	if vlanID != 0 {
		if !hdr.HasVLAN || hdr.VLANID != vlanID {
			frame.Release()
			return
		}
	} else if hdr.HasVLAN {
		frame.Release()
		return
	}

	if !hdr.Dst.IsBroadcast() && !hdr.Dst.IsMulticast() && hdr.Dst != iface.mac {
		frame.Release()
		return
	}

	frame.Consume(hdr.HdrLen)

	switch hdr.Type {
	case EtherTypeARP:
		iface.arp.process(frame)
	case EtherTypeIPv4:
		ipv4Ingress(iface, frame)
	case EtherTypeIPv6:
		ipv6Ingress(iface, frame)
	default:
		frame.Release()
	}
}

// etherDestination resolves the Ethernet destination MAC for an
// outgoing IP datagram per spec.md §4.1's transmit contract. ok=false
// with a nil MAC means the frame was queued on a resolver's pending
// list (or dropped) and the caller must not transmit it itself.
func (iface *Interface) etherDestination(ipVersion int, dstV4 IPv4Addr, dstV6 IPv6Addr, frame *Frame) (dst MAC, resolved bool) {
	if ipVersion == 4 {
		switch {
		case dstV4.IsBroadcast() || dstV4 == iface.v4.address.SubnetBroadcast(iface.v4.netmask):
			return BroadcastMAC, true
		case dstV4.IsMulticast():
			return dstV4.MulticastMAC(), true
		default:
			entry := iface.arp.cacheFind(dstV4)
			if entry == nil {
				frame.Release()
				return MAC{}, false
			}
			if entry.state == neighStateResolved {
				return entry.mac, true
			}
			iface.arp.enqueue(entry, frame)
			return MAC{}, false
		}
	}
	switch {
	case dstV6.IsMulticast():
		return dstV6.MulticastMAC(), true
	default:
		entry := iface.ndp.cacheFind(dstV6)
		if entry == nil {
			frame.Release()
			return MAC{}, false
		}
		if entry.state == neighStateResolved {
			return entry.mac, true
		}
		iface.ndp.enqueue(entry, frame)
		return MAC{}, false
	}
}

// sendFrame is the transmit contract of spec.md §4.1:
// send_frame(frame, ip_version) -> bool. frame must already contain
// the IP datagram (and everything above it); sendFrame prepends
// Ethernet/VLAN framing and hands off to the driver, or to a neighbor
// resolver's pending queue.
func (iface *Interface) sendFrame(frame *Frame, ipVersion int, dstV4 IPv4Addr, dstV6 IPv6Addr) bool {
	iface.mu.Lock()
	up := iface.linkUp
	iface.mu.Unlock()
	if !up {
		frame.Release()
		return false
	}
	if frame.Len() > iface.mtu {
		frame.Release()
		return false
	}

	dstMAC, resolved := iface.etherDestination(ipVersion, dstV4, dstV6, frame)
	if !resolved {
		return true // queued on a resolver, or intentionally dropped
	}

	etype := EtherTypeIPv4
	if ipVersion == 6 {
		etype = EtherTypeIPv6
	}
	if !prependEthernet(frame, dstMAC, iface.mac, iface.vlanID, etype) {
		frame.Release()
		return false
	}
	return iface.transmit(frame)
}

// transmit hands a fully-framed packet to the driver, retrying
// ARM_DRIVER_ERROR_BUSY-equivalent conditions up to 16 times with a
// short sleep inserted after the 12th, per spec.md §4.1.
func (iface *Interface) transmit(frame *Frame) bool {
	defer frame.Release()
	const maxRetries = 16
	const sleepAfter = 12
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := iface.drv.SendFrame(frame.Bytes(), SendComplete)
		if err == nil {
			return true
		}
		if attempt >= sleepAfter {
			time.Sleep(time.Millisecond)
		}
	}
	iface.logger.Warnf("netcore: %s: tx dropped, driver busy", iface.name)
	return false
}

// tick100ms drives this interface's 100 ms resolver/retry timers
// (spec.md §5: "a global 100 ms tick drives ARP/NDP/IGMP/MLD/TCP
// retry timers").
func (iface *Interface) tick100ms() {
	iface.arp.tick()
	if iface.ndp != nil {
		iface.ndp.tick()
	}
	if iface.igmp != nil {
		iface.igmp.tick()
	}
	if iface.mld != nil {
		iface.mld.tick()
	}
}

// tick1s drives this interface's 1 s timers (DHCP lease timers, TCP
// keep-alive scheduling is driven at the tcpManager level).
func (iface *Interface) tick1s() {
	if iface.dhcp != nil {
		iface.dhcp.tick1s()
	}
	if iface.ndp != nil {
		iface.ndp.tick1s()
	}
}
