package netcore

//
// ARP (RFC 826), spec.md §4.2. The wire layout is hand-rolled against
// the [Frame] the same way ethernet.go is (see checksum.go for why);
// the cache/resolver behavior is new.
//

import (
	"sync"
	"time"
)

const arpPacketLen = 28

// ARP opcodes, RFC 826 plus RFC 1868's Inverse ARP (3/4) and the
// reply-with-extension opcodes (8/9) spec.md §6 lists as accepted.
const (
	arpOpRequest        = 1
	arpOpReply          = 2
	arpOpInverseRequest = 3
	arpOpInverseReply   = 4
	arpOpNAKRequest     = 8
	arpOpNAKReply       = 9
)

const (
	arpHTypeEthernet = 1
	arpPTypeIPv4     = 0x0800
)

type arpPacket struct {
	op         uint16
	senderMAC  MAC
	senderIP   IPv4Addr
	targetMAC  MAC
	targetIP   IPv4Addr
}

func parseARP(b []byte) (arpPacket, bool) {
	var p arpPacket
	if len(b) < arpPacketLen {
		return p, false
	}
	if getUint16(b[0:2]) != arpHTypeEthernet || getUint16(b[2:4]) != arpPTypeIPv4 {
		return p, false
	}
	if b[4] != 6 || b[5] != 4 {
		return p, false
	}
	p.op = getUint16(b[6:8])
	copy(p.senderMAC[:], b[8:14])
	copy(p.senderIP[:], b[14:18])
	copy(p.targetMAC[:], b[18:24])
	copy(p.targetIP[:], b[24:28])
	return p, true
}

func buildARP(f *Frame, op uint16, senderMAC MAC, senderIP IPv4Addr, targetMAC MAC, targetIP IPv4Addr) bool {
	b := f.Prepend(arpPacketLen)
	if b == nil {
		return false
	}
	putUint16(b[0:2], arpHTypeEthernet)
	putUint16(b[2:4], arpPTypeIPv4)
	b[4], b[5] = 6, 4
	putUint16(b[6:8], op)
	copy(b[8:14], senderMAC[:])
	copy(b[14:18], senderIP[:])
	copy(b[18:24], targetMAC[:])
	copy(b[24:28], targetIP[:])
	return true
}

// arpEntry is one ARP cache entry (spec.md §3's "ARP entry").
type arpEntry struct {
	ip      IPv4Addr
	mac     MAC
	state   neighState
	typ     neighType
	timeout int // ticks (100 ms) remaining until expiry/refresh
	retries int
	pending pendingQueue
}

const (
	arpCacheTimeoutTicks  = 1200 // 120 s, spec.md invariant "0 < E.Tout <= CacheTout"
	arpResolveRetries     = 3
	arpResolveRetryTicks  = 10 // 1 s between retries at a 100 ms tick rate
)

// arpProbeState tracks a user-initiated duplicate-address probe
// (spec.md §4.2's probe(ip, callback|blocking)).
type arpProbeState struct {
	active   bool
	ip       IPv4Addr
	attempts int
	result   chan bool
}

// arpCache is an interface's ARP cache and resolver.
type arpCache struct {
	iface    *Interface
	mu       sync.Mutex
	capacity int
	entries  []*arpEntry
	probeSt  arpProbeState
}

func newARPCache(iface *Interface, capacity int) *arpCache {
	return &arpCache{iface: iface, capacity: capacity}
}

func (c *arpCache) uncacheable(ip IPv4Addr) bool {
	v4 := c.iface.v4
	return ip.IsZero() || ip.IsBroadcast() || ip.IsMulticast() ||
		ip == v4.address.SubnetBroadcast(v4.netmask)
}

// cacheFind returns the existing entry for ip, allocating and
// starting resolution for a new one. External destinations resolve
// the gateway instead (spec.md §4.2).
func (c *arpCache) cacheFind(ip IPv4Addr) *arpEntry {
	if c.uncacheable(ip) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	target, typ := ip, neighTypeTempIP
	v4 := c.iface.v4
	if !c.iface.IsOnLink4(ip) {
		if v4.gateway.IsZero() {
			return nil
		}
		target, typ = v4.gateway, neighTypeFixedIP
	}

	for _, e := range c.entries {
		if e.ip == target {
			if e.state >= neighStateResolved && e.typ == neighTypeTempIP {
				// found again while actively in use: promote to InuseIP,
				// which gets refreshed once before falling back to
				// TempIP (spec.md §4.2).
				e.typ = neighTypeInuseIP
			}
			return e
		}
	}
	e := c.allocateLocked(target, typ)
	if e != nil && e.state == neighStateReserved {
		c.startResolutionLocked(e)
	}
	return e
}

func (c *arpCache) allocateLocked(ip IPv4Addr, typ neighType) *arpEntry {
	if len(c.entries) >= c.capacity {
		victim := -1
		for i, e := range c.entries {
			if e.typ == neighTypeTempIP && e.state == neighStateResolved {
				victim = i
				break
			}
		}
		if victim < 0 {
			return nil // cache full of entries we must not evict
		}
		c.entries[victim].pending.releaseAll()
		c.entries = append(c.entries[:victim], c.entries[victim+1:]...)
	}
	e := &arpEntry{ip: ip, typ: typ, state: neighStateReserved}
	c.entries = append(c.entries, e)
	return e
}

func (c *arpCache) startResolutionLocked(e *arpEntry) {
	e.state = neighStatePending
	e.retries = 0
	e.timeout = arpResolveRetryTicks
	c.sendRequest(e.ip)
}

func (c *arpCache) sendRequest(target IPv4Addr) {
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	if !buildARP(f, arpOpRequest, c.iface.mac, c.iface.v4.address, MAC{}, target) {
		f.Release()
		return
	}
	if !c.iface.sendFrame(f, 4, IPv4Broadcast, IPv6Addr{}) {
		// sendFrame releases on failure; nothing more to do.
		_ = 0
	}
}

// cacheAdd populates the cache from a received unicast/broadcast
// frame's sender fields.
func (c *arpCache) cacheAdd(ip IPv4Addr, mac MAC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveLocked(ip, mac, neighTypeTempIP)
}

// cacheEarly pre-resolves the sender of an inbound packet, trading a
// cache slot for reply latency (spec.md §4.2).
func (c *arpCache) cacheEarly(ip IPv4Addr, mac MAC) {
	c.cacheAdd(ip, mac)
}

func (c *arpCache) resolveLocked(ip IPv4Addr, mac MAC, typ neighType) *arpEntry {
	if c.uncacheable(ip) || mac.IsMulticast() || mac.IsZero() {
		return nil
	}
	var e *arpEntry
	for _, cand := range c.entries {
		if cand.ip == ip {
			e = cand
			break
		}
	}
	if e == nil {
		e = c.allocateLocked(ip, typ)
		if e == nil {
			return nil
		}
	}
	if e.state == neighStateRefresh && e.typ == neighTypeInuseIP {
		// refreshed exactly once; a reply while refreshing demotes it
		// back to TempIP instead of extending its InuseIP status.
		e.typ = neighTypeTempIP
	}
	e.mac = mac
	e.state = neighStateResolved
	e.timeout = arpCacheTimeoutTicks
	e.retries = 0
	for _, f := range e.pending.drain() {
		dst := e.mac
		if !prependEthernet(f, dst, c.iface.mac, c.iface.vlanID, EtherTypeIPv4) {
			f.Release()
			continue
		}
		c.iface.transmit(f)
	}
	return e
}

// enqueue appends frame to entry's pending list, moving ownership
// into the queue (our single-owner model already guarantees the
// caller held the only reference, so no extra copy is needed here
// unlike the original's aliased-header design).
func (c *arpCache) enqueue(e *arpEntry, frame *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.state == neighStateReserved {
		c.startResolutionLocked(e)
	}
	e.pending.append(frame)
}

// probe performs a user-initiated duplicate-address check: three
// requests one second apart, reporting true (reply seen) or false
// (timeout) on the returned channel.
func (c *arpCache) probe(ip IPv4Addr) <-chan bool {
	result := make(chan bool, 1)
	c.mu.Lock()
	c.probeSt = arpProbeState{active: true, ip: ip, result: result}
	c.mu.Unlock()
	c.sendRequest(ip)
	go func() {
		for i := 0; i < arpResolveRetries-1; i++ {
			time.Sleep(time.Second)
			c.mu.Lock()
			active := c.probeSt.active && c.probeSt.ip == ip
			c.mu.Unlock()
			if !active {
				return
			}
			c.sendRequest(ip)
		}
		time.Sleep(time.Second)
		c.mu.Lock()
		if c.probeSt.active && c.probeSt.ip == ip {
			c.probeSt.active = false
			result <- false
		}
		c.mu.Unlock()
	}()
	return result
}

// notify sends a gratuitous ARP announcing our IP.
func (c *arpCache) notify() {
	ip := c.iface.v4.address
	if ip.IsZero() {
		return
	}
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	if !buildARP(f, arpOpRequest, c.iface.mac, ip, MAC{}, ip) {
		f.Release()
		return
	}
	c.iface.sendFrame(f, 4, IPv4Broadcast, IPv6Addr{})
}

// process parses and handles an inbound ARP packet (spec.md §4.2).
func (c *arpCache) process(frame *Frame) {
	defer frame.Release()
	pkt, ok := parseARP(frame.Bytes())
	if !ok {
		return
	}
	if pkt.senderMAC.IsMulticast() || pkt.senderMAC.IsBroadcast() || pkt.senderMAC.IsZero() {
		return
	}
	if pkt.senderIP.IsLoopback() || pkt.senderIP.IsMulticast() ||
		pkt.senderIP == c.iface.v4.address.SubnetBroadcast(c.iface.v4.netmask) {
		return
	}
	if pkt.senderIP == c.iface.v4.address {
		return // someone else claims our address; out of scope to react further
	}
	isProbe := pkt.senderIP.IsZero()
	if isProbe && pkt.op != arpOpRequest {
		return
	}

	switch pkt.op {
	case arpOpRequest:
		if pkt.senderIP == pkt.targetIP {
			// gratuitous ARP
			c.mu.Lock()
			for _, e := range c.entries {
				if e.ip == pkt.senderIP && e.state == neighStateResolved {
					e.mac = pkt.senderMAC
					e.timeout = arpCacheTimeoutTicks
				}
			}
			c.mu.Unlock()
			return
		}
		if pkt.targetIP == c.iface.v4.address {
			c.cacheAdd(pkt.senderIP, pkt.senderMAC)
			c.reply(pkt.senderMAC, pkt.senderIP)
		}

	case arpOpReply:
		if pkt.targetIP.IsZero() {
			c.mu.Lock()
			if c.probeSt.active && c.probeSt.ip == pkt.senderIP {
				c.probeSt.active = false
				c.probeSt.result <- true
			}
			c.mu.Unlock()
			return
		}
		if pkt.targetIP == c.iface.v4.address {
			c.cacheAdd(pkt.senderIP, pkt.senderMAC)
		}

	case arpOpInverseRequest:
		if pkt.targetMAC == c.iface.mac {
			c.cacheAdd(pkt.senderIP, pkt.senderMAC)
			c.replyInverse(pkt.senderMAC, pkt.senderIP)
		}

	case arpOpInverseReply:
		if pkt.targetMAC == c.iface.mac {
			c.cacheAdd(pkt.senderIP, pkt.senderMAC)
		}
	}
}

func (c *arpCache) reply(targetMAC MAC, targetIP IPv4Addr) {
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	if !buildARP(f, arpOpReply, c.iface.mac, c.iface.v4.address, targetMAC, targetIP) {
		f.Release()
		return
	}
	c.iface.sendFrame(f, 4, targetIP, IPv6Addr{})
}

func (c *arpCache) replyInverse(targetMAC MAC, targetIP IPv4Addr) {
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	if !buildARP(f, arpOpInverseReply, c.iface.mac, c.iface.v4.address, targetMAC, targetIP) {
		f.Release()
		return
	}
	c.iface.sendFrame(f, 4, targetIP, IPv6Addr{})
}

// tick processes at most one entry requiring a packet send per call
// (spec.md §4.2: "preserving fairness"), and ages every entry's
// timeout.
func (c *arpCache) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sent := false
	var keep []*arpEntry
	for _, e := range c.entries {
		e.timeout--
		switch e.state {
		case neighStatePending, neighStateRefresh:
			if e.timeout <= 0 {
				if e.retries >= arpResolveRetries {
					e.pending.releaseAll()
					continue // drop: resolution failed
				}
				if !sent {
					e.retries++
					e.timeout = arpResolveRetryTicks
					c.sendRequest(e.ip)
					sent = true
				}
			}
		case neighStateResolved:
			if e.timeout <= 0 {
				switch e.typ {
				case neighTypeFixedIP, neighTypeInuseIP:
					// FixedIP is always refreshed; InuseIP is refreshed
					// once, then reclassified TempIP on a successful
					// reply (see resolveLocked).
					e.state = neighStateRefresh
					e.retries = 0
					e.timeout = arpResolveRetryTicks
					if !sent {
						c.sendRequest(e.ip)
						sent = true
					}
				case neighTypeTempIP:
					continue // released on expiry
				case neighTypeStaticIP:
					if !c.iface.IsOnLink4(e.ip) {
						continue
					}
					e.timeout = arpCacheTimeoutTicks
				}
			}
		}
		keep = append(keep, e)
	}
	c.entries = keep
}
