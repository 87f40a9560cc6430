package netcore

//
// NDP (RFC 4861) neighbor cache, Router Advertisement handling and
// duplicate-address detection. SLAAC's own FSM (slaac.go) is driven
// from here via onPrefixInfo and tick1s.
//

import "sync"

const (
	ndpOptSourceLL = 1
	ndpOptTargetLL = 2
	ndpOptPrefix   = 3
	ndpOptMTU      = 5
)

const (
	naFlagOverride = 1 << 5
	naFlagSolicit  = 1 << 6
	naFlagRouter   = 1 << 7
)

const (
	ndpCacheTimeoutTicks = 1200 // 120 s
	ndpResolveRetries    = 3
	ndpResolveRetryTicks = 10
	maxRouters           = 2
)

// ndpEntry is one NDP neighbor cache entry, mirroring [arpEntry].
type ndpEntry struct {
	ip      IPv6Addr
	mac     MAC
	state   neighState
	typ     neighType
	timeout int
	retries int
	pending pendingQueue
}

// ndpRouter is a default-router list entry (spec.md §4.3: "cap 2 per
// interface — default + alternate").
type ndpRouter struct {
	ip         IPv6Addr
	mac        MAC
	lifetime   int // seconds remaining
	isDefault  bool
}

// ndpCache is an interface's NDP neighbor cache, router list and DAD
// state.
type ndpCache struct {
	iface    *Interface
	mu       sync.Mutex
	capacity int
	entries  []*ndpEntry
	routers  []*ndpRouter
	probeSt  arpProbeStateV6
	slaac    *slaacState
}

// arpProbeStateV6 mirrors [arpProbeState] for NS/NA-based probes.
type arpProbeStateV6 struct {
	active   bool
	ip       IPv6Addr
	result   chan bool
}

func newNDPCache(iface *Interface, capacity int) *ndpCache {
	c := &ndpCache{iface: iface, capacity: capacity}
	c.slaac = newSLAACState(iface)
	return c
}

func (c *ndpCache) onLinkUp()   { c.slaac.onLinkUp() }
func (c *ndpCache) onLinkDown() { c.slaac.onLinkDown() }

func (c *ndpCache) uncacheable(ip IPv6Addr) bool {
	return ip.IsUnspecified() || ip.IsMulticast()
}

// cacheFind mirrors [arpCache.cacheFind] for IPv6: off-link
// destinations resolve the default router instead.
func (c *ndpCache) cacheFind(ip IPv6Addr) *ndpEntry {
	if c.uncacheable(ip) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	target, typ := ip, neighTypeTempIP
	if !c.onLinkLocked(ip) {
		gw := c.defaultRouterLocked()
		if gw == nil {
			return nil
		}
		target, typ = gw.ip, neighTypeFixedIP
	}

	for _, e := range c.entries {
		if e.ip == target {
			if e.state >= neighStateResolved && e.typ == neighTypeTempIP {
				// found again while actively in use: promote to InuseIP,
				// which gets refreshed once before falling back to
				// TempIP (mirrors ARP).
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

func (c *ndpCache) onLinkLocked(ip IPv6Addr) bool {
	if ip.IsLinkLocal() {
		return true
	}
	return c.slaac.onLinkLocked(ip)
}

func (c *ndpCache) defaultRouterLocked() *ndpRouter {
	for _, r := range c.routers {
		if r.isDefault {
			return r
		}
	}
	return nil
}

func (c *ndpCache) allocateLocked(ip IPv6Addr, typ neighType) *ndpEntry {
	if len(c.entries) >= c.capacity {
		victim := -1
		for i, e := range c.entries {
			if e.typ == neighTypeTempIP && e.state == neighStateResolved {
				victim = i
				break
			}
		}
		if victim < 0 {
			return nil
		}
		c.entries[victim].pending.releaseAll()
		c.entries = append(c.entries[:victim], c.entries[victim+1:]...)
	}
	e := &ndpEntry{ip: ip, typ: typ, state: neighStateReserved}
	c.entries = append(c.entries, e)
	return e
}

func (c *ndpCache) startResolutionLocked(e *ndpEntry) {
	e.state = neighStatePending
	e.retries = 0
	e.timeout = ndpResolveRetryTicks
	c.sendNS(e.ip, c.iface.v6.linkLocal)
}

func (c *ndpCache) enqueue(e *ndpEntry, frame *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.state == neighStateReserved {
		c.startResolutionLocked(e)
	}
	e.pending.append(frame)
}

func (c *ndpCache) resolveLocked(ip IPv6Addr, mac MAC, override bool) *ndpEntry {
	var e *ndpEntry
	for _, cand := range c.entries {
		if cand.ip == ip {
			e = cand
			break
		}
	}
	if e == nil {
		e = c.allocateLocked(ip, neighTypeTempIP)
		if e == nil {
			return nil
		}
	}
	if e.state == neighStateResolved && !override {
		return e
	}
	if e.state == neighStateRefresh && e.typ == neighTypeInuseIP {
		// refreshed exactly once; an answer while refreshing demotes
		// it back to TempIP instead of extending its InuseIP status.
		e.typ = neighTypeTempIP
	}
	e.mac = mac
	e.state = neighStateResolved
	e.timeout = ndpCacheTimeoutTicks
	e.retries = 0
	for _, f := range e.pending.drain() {
		if !prependEthernet(f, e.mac, c.iface.mac, c.iface.vlanID, EtherTypeIPv6) {
			f.Release()
			continue
		}
		c.iface.transmit(f)
	}
	return e
}

// sendNS transmits a Neighbor Solicitation for target from src,
// destined to target's solicited-node multicast address (or, if src
// is unspecified, used for DAD per RFC 4862).
func (c *ndpCache) sendNS(target, src IPv6Addr) {
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	opt := f.Prepend(8)
	if opt == nil {
		f.Release()
		return
	}
	opt[0], opt[1] = ndpOptSourceLL, 1
	copy(opt[2:8], c.iface.mac[:])
	hdr := f.Prepend(20)
	if hdr == nil {
		f.Release()
		return
	}
	putUint32(hdr[0:4], 0)
	copy(hdr[4:20], target[:])
	if src.IsUnspecified() {
		f.Truncate(f.Len() - 8) // no source-LL option on a DAD probe
	}
	dst := target.SolicitedNode()
	icmp6Send(c.iface, f, icmp6TypeNeighborSolicit, 0, src, dst, 255)
}

func (c *ndpCache) sendNA(target, dst IPv6Addr, solicited bool) {
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	opt := f.Prepend(8)
	if opt == nil {
		f.Release()
		return
	}
	opt[0], opt[1] = ndpOptTargetLL, 1
	copy(opt[2:8], c.iface.mac[:])
	hdr := f.Prepend(20)
	if hdr == nil {
		f.Release()
		return
	}
	flags := uint32(naFlagOverride)
	if solicited {
		flags |= naFlagSolicit
	}
	putUint32(hdr[0:4], flags)
	copy(hdr[4:20], target[:])
	icmp6Send(c.iface, f, icmp6TypeNeighborAdvert, 0, c.srcFor(target), dst, 255)
}

func (c *ndpCache) srcFor(target IPv6Addr) IPv6Addr {
	if target == c.iface.v6.linkLocal {
		return c.iface.v6.linkLocal
	}
	return target
}

// sendRS transmits a Router Solicitation to the all-routers multicast
// address, used by SLAAC's Discover phase.
func (c *ndpCache) sendRS() {
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	opt := f.Prepend(8)
	if opt == nil {
		f.Release()
		return
	}
	opt[0], opt[1] = ndpOptSourceLL, 1
	copy(opt[2:8], c.iface.mac[:])
	hdr := f.Prepend(4)
	if hdr == nil {
		f.Release()
		return
	}
	putUint32(hdr[0:4], 0)
	icmp6Send(c.iface, f, icmp6TypeRouterSolicit, 0, c.iface.v6.linkLocal, IPv6AllRouters, 255)
}

func ndpIngress(iface *Interface, frame *Frame, srcV6, dstV6 IPv6Addr, hl int, typ uint8) {
	defer frame.Release()
	if hl != 255 {
		return
	}
	c := iface.ndp
	if c == nil {
		return
	}
	b := frame.Bytes()

	switch typ {
	case icmp6TypeRouterAdvert:
		if !srcV6.IsLinkLocal() || len(b) < 16 {
			return
		}
		lifetime := getUint16(b[6:8])
		c.mu.Lock()
		c.applyRouterLocked(srcV6, lifetime)
		c.mu.Unlock()
		c.parseOptions(b[16:], srcV6)

	case icmp6TypeNeighborSolicit:
		if len(b) < 20 {
			return
		}
		var target IPv6Addr
		copy(target[:], b[4:20])
		if !iface.ownsAddress(target) {
			return
		}
		if srcV6.IsUnspecified() {
			c.mu.Lock()
			dadHit := c.probeSt.active && c.probeSt.ip == target
			c.mu.Unlock()
			if dadHit {
				c.mu.Lock()
				c.probeSt.active = false
				c.probeSt.result <- true
				c.mu.Unlock()
			}
			c.sendNA(target, IPv6AllNodes, false)
			return
		}
		c.mu.Lock()
		c.resolveLocked(srcV6, extractSourceLL(b[20:]), false)
		c.mu.Unlock()
		c.sendNA(target, srcV6, true)

	case icmp6TypeNeighborAdvert:
		if len(b) < 20 {
			return
		}
		flags := getUint32(b[0:4])
		var target IPv6Addr
		copy(target[:], b[4:20])
		override := flags&naFlagOverride != 0
		if dstV6 == IPv6AllNodes {
			c.mu.Lock()
			if c.probeSt.active && c.probeSt.ip == target {
				c.probeSt.active = false
				c.probeSt.result <- true
			}
			c.mu.Unlock()
			return
		}
		if iface.ownsAddress(dstV6) {
			c.mu.Lock()
			c.resolveLocked(target, extractTargetLL(b[20:]), override)
			c.mu.Unlock()
		}

	case icmp6TypeRouterSolicit:
		// hosts silently discard (RFC 4861 §6.2.6)
	}
}

func extractSourceLL(opts []byte) MAC {
	return extractLLOpt(opts, ndpOptSourceLL)
}

func extractTargetLL(opts []byte) MAC {
	return extractLLOpt(opts, ndpOptTargetLL)
}

func extractLLOpt(opts []byte, want uint8) MAC {
	var mac MAC
	for len(opts) >= 8 {
		typ, length := opts[0], int(opts[1])
		if length == 0 {
			return mac
		}
		if typ == want {
			copy(mac[:], opts[2:8])
			return mac
		}
		opts = opts[length*8:]
	}
	return mac
}

func (c *ndpCache) applyRouterLocked(ip IPv6Addr, lifetime uint16) {
	for i, r := range c.routers {
		if r.ip == ip {
			if lifetime == 0 {
				c.routers = append(c.routers[:i], c.routers[i+1:]...)
				c.promoteDefaultLocked()
			} else {
				r.lifetime = int(lifetime)
			}
			return
		}
	}
	if lifetime == 0 {
		return
	}
	r := &ndpRouter{ip: ip, lifetime: int(lifetime), isDefault: len(c.routers) == 0}
	if len(c.routers) >= maxRouters {
		c.routers = c.routers[1:]
	}
	c.routers = append(c.routers, r)
	c.syncDefGW()
}

func (c *ndpCache) promoteDefaultLocked() {
	for _, r := range c.routers {
		r.isDefault = false
	}
	if len(c.routers) > 0 {
		c.routers[0].isDefault = true
	}
	c.syncDefGW()
}

func (c *ndpCache) syncDefGW() {
	gw := c.defaultRouterLocked()
	c.iface.mu.Lock()
	if gw != nil {
		c.iface.v6.defGW, c.iface.v6.hasDefGW = gw.ip, true
	} else {
		c.iface.v6.hasDefGW = false
	}
	c.iface.mu.Unlock()
}

func (c *ndpCache) parseOptions(opts []byte, routerIP IPv6Addr) {
	for len(opts) >= 8 {
		typ, length := opts[0], int(opts[1])
		if length == 0 || length*8 > len(opts) {
			return
		}
		body := opts[2 : length*8]
		switch typ {
		case ndpOptPrefix:
			if len(body) >= 30 {
				c.handlePrefixInfo(body)
			}
		}
		opts = opts[length*8:]
	}
}

func (c *ndpCache) handlePrefixInfo(body []byte) {
	prefixLen := body[0]
	flags := body[1]
	valid := getUint32(body[2:6])
	preferred := getUint32(body[6:10])
	var prefix IPv6Addr
	copy(prefix[:], body[14:30])

	const flagOnLink = 0x80
	const flagAutonomous = 0x40
	if prefixLen != 64 || flags&flagAutonomous == 0 || flags&flagOnLink == 0 {
		return
	}
	if prefix.IsLinkLocal() {
		return
	}
	if valid < preferred {
		return
	}
	c.slaac.onPrefixInfo(prefix, valid, preferred)
}

// tick ages resolution retries and cache entry timeouts (100 ms).
func (c *ndpCache) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sent := false
	var keep []*ndpEntry
	for _, e := range c.entries {
		e.timeout--
		switch e.state {
		case neighStatePending, neighStateRefresh:
			if e.timeout <= 0 {
				if !sent && e.retries < ndpResolveRetries {
					e.retries++
					e.timeout = ndpResolveRetryTicks
					c.sendNS(e.ip, c.iface.v6.linkLocal)
					sent = true
				} else {
					e.pending.releaseAll()
					continue
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
					e.timeout = ndpResolveRetryTicks
					if !sent {
						c.sendNS(e.ip, c.iface.v6.linkLocal)
						sent = true
					}
				case neighTypeTempIP:
					continue
				case neighTypeStaticIP:
					e.timeout = ndpCacheTimeoutTicks
				}
			}
		}
		keep = append(keep, e)
	}
	c.entries = keep
}

// tick1s decrements router lifetimes and drives SLAAC's per-second
// timers.
func (c *ndpCache) tick1s() {
	c.mu.Lock()
	var expired []int
	for i, r := range c.routers {
		r.lifetime--
		if r.lifetime <= 0 {
			expired = append(expired, i)
		}
	}
	for i := len(expired) - 1; i >= 0; i-- {
		idx := expired[i]
		c.routers = append(c.routers[:idx], c.routers[idx+1:]...)
	}
	if len(expired) > 0 {
		c.promoteDefaultLocked()
	}
	c.mu.Unlock()
	c.slaac.tick1s()
}

// probeDAD starts NS-based duplicate-address detection for ip: it sends
// a single Neighbor Solicitation from the unspecified address and does
// not retry. A conflicting NS/NA is reported on the returned channel;
// the caller applies its own timeout.
func (c *ndpCache) probeDAD(ip IPv6Addr) <-chan bool {
	result := make(chan bool, 1)
	c.mu.Lock()
	c.probeSt = arpProbeStateV6{active: true, ip: ip, result: result}
	c.mu.Unlock()
	c.sendNS(ip, IPv6Unspecified)
	return result
}

// ownsAddress reports whether ip is one of iface's configured IPv6
// addresses.
func (iface *Interface) ownsAddress(ip IPv6Addr) bool {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if ip == iface.v6.linkLocal {
		return true
	}
	if iface.v6.hasTemp && ip == iface.v6.tempAddr {
		return true
	}
	for _, a := range iface.v6.staticAddr {
		if a == ip {
			return true
		}
	}
	return false
}
