package netcore

//
// MLDv1 (RFC 2710), the IPv6 analog of igmp.go carried over ICMPv6
// types 130-132 (spec.md §4.4: "MLD is the IPv6 analog... with
// MaxDelay in milliseconds; hop-limit must be 1").
//

import "sync"

const (
	mldPrescaler = 2
)

// groupEntryV6 mirrors [groupEntry] for IPv6 multicast groups.
type groupEntryV6 struct {
	ip           IPv6Addr
	reportTicks  int
	lastReporter bool
}

// mldTable is an interface's MLD membership table.
type mldTable struct {
	iface    *Interface
	mu       sync.Mutex
	groups   map[IPv6Addr]*groupEntryV6
	prescale int
}

func newMLDTable(iface *Interface) *mldTable {
	return &mldTable{iface: iface, groups: map[IPv6Addr]*groupEntryV6{}}
}

func mldGroupAllowed(ip IPv6Addr) bool {
	if !ip.IsMulticast() {
		return false
	}
	return ip != IPv6AllNodes // well-known, implicitly listened to
}

func (t *mldTable) join(ip IPv6Addr) bool {
	if !mldGroupAllowed(ip) {
		return false
	}
	t.mu.Lock()
	if _, ok := t.groups[ip]; ok {
		t.mu.Unlock()
		return true
	}
	t.groups[ip] = &groupEntryV6{ip: ip, reportTicks: -1}
	t.mu.Unlock()
	t.iface.updateMulticastFilter()
	t.sendReport(ip)
	return true
}

func (t *mldTable) leave(ip IPv6Addr) {
	t.mu.Lock()
	g, ok := t.groups[ip]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.groups, ip)
	wasReporter := g.lastReporter
	t.mu.Unlock()

	t.iface.updateMulticastFilter()
	if wasReporter {
		t.sendDone(ip)
	}
}

// collectMcast returns the MACs for every joined group plus the
// solicited-node addresses the engine must also answer on (spec.md
// §4.4: "derived from active groups plus the IPv6 solicited-node
// set").
func (t *mldTable) collectMcast() []MAC {
	t.mu.Lock()
	defer t.mu.Unlock()
	macs := make([]MAC, 0, len(t.groups)+2)
	for ip := range t.groups {
		macs = append(macs, ip.MulticastMAC())
	}
	t.iface.mu.Lock()
	macs = append(macs, t.iface.v6.linkLocal.SolicitedNode().MulticastMAC())
	if t.iface.v6.hasTemp {
		macs = append(macs, t.iface.v6.tempAddr.SolicitedNode().MulticastMAC())
	}
	t.iface.mu.Unlock()
	return macs
}

func (t *mldTable) sendReport(group IPv6Addr) {
	f := t.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	buildMLD(f, group)
	icmp6Send(t.iface, f, icmp6TypeMLDReport, 0, t.iface.v6.linkLocal, group, 1)

	t.mu.Lock()
	if g, ok := t.groups[group]; ok {
		g.lastReporter = true
		g.reportTicks = -1
	}
	t.mu.Unlock()
}

func (t *mldTable) sendDone(group IPv6Addr) {
	f := t.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	buildMLD(f, group)
	icmp6Send(t.iface, f, icmp6TypeMLDDone, 0, t.iface.v6.linkLocal, IPv6AllRouters, 1)
}

func buildMLD(f *Frame, group IPv6Addr) {
	hdr := f.Prepend(20)
	putUint16(hdr[0:2], 0)
	putUint16(hdr[2:4], 0)
	copy(hdr[4:20], group[:])
}

func mldIngress(iface *Interface, frame *Frame, srcV6, dstV6 IPv6Addr, hl int, typ uint8) {
	defer frame.Release()
	if hl != 1 {
		return
	}
	t := iface.mld
	if t == nil {
		return
	}
	b := frame.Bytes()
	if len(b) < 20 {
		return
	}
	maxDelayMs := getUint16(b[0:2])
	var group IPv6Addr
	copy(group[:], b[4:20])

	switch typ {
	case icmp6TypeMLDQuery:
		ticks := int(maxDelayMs) / 100
		if ticks == 0 {
			ticks = 1
		}
		if group.IsUnspecified() {
			t.scheduleAll(ticks)
		} else {
			t.schedule(group, ticks)
		}
	case icmp6TypeMLDReport:
		t.mu.Lock()
		if g, ok := t.groups[group]; ok && g.reportTicks >= 0 {
			g.reportTicks = -1
			g.lastReporter = false
		}
		t.mu.Unlock()
	}
}

func (t *mldTable) scheduleAll(maxTicks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip := range t.groups {
		t.scheduleLocked(ip, maxTicks)
	}
}

func (t *mldTable) schedule(group IPv6Addr, maxTicks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scheduleLocked(group, maxTicks)
}

func (t *mldTable) scheduleLocked(group IPv6Addr, maxTicks int) {
	g, ok := t.groups[group]
	if !ok {
		return
	}
	g.reportTicks = int(t.iface.stack.randUint32() % uint32(maxTicks+1))
}

func (t *mldTable) tick() {
	t.mu.Lock()
	t.prescale++
	fire := t.prescale >= mldPrescaler
	if fire {
		t.prescale = 0
	}
	var due []IPv6Addr
	if fire {
		for ip, g := range t.groups {
			if g.reportTicks > 0 {
				g.reportTicks--
			}
			if g.reportTicks == 0 {
				due = append(due, ip)
				g.reportTicks = -1
			}
		}
	}
	t.mu.Unlock()
	for _, ip := range due {
		t.sendReport(ip)
	}
}
