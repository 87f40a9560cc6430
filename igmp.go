package netcore

//
// IGMPv1/v2 (RFC 1112/2236), spec.md §4.4.
//

import "sync"

const (
	igmpTypeQuery      = 0x11
	igmpTypeV1Report   = 0x12
	igmpTypeV2Report   = 0x16
	igmpTypeV2Leave    = 0x17
	igmpRouterAlertLen = 4
)

const (
	igmpV1ModeTicks  = 400 // 40 s at the 100 ms tick rate
	igmpPrescaler    = 2   // derives the 200 ms report tick from the 100 ms tick
)

// groupEntry is one multicast group this interface has joined,
// shared in shape by IGMP and MLD.
type groupEntry struct {
	ip           IPv4Addr
	reportTicks  int // ticks remaining until a scheduled Report fires, -1 if none pending
	lastReporter bool
}

// igmpTable is an interface's IGMP membership table.
type igmpTable struct {
	iface    *Interface
	mu       sync.Mutex
	groups   map[IPv4Addr]*groupEntry
	v1Mode   int // ticks remaining in v1-compatibility mode, 0 means v2
	prescale int
}

func newIGMPTable(iface *Interface) *igmpTable {
	return &igmpTable{iface: iface, groups: map[IPv4Addr]*groupEntry{}}
}

func igmpGroupAllowed(ip IPv4Addr) bool {
	if !ip.IsMulticast() {
		return false
	}
	// 224.0.0.0/24 is reserved for link-local protocols; applications
	// never join it directly.
	return !(ip[0] == 224 && ip[1] == 0 && ip[2] == 0)
}

// join adds ip to the membership table, idempotently.
func (t *igmpTable) join(ip IPv4Addr) bool {
	if !igmpGroupAllowed(ip) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.groups[ip]; ok {
		return true
	}
	t.groups[ip] = &groupEntry{ip: ip, reportTicks: -1}
	t.mu.Unlock()
	t.iface.updateMulticastFilter()
	t.sendReport(ip)
	t.mu.Lock()
	return true
}

// leave removes ip, idempotently, sending a Leave if we were the last
// reporter under IGMPv2.
func (t *igmpTable) leave(ip IPv4Addr) {
	t.mu.Lock()
	g, ok := t.groups[ip]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.groups, ip)
	v1 := t.v1Mode > 0
	wasReporter := g.lastReporter
	t.mu.Unlock()

	t.iface.updateMulticastFilter()
	if !v1 && wasReporter {
		t.sendLeave(ip)
	}
}

func (t *igmpTable) collectMcast() []MAC {
	t.mu.Lock()
	defer t.mu.Unlock()
	macs := make([]MAC, 0, len(t.groups))
	for ip := range t.groups {
		macs = append(macs, ip.MulticastMAC())
	}
	return macs
}

func igmpChecksum(b []byte) uint16 {
	return finalizeChecksum(checksum(b, 0))
}

func (t *igmpTable) sendReport(group IPv4Addr) {
	t.mu.Lock()
	v1 := t.v1Mode > 0
	t.mu.Unlock()

	f := t.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	typ := uint8(igmpTypeV2Report)
	if v1 {
		typ = igmpTypeV1Report
	}
	buildIGMP(f, typ, 0, group)
	ipv4EgressIGMP(t.iface, f, group, !v1)

	t.mu.Lock()
	if g, ok := t.groups[group]; ok {
		g.lastReporter = true
		g.reportTicks = -1
	}
	t.mu.Unlock()
}

func (t *igmpTable) sendLeave(group IPv4Addr) {
	f := t.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	buildIGMP(f, igmpTypeV2Leave, 0, group)
	ipv4EgressIGMP(t.iface, f, IPv4AllRouters, true)
}

func buildIGMP(f *Frame, typ uint8, maxResp uint8, group IPv4Addr) {
	hdr := f.Prepend(8)
	hdr[0] = typ
	hdr[1] = maxResp
	putUint16(hdr[2:4], 0)
	copy(hdr[4:8], group[:])
	putUint16(hdr[2:4], igmpChecksum(hdr))
}

// process handles an inbound IGMP message.
func (t *igmpTable) process(frame *Frame, dst IPv4Addr) {
	defer frame.Release()
	b := frame.Bytes()
	if len(b) < 8 {
		return
	}
	typ := b[0]
	maxResp := b[1]
	var group IPv4Addr
	copy(group[:], b[4:8])

	switch typ {
	case igmpTypeQuery:
		if dst == IPv4AllSystems && group.IsZero() {
			if maxResp == 0 {
				t.mu.Lock()
				t.v1Mode = igmpV1ModeTicks
				t.mu.Unlock()
				t.scheduleAll(10 * 5) // [0, 10s) at the 200 ms report tick
			} else {
				t.scheduleAll(int(maxResp))
			}
			return
		}
		if maxResp > 0 && dst == group {
			t.schedule(group, int(maxResp))
		}

	case igmpTypeV1Report, igmpTypeV2Report:
		t.mu.Lock()
		if g, ok := t.groups[group]; ok && g.reportTicks >= 0 {
			g.reportTicks = -1
			g.lastReporter = false
		}
		t.mu.Unlock()
	}
}

func (t *igmpTable) scheduleAll(maxTicks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip := range t.groups {
		t.scheduleLocked(ip, maxTicks)
	}
}

func (t *igmpTable) schedule(group IPv4Addr, maxTicks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scheduleLocked(group, maxTicks)
}

func (t *igmpTable) scheduleLocked(group IPv4Addr, maxTicks int) {
	g, ok := t.groups[group]
	if !ok {
		return
	}
	delay := int(t.iface.stack.randUint32()%uint32(maxTicks+1))
	g.reportTicks = delay
}

// tick drives the 200 ms report prescaler and the v1-compat timeout.
func (t *igmpTable) tick() {
	t.mu.Lock()
	t.prescale++
	fire := t.prescale >= igmpPrescaler
	if fire {
		t.prescale = 0
	}
	if t.v1Mode > 0 {
		t.v1Mode--
	}
	var due []IPv4Addr
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
