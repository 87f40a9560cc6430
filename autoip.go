package netcore

//
// AutoIP (RFC 3927) link-local fallback, spec.md §4.7: entered when
// DHCP Selecting exhausts its retry budget. Picks a pseudo-random
// 169.254/16 candidate, ARP-probes it three times at 1 s intervals
// (reusing [arpCache.probe]), and either adopts it or tries again.
//

import (
	"sync"
	"time"
)

const (
	autoIPRediscoverSeconds = 120
	autoIPNetmask           = 0xffff0000 // 255.255.0.0
)

type autoIPState struct {
	client *dhcpClient

	mu              sync.Mutex
	active          bool
	probing         bool
	candidate       IPv4Addr
	rediscoverTimer int
}

func newAutoIPState(c *dhcpClient) *autoIPState {
	return &autoIPState{client: c}
}

func (a *autoIPState) start() {
	a.mu.Lock()
	a.active = true
	a.rediscoverTimer = autoIPRediscoverSeconds
	a.mu.Unlock()
	a.beginProbe()
}

func (a *autoIPState) stop() {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
}

func (a *autoIPState) tick1s() {
	a.mu.Lock()
	if !a.active || a.probing {
		a.mu.Unlock()
		return
	}
	a.rediscoverTimer--
	fire := a.rediscoverTimer <= 0
	if fire {
		a.rediscoverTimer = autoIPRediscoverSeconds
	}
	a.mu.Unlock()
	if fire {
		a.client.sendDiscover() // keep re-broadcasting DISCOVER per spec.md §4.7
		a.beginProbe()
	}
}

func (a *autoIPState) pickCandidate() IPv4Addr {
	iface := a.client.iface
	for {
		r := iface.stack.randUint32()
		third := byte(1 + r%254) // 169.254.1.0 - 169.254.254.255
		fourth := byte(r >> 8)
		if third == 0 || third == 255 {
			continue
		}
		return IPv4Addr{169, 254, third, fourth}
	}
}

func (a *autoIPState) beginProbe() {
	candidate := a.pickCandidate()
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.probing = true
	a.candidate = candidate
	a.mu.Unlock()

	iface := a.client.iface
	result := iface.arp.probe(candidate)
	go func() {
		var conflict bool
		select {
		case conflict = <-result:
		case <-time.After(4 * time.Second):
			conflict = false
		}
		a.mu.Lock()
		stillActive := a.active && a.candidate == candidate
		a.mu.Unlock()
		if !stillActive {
			return
		}
		if conflict {
			a.beginProbe()
			return
		}
		a.adopt(candidate)
	}()
}

func (a *autoIPState) adopt(ip IPv4Addr) {
	a.mu.Lock()
	a.probing = false
	a.mu.Unlock()

	iface := a.client.iface
	iface.mu.Lock()
	iface.v4.address = ip
	iface.v4.netmask = IPv4Addr{255, 255, 0, 0}
	iface.v4.gateway = IPv4Addr{}
	iface.mu.Unlock()

	a.client.notify(DHCPNotifyAddress)
	iface.updateMulticastFilter()
	iface.arp.notify()
}
