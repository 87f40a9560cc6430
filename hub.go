package netcore

//
// Hub: a shared Ethernet broadcast segment, adapted from the teacher's
// router.go. The teacher's Router keyed delivery off a parsed
// destination IP address and a per-destination routing table; a real
// Ethernet segment has no such table — every attached port sees every
// frame any other port transmits, and it is each stack's own MAC/VLAN
// filtering (see iface.go) that decides whether to keep it. That is a
// closer match to what a multi-station Wi-Fi BSS or an unmanaged
// switch actually does, and it is what spec.md's interface worker
// already assumes when it talks about hardware multicast filters.
//

import "sync"

// Hub broadcasts every frame received on one port to all other
// attached ports. The zero value is invalid; use [NewHub].
type Hub struct {
	logger Logger
	mu     sync.Mutex
	ports  []*hubPort
}

// NewHub creates an empty [Hub].
func NewHub(logger Logger) *Hub {
	return &Hub{logger: logger}
}

// hubPort is one attachment point on a [Hub].
type hubPort struct {
	hub *Hub
	ep  FrameEndpoint
}

// Attach wires ep into the hub: frames ep sends are broadcast to
// every other attached endpoint, and ep receives everything else
// sends.
func (h *Hub) Attach(ep FrameEndpoint) {
	p := &hubPort{hub: h, ep: ep}
	h.mu.Lock()
	h.ports = append(h.ports, p)
	h.mu.Unlock()
	ep.SetOnSend(p.broadcast)
}

func (p *hubPort) broadcast(frame []byte) {
	p.hub.mu.Lock()
	ports := append([]*hubPort(nil), p.hub.ports...)
	p.hub.mu.Unlock()
	for _, other := range ports {
		if other == p {
			continue
		}
		cp := make([]byte, len(frame))
		copy(cp, frame)
		other.ep.Deliver(cp)
	}
}

// Detach removes ep from the hub; it stops receiving broadcast
// frames. ep's own OnSend hook is left installed but inert.
func (h *Hub) Detach(ep FrameEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.ports {
		if p.ep == ep {
			h.ports = append(h.ports[:i], h.ports[i+1:]...)
			return
		}
	}
}
