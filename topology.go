package netcore

//
// Test topologies, adapted from the teacher's topology.go. The
// teacher wires gvisor-backed UNetStacks; here the same shapes wire
// independently-implemented [*Stack] instances, each driven by a
// [*MockDriver], over [Link]/[Hub] instead of the teacher's
// Router/RouterPort.
//

import (
	"fmt"
	"sync"
)

// PPPTopology is a point-to-point topology: two [*Stack]s joined by a
// single [Link]. By convention the left stack is the client and the
// right is the server.
type PPPTopology struct {
	Client *Stack
	Server *Stack

	closeOnce sync.Once
	link      *Link
}

// NewPPPTopology builds a [PPPTopology] with one Ethernet interface
// per side, each backed by a [*MockDriver], connected by a [Link]
// with the given characteristics.
func NewPPPTopology(logger Logger, clientMAC, serverMAC MAC, lc *LinkConfig) (*PPPTopology, error) {
	client := NewStack(logger)
	server := NewStack(logger)

	clientDrv := NewMockDriver(clientMAC, 0)
	serverDrv := NewMockDriver(serverMAC, 0)

	if _, err := client.AddInterface(DefaultInterfaceConfig(clientMAC), clientDrv); err != nil {
		return nil, fmt.Errorf("netcore: ppp topology: client interface: %w", err)
	}
	if _, err := server.AddInterface(DefaultInterfaceConfig(serverMAC), serverDrv); err != nil {
		return nil, fmt.Errorf("netcore: ppp topology: server interface: %w", err)
	}

	link := NewLink(logger, clientDrv, serverDrv, lc)

	return &PPPTopology{Client: client, Server: server, link: link}, nil
}

// Close shuts down both stacks and the link joining them.
func (t *PPPTopology) Close() error {
	t.closeOnce.Do(func() {
		t.link.Close()
		t.Client.Close()
		t.Server.Close()
	})
	return nil
}

// StarTopology is a shared-segment topology: a [*Hub] in the middle,
// with any number of [*Stack]s attached to it.
type StarTopology struct {
	closeOnce sync.Once
	hub       *Hub
	logger    Logger
	stacks    []*Stack
}

// NewStarTopology builds an empty [StarTopology] around a fresh [*Hub].
func NewStarTopology(logger Logger) *StarTopology {
	return &StarTopology{hub: NewHub(logger), logger: logger}
}

// AddHost creates a new [*Stack] with one Ethernet interface attached
// to the topology's [*Hub] and returns it. Closing the [StarTopology]
// also closes every host it created.
func (t *StarTopology) AddHost(mac MAC) (*Stack, error) {
	s := NewStack(t.logger)
	drv := NewMockDriver(mac, 0)
	if _, err := s.AddInterface(DefaultInterfaceConfig(mac), drv); err != nil {
		return nil, fmt.Errorf("netcore: star topology: add host: %w", err)
	}
	t.hub.Attach(drv)
	t.stacks = append(t.stacks, s)
	return s, nil
}

// Close closes every host attached to the topology.
func (t *StarTopology) Close() error {
	t.closeOnce.Do(func() {
		for _, s := range t.stacks {
			s.Close()
		}
	})
	return nil
}
