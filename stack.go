package netcore

//
// Stack: the context object Design Notes §9 calls for, replacing the
// original's global per-protocol singletons (IPv4/IPv6 control
// blocks, DHCP socket counter, TCP port cursor, RNG state,
// reassembly scratch frames) with fields on one struct that tests can
// instantiate side by side.
//

import (
	"math/rand"
	"sync"
	"time"
)

// StackConfig configures a [Stack]'s shared resources.
type StackConfig struct {
	// PoolCapacity is the number of frames in the shared [Pool].
	PoolCapacity int
	// PoolBufSize is the payload capacity of each pooled frame.
	PoolBufSize int
}

// DefaultStackConfig returns reasonable defaults for an embedded-style
// deployment: a modest, fixed number of frame buffers.
func DefaultStackConfig() StackConfig {
	return StackConfig{PoolCapacity: 64, PoolBufSize: MaxFrameSize}
}

// Stack owns everything an embedder's process needs exactly one of:
// the frame pool, the set of interfaces, the TCP port cursor, the RNG
// and the IPv4/IPv6 fragmentation scratch frames. There is no package
// level mutable state; construct as many Stacks as needed.
type Stack struct {
	logger Logger
	pool   *Pool

	mu     sync.Mutex // the "global lock" of spec.md §5
	ifaces []*Interface

	rngMu sync.Mutex
	rng   *rand.Rand

	tcp *tcpManager

	v4Frag fragScratch
	v6Frag fragScratch

	v4reasm *ipv4ReassemblyTable
	v6reasm *ipv6ReassemblyTable

	ticks     *tickScheduler
	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewStack constructs a [Stack] with default resource sizing. Use
// [NewStackWithConfig] to override the frame pool dimensions.
func NewStack(logger Logger) *Stack {
	return NewStackWithConfig(logger, DefaultStackConfig())
}

// NewStackWithConfig constructs a [Stack] with explicit resource
// sizing.
func NewStackWithConfig(logger Logger, cfg StackConfig) *Stack {
	s := &Stack{
		logger:  logger,
		pool:    NewPool(cfg.PoolCapacity, cfg.PoolBufSize, nil),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		closeCh: make(chan struct{}),
	}
	s.v4reasm = newIPv4ReassemblyTable()
	s.v6reasm = newIPv6ReassemblyTable()
	s.tcp = newTCPManager(s)
	s.ticks = newTickScheduler(s)
	s.ticks.start()
	return s
}

// Pool returns the frame pool shared by every interface of the stack.
func (s *Stack) Pool() *Pool { return s.pool }

// Logger returns the stack's logger.
func (s *Stack) Logger() Logger { return s.logger }

// randUint32 returns a pseudo-random uint32, used for ISNs, XIDs,
// AutoIP address candidates and SLAAC startup jitter.
func (s *Stack) randUint32() uint32 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Uint32()
}

// randDuration returns a pseudo-random duration uniformly distributed
// in [0, max).
func (s *Stack) randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return time.Duration(s.rng.Int63n(int64(max)))
}

// Interfaces returns the stack's interfaces in the order they were
// added.
func (s *Stack) Interfaces() []*Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Interface, len(s.ifaces))
	copy(out, s.ifaces)
	return out
}

// AddInterface attaches drv as a new [Interface] and starts its
// worker goroutine.
func (s *Stack) AddInterface(cfg InterfaceConfig, drv Driver) (*Interface, error) {
	iface, err := newInterface(s, cfg, drv)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ifaces = append(s.ifaces, iface)
	s.mu.Unlock()
	iface.start()
	return iface, nil
}

// loopbackInterface finds the interface configured with the IPv4
// loopback address, if any (spec.md §4.5's routing rule "127/8 ⇒
// loopback interface"). The loopback pseudo-interface itself is out
// of scope (spec.md §1); this only recognizes one if an embedder adds
// it like any other interface.
func (s *Stack) loopbackInterface() *Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iface := range s.ifaces {
		if iface.v4.address.IsLoopback() {
			return iface
		}
	}
	return nil
}

// defaultInterface returns the first interface added to the stack,
// whether or not it has IPv4 configured, used as the fallback route for global broadcast and non-on-link
// destinations (spec.md §4.5 egress routing).
func (s *Stack) defaultInterface() *Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ifaces) == 0 {
		return nil
	}
	return s.ifaces[0]
}

// Close shuts down every interface and stops the tick scheduler.
func (s *Stack) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.ticks.stop()
		s.mu.Lock()
		ifaces := append([]*Interface(nil), s.ifaces...)
		s.mu.Unlock()
		for _, iface := range ifaces {
			iface.Close()
		}
	})
	return nil
}

// fragScratch is the singleton reassembly/fragmentation scratch frame
// per direction spec.md §5 describes ("guarded by the main-loop
// serialization"); here guarded by the stack's global lock instead.
type fragScratch struct {
	frame *Frame
}
