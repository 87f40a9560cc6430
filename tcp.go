package netcore

//
// TCP (RFC 793/5681/5961), spec.md §4.8. Socket acquisition and the
// state machine live here; the receive path (tcp_recv.go), send
// contract (tcp_send.go), congestion control (tcp_congestion.go) and
// retransmit scheduler (tcp_retransmit.go) are split out the way the
// teacher splits its own multi-concern files by responsibility.
//

import (
	"sync"
	"time"
)

type tcpState int

const (
	tcpUnused tcpState = iota
	tcpClosed
	tcpListen
	tcpSynSent
	tcpSynReceived
	tcpEstablished
	tcpFinWait1
	tcpFinWait2
	tcpCloseWait
	tcpClosing
	tcpLastAck
	tcpTimeWait
)

// tcpFlag is the socket's internal bitset (spec.md §4.8's "internal
// flags bitset {Closing, KeepAliveActive, Resend, FastRecovery,
// InCallback, AckDeferred, KeepAliveSegment, PushBit}").
type tcpFlag uint16

const (
	tcpFlagClosing tcpFlag = 1 << iota
	tcpFlagKeepAliveActive
	tcpFlagResend
	tcpFlagFastRecovery
	tcpFlagInCallback
	tcpFlagAckDeferred
	tcpFlagKeepAliveSegment
	tcpFlagPushBit
)

// tcpTypeBit is the socket's configuration bitset.
type tcpTypeBit uint16

const (
	tcpTypeServerListen tcpTypeBit = 1 << iota
	tcpTypeKeepAlive
	tcpTypeFlowControl
	tcpTypeDelayAck
)

// wire flag bits, byte 13 of the TCP header.
const (
	tcpWireFIN = 1 << 0
	tcpWireSYN = 1 << 1
	tcpWireRST = 1 << 2
	tcpWirePSH = 1 << 3
	tcpWireACK = 1 << 4
	tcpWireURG = 1 << 5
)

const tcpHeaderLen = 20

// TCPEvent is delivered to a socket's callback (spec.md §7's
// user-visible TCP events).
type TCPEvent int

const (
	TCPEventConnect TCPEvent = iota
	TCPEventEstablished
	TCPEventData
	TCPEventACK
	TCPEventClosed
	TCPEventAborted
)

// TCPAction is a callback's verdict.
type TCPAction int

const (
	// TCPAccept is the default: proceed normally (accept the
	// connection, ACK the data).
	TCPAccept TCPAction = iota
	// TCPReject tells a Listen socket to refuse an inbound SYN with a
	// reset.
	TCPReject
	// TCPNoAck withholds the ACK for delivered data, so the peer
	// resends once the application has drained its buffer.
	TCPNoAck
)

// TCPCallback is a socket's event handler. It must not call back into
// the socket it was invoked for (spec.md §4.8's InCallback guard).
type TCPCallback func(sock *TCPSocket, ev TCPEvent, data []byte) TCPAction

// TCPConfig configures the pool of sockets a [Stack] can allocate
// (spec.md §6: "TCP socket count & window/MSS").
type TCPConfig struct {
	MaxSockets  int
	MSS         int
	WindowSize  uint32
	PortLo      uint16
	PortHi      uint16
	TimeWait    time.Duration
	KeepAlive   time.Duration
	DelayAck    bool
	FlowControl bool
}

// DefaultTCPConfig returns spec.md's defaults: dynamic source ports
// 49152..65535, a 200 ms TimeWait dwell (Open Question 3).
func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		MaxSockets: 8,
		MSS:        1460,
		WindowSize: 8192,
		PortLo:     49152,
		PortHi:     65535,
		TimeWait:   200 * time.Millisecond,
		DelayAck:   true,
	}
}

// retransmitEntry is one unacked segment on a socket's retransmit
// queue (spec.md §4.8's "unacked-frame queue"). The socket keeps these
// entries in a slice; unlike the pending queues in neighbor.go, the
// frames are not linked through [queueNode].
type retransmitEntry struct {
	frame  *Frame // owns the on-wire segment, ready to resend verbatim
	seq    uint32
	dlen   int
	sent   time.Time // zero for a retransmission, so RTT is not sampled
	fin    bool
	resent bool // true once this frame has been resent in the current retransmit round
}

// tcpSocket is one TCP connection's control block (spec.md §3's "TCP
// socket").
type tcpSocket struct {
	manager *tcpManager
	cfg     TCPConfig
	cb      TCPCallback

	mu    sync.Mutex
	state tcpState
	flags tcpFlag
	typ   tcpTypeBit

	ipVersion int
	iface     *Interface
	localPort uint16
	peerPort  uint16
	localV4   IPv4Addr
	peerV4    IPv4Addr
	localV6   IPv6Addr
	peerV6    IPv6Addr

	sendUna uint32
	sendNext uint32
	sendChk  uint32
	recNext  uint32
	sendWnd  uint32
	wl1, wl2 uint32

	cwnd     uint32
	ssthresh uint32
	dupAcks  int
	mss      int
	recWin   uint32

	rttSA, rttSV int // fixed-point smoothed RTT (<<3) / mean deviation (<<2), milliseconds

	retryTimer int // 100 ms ticks
	retryCount int
	aliveTimer int // 1 s ticks
	ackTimer   int // 100 ms ticks, delayed ACK

	queue []*retransmitEntry

	lastUrgent uint16 // never assigned; the urgent pointer is parsed into tcpHeader.urgPtr and not acted upon

	closeOnceDone bool
}

// TCPSocket is the public handle to a [tcpSocket].
type TCPSocket struct{ s *tcpSocket }

// tcpManager owns the fixed pool of socket control blocks for one
// [Stack] (spec.md Design Notes §9: "the TCP port cursor... become
// fields of a Stack context object").
type tcpManager struct {
	stack *Stack
	cfg   TCPConfig

	mu        sync.Mutex
	sockets   []*tcpSocket
	nextPort  uint16
}

func newTCPManager(s *Stack) *tcpManager {
	return newTCPManagerWithConfig(s, DefaultTCPConfig())
}

func newTCPManagerWithConfig(s *Stack, cfg TCPConfig) *tcpManager {
	m := &tcpManager{stack: s, cfg: cfg, nextPort: cfg.PortLo}
	for i := 0; i < cfg.MaxSockets; i++ {
		m.sockets = append(m.sockets, &tcpSocket{manager: m, cfg: cfg, state: tcpUnused})
	}
	return m
}

// NewTCPSocket allocates a control block from the stack's fixed pool
// (spec.md §4.8's get_socket).
func (s *Stack) NewTCPSocket(cb TCPCallback) (*TCPSocket, error) {
	return s.tcp.getSocket(cb)
}

func (m *tcpManager) getSocket(cb TCPCallback) (*TCPSocket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sock := range m.sockets {
		sock.mu.Lock()
		free := sock.state == tcpUnused
		if free {
			sock.state = tcpClosed
			sock.cb = cb
			sock.cwnd = uint32(m.cfg.MSS) * 2
			sock.ssthresh = 65535
			sock.mss = m.cfg.MSS
			sock.recWin = m.cfg.WindowSize
			if m.cfg.DelayAck {
				sock.typ |= tcpTypeDelayAck
			}
			if m.cfg.FlowControl {
				sock.typ |= tcpTypeFlowControl
			}
		}
		sock.mu.Unlock()
		if free {
			return &TCPSocket{s: sock}, nil
		}
	}
	return nil, newError(KindBusy, "tcp.get_socket", nil)
}

func (m *tcpManager) allocPort() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.nextPort
	if m.nextPort == m.cfg.PortHi {
		m.nextPort = m.cfg.PortLo
	} else {
		m.nextPort++
	}
	return p
}

func (m *tcpManager) findByV4(local IPv4Addr, localPort uint16, peer IPv4Addr, peerPort uint16) *tcpSocket {
	m.mu.Lock()
	defer m.mu.Unlock()
	var listener *tcpSocket
	for _, sock := range m.sockets {
		sock.mu.Lock()
		if sock.ipVersion == 4 && sock.localPort == localPort {
			if sock.state != tcpUnused && sock.state != tcpClosed && sock.peerV4 == peer && sock.peerPort == peerPort {
				sock.mu.Unlock()
				return sock
			}
			if sock.state == tcpListen {
				listener = sock
			}
		}
		sock.mu.Unlock()
	}
	return listener
}

func (m *tcpManager) allocFreeSocket() *tcpSocket {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sock := range m.sockets {
		sock.mu.Lock()
		if sock.state == tcpUnused || sock.state == tcpClosed {
			sock.mu.Unlock()
			return sock
		}
		sock.mu.Unlock()
	}
	return nil
}

// Listen marks the socket as a listening server on port (spec.md
// §4.8's listen(id, port)).
func (t *TCPSocket) Listen(iface *Interface, port uint16) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != tcpClosed {
		return newError(KindWrongState, "tcp.listen", nil)
	}
	s.iface = iface
	s.ipVersion = 4
	s.localPort = port
	s.typ |= tcpTypeServerListen
	s.state = tcpListen
	return nil
}

// Connect actively opens a connection to peer:peerPort (spec.md
// §4.8's connect(id, peer, local_port)).
func (t *TCPSocket) Connect(iface *Interface, peer IPv4Addr, peerPort, localPort uint16) error {
	s := t.s
	s.mu.Lock()
	if s.state != tcpClosed {
		s.mu.Unlock()
		return newError(KindWrongState, "tcp.connect", nil)
	}
	if localPort == 0 {
		localPort = s.manager.allocPort()
	}
	s.iface = iface
	s.ipVersion = 4
	s.localV4 = iface.IPv4Address()
	s.localPort = localPort
	s.peerV4 = peer
	s.peerPort = peerPort
	s.sendUna = s.manager.stack.randUint32()
	s.sendNext = s.sendUna + 1
	s.sendChk = s.sendNext
	s.recWin = s.cfg.WindowSize
	s.mss = clampMSS(iface.mtu - ipv4HeaderLen - tcpHeaderLen)
	s.state = tcpSynSent
	isn := s.sendUna
	mss := s.mss
	s.mu.Unlock()

	f := iface.stack.pool.AllocNoFail()
	if f == nil {
		return newError(KindError, "tcp.connect", nil)
	}
	buildTCPSegment(f, s, isn, 0, tcpWireSYN, mss, nil)
	return sendTCPSegmentV4(s, f)
}

func clampMSS(mss int) int {
	if mss < 536 {
		return 536
	}
	if mss > 1440 {
		return 1440
	}
	return mss
}

// Close half-closes the connection, sending FIN once outstanding data
// drains (spec.md §4.8's close path).
func (t *TCPSocket) Close() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case tcpEstablished:
		if len(s.queue) > 0 {
			s.flags |= tcpFlagClosing
			return nil
		}
		s.sendFINLocked()
		s.state = tcpFinWait1
	case tcpCloseWait:
		s.sendFINLocked()
		s.state = tcpLastAck
	}
	return nil
}

// Abort sends a RST and returns the socket to Listen (server) or
// Closed (client).
func (t *TCPSocket) Abort() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendRSTLocked()
	s.resetLocked()
	return nil
}

func (s *tcpSocket) resetLocked() {
	for _, e := range s.queue {
		e.frame.Release()
	}
	s.queue = nil
	if s.typ&tcpTypeServerListen != 0 {
		s.state = tcpListen
	} else {
		s.state = tcpClosed
	}
}

func (s *tcpSocket) deliver(ev TCPEvent, data []byte) TCPAction {
	if s.cb == nil {
		return TCPAccept
	}
	s.flags |= tcpFlagInCallback
	action := s.cb(&TCPSocket{s: s}, ev, data)
	s.flags &^= tcpFlagInCallback
	return action
}

// tcpIngress4 is the IPv4 dispatch entry point (spec.md §4.5's
// protocol dispatch table).
func tcpIngress4(iface *Interface, frame *Frame, src, dst IPv4Addr) {
	defer frame.Release()
	b := frame.Bytes()
	h, ok := parseTCP(b)
	if !ok {
		return
	}
	sock := iface.stack.tcp.findByV4(dst, h.dstPort, src, h.srcPort)
	if sock == nil {
		return // no listener and no matching connection: silently drop
	}
	tcpProcessSegment(sock, iface, 4, src, IPv6Addr{}, h, b[h.hdrLen:])
}

func tcpIngress6(iface *Interface, frame *Frame, src, dst IPv6Addr) {
	frame.Release() // IPv6 TCP dispatch shares the v4 manager's port space but has no v6-keyed lookup yet
}

type tcpHeader struct {
	srcPort, dstPort uint16
	seq, ack         uint32
	hdrLen           int
	flags            uint8
	window           uint16
	urgPtr           uint16
	mss              int
}

func parseTCP(b []byte) (tcpHeader, bool) {
	var h tcpHeader
	if len(b) < tcpHeaderLen {
		return h, false
	}
	h.srcPort = getUint16(b[0:2])
	h.dstPort = getUint16(b[2:4])
	h.seq = getUint32(b[4:8])
	h.ack = getUint32(b[8:12])
	h.hdrLen = int(b[12]>>4) * 4
	if h.hdrLen < tcpHeaderLen || h.hdrLen > len(b) {
		return h, false
	}
	h.flags = b[13]
	h.window = getUint16(b[14:16])
	h.urgPtr = getUint16(b[18:20])
	h.mss = parseTCPMSSOption(b[tcpHeaderLen:h.hdrLen])
	return h, true
}

func parseTCPMSSOption(opts []byte) int {
	for i := 0; i+1 < len(opts); {
		switch opts[i] {
		case 0:
			return 0
		case 1:
			i++
		case 2:
			if i+4 > len(opts) {
				return 0
			}
			return int(getUint16(opts[i+2 : i+4]))
		default:
			if i+1 >= len(opts) {
				return 0
			}
			n := int(opts[i+1])
			if n < 2 {
				return 0
			}
			i += n
		}
	}
	return 0
}

// buildTCPSegment writes a TCP header (and, for SYN, the MSS option)
// in front of f's current payload. checksum is computed by the
// caller's v4/v6-specific send helper, which knows the pseudo-header.
func buildTCPSegment(f *Frame, s *tcpSocket, seq, ack uint32, flags uint8, mss int, _ []byte) {
	optLen := 0
	if flags&tcpWireSYN != 0 {
		optLen = 4
	}
	hdr := f.Prepend(tcpHeaderLen + optLen)
	putUint16(hdr[0:2], s.localPort)
	putUint16(hdr[2:4], s.peerPort)
	putUint32(hdr[4:8], seq)
	putUint32(hdr[8:12], ack)
	hdr[12] = byte((tcpHeaderLen + optLen) / 4 << 4)
	hdr[13] = flags
	putUint16(hdr[14:16], uint16(s.recWin))
	putUint16(hdr[16:18], 0) // checksum, filled by the v4/v6 send helper
	putUint16(hdr[18:20], 0)
	if optLen == 4 {
		hdr[20] = 2
		hdr[21] = 4
		putUint16(hdr[22:24], uint16(mss))
	}
}

func sendTCPSegmentV4(s *tcpSocket, f *Frame) error {
	src := s.localV4
	dst := s.peerV4
	pseudo := pseudoHeaderChecksumV4(transportProtoTCP, src, dst, f.Len())
	sum := finalizeChecksum(checksum(f.Bytes(), pseudo))
	putUint16(f.Bytes()[16:18], sum)
	ipv4Egress(s.iface, f, dst, ProtoTCP, true)
	return nil
}

func (s *tcpSocket) sendFINLocked() {
	f := s.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	buildTCPSegment(f, s, s.sendNext, s.recNext, tcpWireFIN|tcpWireACK, 0, nil)
	s.enqueueLocked(f, s.sendNext, 0, true)
	s.sendNext++
	s.armRetryLocked()
}

func (s *tcpSocket) sendRSTLocked() {
	f := s.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	buildTCPSegment(f, s, s.sendNext, s.recNext, tcpWireRST|tcpWireACK, 0, nil)
	sendTCPSegmentV4(s, f)
}

func (s *tcpSocket) sendACKLocked() {
	f := s.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	buildTCPSegment(f, s, s.sendNext, s.recNext, tcpWireACK, 0, nil)
	sendTCPSegmentV4(s, f)
}

func (s *tcpSocket) sendChallengeACKLocked() {
	s.sendACKLocked()
}
