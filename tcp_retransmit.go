package netcore

//
// TCP retransmit scheduler, spec.md §4.8's "Retransmit scheduler" and
// "Retransmit queue" paragraphs. Driven by the 100 ms tick
// (retry timer) and the 1 s tick (keep-alive).
//

// tick100ms drives every socket's retry timer (spec.md §5: "a global
// 100 ms tick drives ... TCP retry timers").
func (m *tcpManager) tick100ms() {
	m.mu.Lock()
	sockets := append([]*tcpSocket(nil), m.sockets...)
	m.mu.Unlock()
	for _, s := range sockets {
		s.tick100ms()
	}
}

// tick1s drives keep-alive scheduling. TimeWait expiry is counted in
// 100 ms ticks by tick100ms.
func (m *tcpManager) tick1s() {
	m.mu.Lock()
	sockets := append([]*tcpSocket(nil), m.sockets...)
	m.mu.Unlock()
	for _, s := range sockets {
		s.tick1s()
	}
}

func (s *tcpSocket) tick100ms() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == tcpTimeWait {
		s.retryTimer--
		if s.retryTimer <= 0 {
			s.state = tcpClosed
		}
		return
	}

	if s.ackTimer > 0 {
		s.ackTimer--
		if s.ackTimer == 0 && s.flags&tcpFlagAckDeferred != 0 {
			s.flags &^= tcpFlagAckDeferred
			s.sendACKLocked()
		}
	}

	if len(s.queue) == 0 {
		return
	}
	s.retryTimer--
	if s.retryTimer > 0 {
		return
	}
	s.onRetransmitTimeoutLocked()
}

func (s *tcpSocket) tick1s() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.typ&tcpTypeKeepAlive == 0 || s.state != tcpEstablished {
		return
	}
	if s.aliveTimer > 0 {
		s.aliveTimer--
		return
	}
	if len(s.queue) > 0 {
		return // outstanding data already drives the retry machinery
	}
	s.flags |= tcpFlagKeepAliveActive
	s.sendKeepAliveProbeLocked()
}

func (s *tcpSocket) sendKeepAliveProbeLocked() {
	f := s.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	// RFC 9293 keep-alive: one byte older than SendNext, to provoke an
	// ACK without advancing state on either side.
	buildTCPSegment(f, s, s.sendNext-1, s.recNext, tcpWireACK, 0, nil)
	sendTCPSegmentV4(s, f)
	s.armRetryLocked()
}

// onRetransmitTimeoutLocked implements spec.md §4.8's retry-exhaustion
// and que_resend behavior.
func (s *tcpSocket) onRetransmitTimeoutLocked() {
	const maxRetries = tcpMaxRetries
	if s.retryCount >= maxRetries {
		for _, e := range s.queue {
			e.frame.Release()
		}
		s.queue = nil
		s.sendRSTLocked()
		action := s.deliver(TCPEventAborted, nil)
		_ = action
		s.resetLocked()
		return
	}

	if s.retryCount == 0 {
		win := s.sendWnd
		if s.cwnd < win {
			win = s.cwnd
		}
		s.ssthresh = win / 2
		if s.ssthresh < uint32(2*s.mss) {
			s.ssthresh = uint32(2 * s.mss)
		}
	}
	s.cwnd = uint32(s.mss)
	s.flags &^= tcpFlagFastRecovery
	for _, e := range s.queue {
		e.resent = false
	}

	s.quResendLocked()

	s.retryCount++
	shift := s.retryCount
	if shift > 7 {
		shift = 7
	}
	s.retryTimer = s.rtoTicksLocked() << uint(shift)
}

// quResendLocked retransmits the first not-yet-resent frame on the
// queue, marking it resent; if it is the closing socket's final FIN
// segment it is sent as-is (spec.md: "if it was the last frame in a
// closing socket it also emits FIN").
func (s *tcpSocket) quResendLocked() {
	for _, e := range s.queue {
		if e.resent {
			continue
		}
		e.resent = true
		clone := e.frame.Clone()
		if clone == nil {
			return
		}
		sendTCPSegmentV4(s, clone)
		return
	}
}
