package netcore

//
// TCP send contract, spec.md §4.8's "Send contract" paragraph.
//

import "time"

const tcpMaxRetries = 5

// GetBuf returns a frame positioned at the TCP payload offset, ready
// for the caller to fill up to size bytes and hand to [TCPSocket.Send].
func (t *TCPSocket) GetBuf(size int) *Frame {
	s := t.s
	s.mu.Lock()
	iface := s.iface
	s.mu.Unlock()
	if iface == nil {
		return nil
	}
	return iface.stack.pool.AllocNoFail()
}

// SendReady is the non-blocking gate [TCPSocket.Send] itself checks;
// exposed so callers can poll before building a buffer.
func (t *TCPSocket) SendReady() bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendReadyLocked()
}

func (s *tcpSocket) sendReadyLocked() bool {
	if s.state != tcpEstablished && s.state != tcpCloseWait {
		return false
	}
	if s.flags&tcpFlagClosing != 0 {
		return false
	}
	if s.flags&tcpFlagInCallback != 0 {
		return false
	}
	if s.flags&tcpFlagAckDeferred != 0 {
		return false
	}
	return true
}

// Send transmits buf (obtained from [TCPSocket.GetBuf]) as one
// segment, arming the push bit, retransmit timer, retry counter and
// alive timer (spec.md §4.8).
func (t *TCPSocket) Send(f *Frame, data []byte) (int, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sendReadyLocked() {
		f.Release()
		return 0, newError(KindWrongState, "tcp.send", nil)
	}
	if len(data) == 0 || len(data) > s.mss {
		f.Release()
		return 0, newError(KindInvalidParameter, "tcp.send", nil)
	}

	f.Append(data)
	flags := uint8(tcpWireACK | tcpWirePSH)
	buildTCPSegment(f, s, s.sendNext, s.recNext, flags, 0, nil)
	s.flags |= tcpFlagPushBit
	seq := s.sendNext
	s.enqueueLocked(f, seq, len(data), false)
	s.sendNext += uint32(len(data))
	s.armRetryLocked()
	s.aliveTimer = int(s.cfg.KeepAlive / time.Second)

	clone := f.Clone()
	if clone != nil {
		sendTCPSegmentV4(s, clone)
	}
	return len(data), nil
}

// enqueueLocked appends a segment to the retransmit queue, keeping
// the original frame so que_resend (tcp_retransmit.go) can resend the
// exact bytes without rebuilding the segment.
func (s *tcpSocket) enqueueLocked(f *Frame, seq uint32, dlen int, fin bool) {
	s.queue = append(s.queue, &retransmitEntry{
		frame: f,
		seq:   seq,
		dlen:  dlen,
		sent:  time.Now(),
		fin:   fin,
	})
}

func (s *tcpSocket) armRetryLocked() {
	s.retryTimer = s.rtoTicksLocked()
	s.retryCount = 0
}

// rtoTicksLocked converts the VJ-estimator smoothed RTT/deviation
// (tcp_congestion.go) into a 100 ms-tick RTO, per spec.md §4.8's
// "(RttSa>>3 + RttSv) << min(retries_used, 7)" with retries_used=0.
func (s *tcpSocket) rtoTicksLocked() int {
	rtoMillis := (s.rttSA >> 3) + s.rttSV
	if rtoMillis < 200 {
		rtoMillis = 200
	}
	ticks := rtoMillis / 100
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}
