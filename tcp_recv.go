package netcore

//
// TCP receive path, spec.md §4.8's "State machine" and "Established —
// receive path" paragraphs (the nine numbered rules).
//

import "time"

// tcpProcessSegment is the entry point once tcpIngress4 has located
// the owning socket (possibly a Listen socket, in which case a fresh
// control block is spawned here). tcpIngress6 drops every segment and
// never calls it.
func tcpProcessSegment(sock *tcpSocket, iface *Interface, ipVersion int, srcV4 IPv4Addr, srcV6 IPv6Addr, h tcpHeader, payload []byte) {
	sock.mu.Lock()

	if sock.state == tcpListen {
		sock.mu.Unlock()
		tcpHandleListenSYN(sock, iface, srcV4, h)
		return
	}

	if sock.state == tcpSynSent {
		tcpHandleSynSent(sock, h)
		sock.mu.Unlock()
		return
	}

	defer sock.mu.Unlock()
	tcpHandleEstablishedLike(sock, h, payload)
}

func tcpHandleListenSYN(listener *tcpSocket, iface *Interface, src IPv4Addr, h tcpHeader) {
	if h.flags&tcpWireRST != 0 {
		return
	}
	if h.flags&tcpWireACK != 0 {
		// no connection matched this ACK; spec.md's Listen socket
		// itself never replies, it is the embryonic SynReceived
		// socket's job once spawned.
		return
	}
	if h.flags&tcpWireSYN == 0 {
		return
	}

	sock := listener.manager.allocFreeSocket()
	if sock == nil {
		return
	}

	sock.mu.Lock()
	listener.mu.Lock()
	sock.iface = iface
	sock.ipVersion = 4
	sock.cb = listener.cb
	sock.localV4 = listener.localV4
	sock.localPort = listener.localPort
	sock.cfg = listener.cfg
	sock.typ = listener.typ &^ tcpTypeServerListen
	listener.mu.Unlock()

	sock.peerV4 = src
	sock.peerPort = h.srcPort
	sock.recNext = h.seq + 1
	sock.mss = clampMSS(h.mss)
	if sock.mss == 0 || sock.mss < 536 {
		sock.mss = clampMSS(iface.mtu - ipv4HeaderLen - tcpHeaderLen)
	}
	sock.recWin = sock.cfg.WindowSize
	sock.state = tcpClosed
	action := sock.deliver(TCPEventConnect, nil)
	if action == TCPReject {
		sock.resetLocked()
		sock.mu.Unlock()
		return
	}
	if action == TCPNoAck {
		sock.resetLocked() // let the peer's SYN retry
		sock.mu.Unlock()
		return
	}

	sock.sendUna = sock.iface.stack.randUint32()
	sock.sendNext = sock.sendUna + 1
	sock.sendChk = sock.sendNext
	sock.cwnd = sock.initialCwndLocked()
	sock.ssthresh = 65535
	sock.state = tcpSynReceived

	f := iface.stack.pool.AllocNoFail()
	if f != nil {
		buildTCPSegment(f, sock, sock.sendUna, sock.recNext, tcpWireSYN|tcpWireACK, sock.mss, nil)
		sendTCPSegmentV4(sock, f)
	}
	sock.mu.Unlock()
}

func tcpHandleSynSent(sock *tcpSocket, h tcpHeader) {
	if h.flags&tcpWireRST != 0 {
		sock.resetLocked()
		return
	}
	if h.flags&tcpWireSYN != 0 && h.flags&tcpWireACK != 0 {
		if h.ack != sock.sendNext {
			return
		}
		sock.recNext = h.seq + 1
		sock.sendUna = h.ack
		sock.sendWnd = uint32(h.window)
		sock.wl1, sock.wl2 = h.seq, h.ack
		sock.cwnd = sock.initialCwndLocked()
		sock.state = tcpEstablished
		sock.sendACKLocked()
		sock.deliver(TCPEventEstablished, nil)
		return
	}
	if h.flags&tcpWireSYN != 0 {
		// simultaneous open
		sock.recNext = h.seq + 1
		sock.state = tcpSynReceived
		f := sock.iface.stack.pool.AllocNoFail()
		if f != nil {
			buildTCPSegment(f, sock, sock.sendUna, sock.recNext, tcpWireSYN|tcpWireACK, sock.mss, nil)
			sendTCPSegmentV4(sock, f)
		}
	}
}

func tcpHandleEstablishedLike(sock *tcpSocket, h tcpHeader, payload []byte) {
	// Rule 1: RST (RFC 5961 §3.2).
	if h.flags&tcpWireRST != 0 {
		if h.seq == sock.recNext {
			sock.queueReleaseAllLocked()
			sock.deliver(TCPEventAborted, nil)
			sock.resetLocked()
			return
		}
		if tcpSeqInWindow(h.seq, sock.recNext, sock.recWin) {
			sock.sendChallengeACKLocked()
		}
		return
	}

	// Rule 2: stray SYN.
	if h.flags&tcpWireSYN != 0 {
		if h.flags&tcpWireACK != 0 && h.ack == sock.sendNext {
			sock.sendACKLocked()
		}
		return
	}

	// Rule 3: ACK required past the handshake.
	if h.flags&tcpWireACK == 0 {
		return
	}

	if sock.state == tcpSynReceived {
		if h.ack != sock.sendNext {
			sock.sendRSTLocked()
			return
		}
		sock.sendUna = h.ack
		sock.sendWnd = uint32(h.window)
		sock.wl1, sock.wl2 = h.seq, h.ack
		sock.state = tcpEstablished
		sock.deliver(TCPEventEstablished, nil)
	}

	// Rule 4: send-window update (RFC 1122 §4.2.2.20).
	if tcpSeqLE(sock.sendUna, h.ack) && tcpSeqLE(h.ack, sock.sendNext) {
		if tcpSeqLT(sock.wl2, h.ack) || sock.wl1 != h.seq || uint32(h.window) > sock.sendWnd {
			sock.sendWnd = uint32(h.window)
			sock.wl1, sock.wl2 = h.seq, h.ack
		}
	}

	// Rule 5: duplicate-ACK detection.
	outstanding := sock.sendUna != sock.sendNext
	zeroPayload := len(payload) == 0
	noSynFin := h.flags&(tcpWireSYN|tcpWireFIN) == 0
	sameWindow := uint32(h.window) == sock.sendWnd
	if outstanding && zeroPayload && noSynFin && tcpSeqLE(h.ack, sock.sendChk) && sameWindow && h.ack == sock.sendUna {
		if sock.onDuplicateAckLocked() {
			sock.quResendLocked()
		}
	} else if h.ack != sock.sendUna {
		sock.dupAcks = 0
		sock.flags &^= tcpFlagFastRecovery
	}

	// Rule 6: process acknr — release acked queue entries, sample RTT.
	if tcpSeqLT(sock.sendUna, h.ack) {
		sock.processAckedLocked(h.ack)
		sock.sendUna = h.ack
		if len(sock.queue) == 0 {
			sock.retryCount = 0
		}
		if sock.flags&tcpFlagClosing != 0 && len(sock.queue) == 0 {
			sock.sendFINLocked()
			sock.state = tcpFinWait1
			sock.flags &^= tcpFlagClosing
		}
	}

	// Rule 7/8: receive-sequence handling and data delivery.
	sock.handleIncomingDataLocked(h, payload)

	// Rule 9: FIN.
	if h.flags&tcpWireFIN != 0 {
		sock.handleFINLocked(h)
	}
}

func (s *tcpSocket) handleIncomingDataLocked(h tcpHeader, payload []byte) {
	dlen := uint32(len(payload))
	switch {
	case h.seq == s.recNext && dlen > 0:
		action := s.deliver(TCPEventData, payload)
		if action == TCPNoAck {
			return
		}
		s.recNext += dlen
		if s.typ&tcpTypeFlowControl != 0 {
			if s.recWin > dlen {
				s.recWin -= dlen
			} else {
				s.recWin = 0
			}
		}
		if s.typ&tcpTypeDelayAck != 0 && s.ackTimer == 0 && s.recWin > 0 {
			s.flags |= tcpFlagAckDeferred
			s.ackTimer = 2 // 200 ms at the 100 ms tick
			return
		}
		s.sendACKLocked()

	case dlen > 0 && h.seq+dlen == s.recNext:
		// already-acked retransmission
		s.sendACKLocked()

	case dlen == 0 && h.seq == s.recNext+1:
		// keep-alive probe
		s.sendACKLocked()
		s.aliveTimer = int(s.cfg.KeepAlive.Seconds())

	case dlen > 0:
		s.sendACKLocked()
	}
}

func (s *tcpSocket) handleFINLocked(h tcpHeader) {
	s.recNext = h.seq + 1
	s.sendACKLocked()
	s.deliver(TCPEventClosed, nil)
	switch s.state {
	case tcpEstablished:
		if len(s.queue) == 0 {
			s.sendFINLocked()
			s.state = tcpLastAck
		} else {
			s.state = tcpCloseWait
		}
	case tcpFinWait1:
		s.state = tcpClosing
	case tcpFinWait2:
		s.state = tcpTimeWait
		s.retryTimer = int(s.cfg.TimeWait / (100 * time.Millisecond))
		if s.retryTimer <= 0 {
			s.retryTimer = 2
		}
	}
}

// processAckedLocked releases every retransmit-queue entry fully
// covered by newAck and samples RTT from non-retransmitted frames.
func (s *tcpSocket) processAckedLocked(newAck uint32) {
	kept := s.queue[:0]
	for _, e := range s.queue {
		end := e.seq + uint32(e.dlen)
		if e.fin {
			end++
		}
		if tcpSeqLE(end, newAck) {
			if !e.sent.IsZero() {
				s.updateRTTLocked(int(time.Since(e.sent).Milliseconds()))
			}
			e.frame.Release()
			continue
		}
		kept = append(kept, e)
	}
	s.queue = kept
	s.onAckedBytesLocked()
}

func (s *tcpSocket) queueReleaseAllLocked() {
	for _, e := range s.queue {
		e.frame.Release()
	}
	s.queue = nil
}

func tcpSeqLE(a, b uint32) bool { return int32(a-b) <= 0 }
func tcpSeqLT(a, b uint32) bool { return int32(a-b) < 0 }

func tcpSeqInWindow(seq, recNext, win uint32) bool {
	return tcpSeqLE(recNext, seq) && tcpSeqLT(seq, recNext+win)
}
