package netcore

//
// TCP congestion control (RFC 5681) and the Jacobson/Karels RTT
// estimator, spec.md §4.8's "Congestion control" and "Process acknr"
// paragraphs.
//

import "time"

// initialCwndLocked computes the initial congestion window per
// RFC 5681: 4*MSS if MSS<=1095, else 3*MSS.
func (s *tcpSocket) initialCwndLocked() uint32 {
	if s.mss <= 1095 {
		return uint32(4 * s.mss)
	}
	return uint32(3 * s.mss)
}

// onAckedBytesLocked folds newly-acknowledged bytes into the
// congestion window: slow start while CWnd<=SsThresh, congestion
// avoidance otherwise. Called once per ACK that advances SendUna.
func (s *tcpSocket) onAckedBytesLocked() {
	mss := uint32(s.mss)
	if s.cwnd <= s.ssthresh {
		s.cwnd += mss
	} else {
		s.cwnd += (mss * mss) / s.cwnd
	}
	if s.cwnd > 65535 {
		s.cwnd = 65535
	}
}

// onDuplicateAckLocked implements spec.md §4.8 rule 5: on the 3rd
// duplicate ACK, enter fast retransmit; on the 4th and later while in
// FastRecovery, inflate the window.
func (s *tcpSocket) onDuplicateAckLocked() (fastRetransmit bool) {
	if s.dupAcks < 255 {
		s.dupAcks++
	}
	switch {
	case s.dupAcks == 3:
		sendWin := s.sendWnd
		win := sendWin
		if s.cwnd < win {
			win = s.cwnd
		}
		s.ssthresh = win / 2
		if s.ssthresh < uint32(2*s.mss) {
			s.ssthresh = uint32(2 * s.mss)
		}
		s.cwnd = s.ssthresh + uint32(3*s.mss)
		s.flags |= tcpFlagFastRecovery
		s.sendChk = s.sendNext
		for _, e := range s.queue {
			e.sent = time.Time{}
		}
		return true
	case s.dupAcks >= 4 && s.flags&tcpFlagFastRecovery != 0:
		s.cwnd += uint32(s.mss)
		if s.cwnd > 65535 {
			s.cwnd = 65535
		}
	}
	return false
}

// updateRTTLocked applies the Van Jacobson smoothed-RTT/mean-deviation
// estimator to a freshly measured sample (milliseconds). sa is kept
// scaled by 8 and sv by 4, matching spec.md's "sa += (m - sa/8)"
// formulation, so (sa>>3)+sv is the smoothed RTT plus four deviations.
func (s *tcpSocket) updateRTTLocked(sampleMillis int) {
	if s.rttSA == 0 && s.rttSV == 0 {
		s.rttSA = sampleMillis << 3
		s.rttSV = sampleMillis << 1
		return
	}
	m := sampleMillis - (s.rttSA >> 3)
	s.rttSA += m
	if m < 0 {
		m = -m
	}
	s.rttSV += (m - (s.rttSV >> 2))
}
