package netcore

//
// SLAAC (RFC 4862) address autoconfiguration FSM, spec.md §4.3. Driven
// by Router Advertisements parsed in ndp.go; owns the interface's
// single active temporary global address.
//

import (
	"sync"
	"time"
)

type slaacFSMState int

const (
	slaacInit slaacFSMState = iota
	slaacStart
	slaacDiscover
	slaacDAD
	slaacActive
)

// slaacPrefix is a Router-Advertisement-learned prefix awaiting or
// backing an autoconfigured address.
type slaacPrefix struct {
	prefix    IPv6Addr
	valid     uint32 // seconds remaining
	preferred uint32
}

// slaacState is one interface's SLAAC FSM and learned-prefix cache.
type slaacState struct {
	iface *Interface

	mu           sync.Mutex
	fsmState     slaacFSMState
	prefixes     []slaacPrefix
	candidate    IPv6Addr
	discover     int           // RS sent so far in the Discover phase
	rsTimer      int           // seconds until next RS
	activePrefix IPv6Addr      // prefix backing the active temporary address
	addrAge      uint32        // seconds the active temporary address has been held
}

// minValidLifetime is RFC 4862's floor on how long a generated
// address is retained once active, even if its backing prefix's
// advertised valid lifetime would expire sooner.
const minValidLifetime = 7200

func newSLAACState(iface *Interface) *slaacState {
	return &slaacState{iface: iface}
}

func (s *slaacState) onLinkUp() {
	s.mu.Lock()
	s.fsmState = slaacStart
	s.discover = 0
	s.mu.Unlock()

	delay := 100*time.Millisecond + s.iface.stack.randDuration(900*time.Millisecond)
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.fsmState != slaacStart {
			s.mu.Unlock()
			return
		}
		s.fsmState = slaacDiscover
		s.discover = 1
		s.rsTimer = 4
		s.mu.Unlock()
		s.iface.ndp.sendRS()
	})
}

func (s *slaacState) onLinkDown() {
	s.mu.Lock()
	s.fsmState = slaacInit
	s.prefixes = nil
	s.mu.Unlock()
	s.iface.mu.Lock()
	s.iface.v6.hasTemp = false
	s.iface.mu.Unlock()
}

// onLinkLocked reports whether ip falls in a prefix this interface
// currently believes is on-link (used by ndpCache.cacheFind's routing
// decision).
func (s *slaacState) onLinkLocked(ip IPv6Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prefixes {
		match := true
		for i := 0; i < 8; i++ {
			if ip[i] != p.prefix[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (s *slaacState) tick1s() {
	s.mu.Lock()
	if s.fsmState == slaacDiscover {
		s.rsTimer--
		if s.rsTimer <= 0 && s.discover < 3 {
			s.discover++
			s.rsTimer = 4
			s.mu.Unlock()
			s.iface.ndp.sendRS()
			s.mu.Lock()
		}
	}
	for i := range s.prefixes {
		if s.prefixes[i].valid > 0 {
			s.prefixes[i].valid--
		}
	}

	var expired, promote bool
	var nextPrefix IPv6Addr
	if s.fsmState == slaacActive {
		s.addrAge++
		activeValid, activeFound := uint32(0), false
		for _, p := range s.prefixes {
			if p.prefix == s.activePrefix {
				activeValid, activeFound = p.valid, true
				break
			}
		}
		// RFC 4862: an address is retained for at least minValidLifetime
		// even once its backing prefix's advertised valid lifetime runs
		// out; only once that floor is also passed does it truly expire.
		if (!activeFound || activeValid == 0) && s.addrAge >= minValidLifetime {
			expired = true
			for _, p := range s.prefixes {
				if p.prefix != s.activePrefix && p.valid > 0 {
					nextPrefix, promote = p.prefix, true
					break
				}
			}
		}
	}

	// prune prefixes that are both exhausted and not backing the
	// (possibly about-to-be-replaced) active address.
	kept := s.prefixes[:0]
	for _, p := range s.prefixes {
		if p.valid == 0 && p.prefix != s.activePrefix {
			continue
		}
		kept = append(kept, p)
	}
	s.prefixes = kept

	if expired {
		s.fsmState = slaacDiscover
		s.discover = 0
		s.rsTimer = 4
		s.activePrefix = IPv6Addr{}
		s.addrAge = 0
	}
	s.mu.Unlock()

	if !expired {
		return
	}
	s.iface.mu.Lock()
	s.iface.v6.hasTemp = false
	s.iface.mu.Unlock()
	if promote {
		s.beginDAD(SLAACAddress(nextPrefix, s.iface.mac), nextPrefix)
	}
}

// onPrefixInfo is called by ndp.go's Prefix Information option
// handling once it has validated option_len/prefix_len/flags.
func (s *slaacState) onPrefixInfo(prefix IPv6Addr, valid, preferred uint32) {
	s.mu.Lock()
	found := false
	for i := range s.prefixes {
		if s.prefixes[i].prefix == prefix {
			s.prefixes[i].valid, s.prefixes[i].preferred = valid, preferred
			found = true
			break
		}
	}
	if !found {
		s.prefixes = append(s.prefixes, slaacPrefix{prefix: prefix, valid: valid, preferred: preferred})
	}
	shouldProbe := s.fsmState != slaacDAD
	candidate := SLAACAddress(prefix, s.iface.mac)
	s.mu.Unlock()

	if !shouldProbe {
		return
	}
	s.beginDAD(candidate, prefix)
}

func (s *slaacState) beginDAD(candidate, prefix IPv6Addr) {
	s.mu.Lock()
	if s.fsmState == slaacActive && s.iface.v6.hasTemp && s.iface.v6.tempAddr == candidate {
		s.mu.Unlock()
		return
	}
	s.fsmState = slaacDAD
	s.candidate = candidate
	s.mu.Unlock()

	result := s.iface.ndp.probeDAD(candidate)
	go func() {
		select {
		case dup := <-result:
			if dup {
				s.mu.Lock()
				s.fsmState = slaacDiscover
				s.mu.Unlock()
				return
			}
		case <-time.After(1100 * time.Millisecond):
		}
		s.mu.Lock()
		s.fsmState = slaacActive
		s.activePrefix = prefix
		s.addrAge = 0
		s.mu.Unlock()
		s.iface.mu.Lock()
		s.iface.v6.tempAddr, s.iface.v6.hasTemp = candidate, true
		s.iface.mu.Unlock()
	}()
}
