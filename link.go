package netcore

//
// Point-to-point link emulation between two frame endpoints, adapted
// from the teacher's link.go. The teacher forwards IP packets between
// two userspace gvisor stacks; here the unit of delivery is a raw
// Ethernet frame and the endpoints are anything that can accept one
// (typically a [*MockDriver] plugged into an [Interface]), which is
// enough to drive ARP/NDP/DHCP/TCP integration tests without real
// hardware.
//

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// FrameEndpoint is the narrow contract [NewLink] and [NewHub] need
// from a link partner: a place to deliver inbound frames, and a hook
// to observe outbound ones. [*MockDriver] satisfies this directly.
type FrameEndpoint interface {
	Deliver(frame []byte)
	SetOnSend(cb func(frame []byte))
}

// LinkDirection is the direction of a link.
type LinkDirection int

const (
	// LinkDirectionLeftToRight is the left->right link direction.
	LinkDirectionLeftToRight = LinkDirection(0)
	// LinkDirectionRightToLeft is the right->left link direction.
	LinkDirectionRightToLeft = LinkDirection(1)
)

// LinkConfig contains config for creating a [Link].
type LinkConfig struct {
	// LeftToRightPLR is the packet-loss rate in the left->right direction.
	LeftToRightPLR float64
	// LeftToRightDelay is the delay in the left->right direction.
	LeftToRightDelay time.Duration
	// RightToLeftDelay is the delay in the right->left direction.
	RightToLeftDelay time.Duration
	// RightToLeftPLR is the packet-loss rate in the right->left direction.
	RightToLeftPLR float64
}

// Link models a link between a "left" and a "right" [FrameEndpoint],
// forwarding frames with configurable one-way delay and packet loss
// in each direction. The zero value is invalid; use [NewLink].
type Link struct {
	closeOnce sync.Once
	shutdown  context.CancelFunc
	wg        sync.WaitGroup
}

// NewLink creates a [Link] and starts forwarding frames emitted by
// left into right and vice versa. Call [Link.Close] to stop.
func NewLink(logger Logger, left, right FrameEndpoint, config *LinkConfig) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	lnk := &Link{shutdown: cancel}

	leftLLM := newLinkLossesManager(config.LeftToRightPLR)
	rightLLM := newLinkLossesManager(config.RightToLeftPLR)

	fwdLR := newLinkForwardingState()
	fwdRL := newLinkForwardingState()

	lnk.wg.Add(2)
	go fwdLR.run(ctx, &lnk.wg, LinkDirectionLeftToRight, logger, leftLLM, config.LeftToRightDelay, right.Deliver)
	go fwdRL.run(ctx, &lnk.wg, LinkDirectionRightToLeft, logger, rightLLM, config.RightToLeftDelay, left.Deliver)

	left.SetOnSend(fwdLR.enqueue)
	right.SetOnSend(fwdRL.enqueue)

	return lnk
}

// Close stops forwarding on the link.
func (lnk *Link) Close() error {
	lnk.closeOnce.Do(func() {
		lnk.shutdown()
		lnk.wg.Wait()
	})
	return nil
}

// linkFrame is a frame in flight on a [Link], carrying its own
// delivery deadline (rather than the deadline living on a shared
// [*Frame], since the endpoints here own plain byte slices).
type linkFrame struct {
	payload  []byte
	deadline time.Time
}

// linkForwardingState is the forwarding state for one direction of a
// [Link]: an inbox of not-yet-delivered frames plus a fixed 20 ms
// ticker that delivers every frame whose deadline has passed, mirroring the teacher's
// linkForwardingState but operating on raw frames instead of *Frame.
type linkForwardingState struct {
	mu     sync.Mutex
	pend   []linkFrame
	notify chan struct{}
}

func newLinkForwardingState() *linkForwardingState {
	return &linkForwardingState{notify: make(chan struct{}, 1)}
}

// enqueue is installed as the sending endpoint's OnSend hook.
func (s *linkForwardingState) enqueue(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.mu.Lock()
	s.pend = append(s.pend, linkFrame{payload: cp})
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

const defaultLinkTickerInterval = 20 * time.Millisecond

func (s *linkForwardingState) run(
	ctx context.Context,
	wg *sync.WaitGroup,
	direction LinkDirection,
	logger Logger,
	llm *linkLossesManager,
	delay time.Duration,
	deliver func([]byte),
) {
	defer wg.Done()
	ticker := time.NewTicker(defaultLinkTickerInterval)
	defer ticker.Stop()
	now := time.Now

	assignDeadlines := func() {
		s.mu.Lock()
		for i := range s.pend {
			if s.pend[i].deadline.IsZero() {
				s.pend[i].deadline = now().Add(delay)
			}
		}
		s.mu.Unlock()
	}

	drainDue := func() {
		assignDeadlines()
		s.mu.Lock()
		var rest []linkFrame
		var due []linkFrame
		for _, f := range s.pend {
			if !f.deadline.After(now()) {
				due = append(due, f)
			} else {
				rest = append(rest, f)
			}
		}
		s.pend = rest
		s.mu.Unlock()
		for _, f := range due {
			if llm.shouldDrop() {
				logger.Debugf("netcore: link: dropped frame (%v)", direction)
				continue
			}
			deliver(f.payload)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
			drainDue()
		case <-ticker.C:
			drainDue()
		}
	}
}

// linkLossesManager manages packet loss emulation on a [Link].
type linkLossesManager struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	target float64
}

func newLinkLossesManager(targetPLR float64) *linkLossesManager {
	return &linkLossesManager{rnd: rand.New(rand.NewSource(1)), target: targetPLR}
}

func (llm *linkLossesManager) shouldDrop() bool {
	llm.mu.Lock()
	defer llm.mu.Unlock()
	if llm.target <= 0 {
		return false
	}
	return llm.rnd.Float64() < llm.target
}
