package netcore

//
// MockDriver: an in-memory [Driver] for tests, the "mock drivers for
// tests" the spec.md Design Notes call for. It has no physical layer
// at all: frames handed to SendFrame are delivered to an optional
// OnSend hook (wired up by [NewLink]/[NewHub] for multi-stack tests),
// and frames queued with Deliver become readable by the owning
// [Interface]'s worker.
//

import "sync"

// MockDriver is a software-only [Driver] implementation.
type MockDriver struct {
	mu       sync.Mutex
	mac      MAC
	caps     Capabilities
	link     LinkState
	rx       [][]byte
	eventCB  func(DriverEvent)
	onSend   func(frame []byte)
	sentLog  [][]byte
	fragment []byte
}

// NewMockDriver creates a [MockDriver] with the given MAC address and
// capability bitset, initially link-up.
func NewMockDriver(mac MAC, caps Capabilities) *MockDriver {
	return &MockDriver{
		mac:  mac,
		caps: caps,
		link: LinkState{Up: true, Speed: 100, FullDx: true},
	}
}

var _ Driver = &MockDriver{}

// Initialize implements Driver.
func (d *MockDriver) Initialize(eventCB func(DriverEvent)) error {
	d.mu.Lock()
	d.eventCB = eventCB
	d.mu.Unlock()
	return nil
}

// PowerControl implements Driver.
func (d *MockDriver) PowerControl(on bool) error { return nil }

// GetCapabilities implements Driver.
func (d *MockDriver) GetCapabilities() Capabilities { return d.caps }

// SetMACAddress implements Driver.
func (d *MockDriver) SetMACAddress(mac MAC) error {
	d.mu.Lock()
	d.mac = mac
	d.mu.Unlock()
	return nil
}

// GetMACAddress implements Driver.
func (d *MockDriver) GetMACAddress() MAC {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mac
}

// Control implements Driver.
func (d *MockDriver) Control(op ControlOp, arg any) error { return nil }

// SetAddressFilter implements Driver.
func (d *MockDriver) SetAddressFilter(macs []MAC) error { return nil }

// SendFrame implements Driver.
func (d *MockDriver) SendFrame(buf []byte, flags SendFlags) error {
	d.mu.Lock()
	if flags == SendFragment {
		d.fragment = append(d.fragment, buf...)
		d.mu.Unlock()
		return nil
	}
	full := append(d.fragment, buf...)
	d.fragment = nil
	cb := d.onSend
	cp := make([]byte, len(full))
	copy(cp, full)
	d.sentLog = append(d.sentLog, cp)
	d.mu.Unlock()
	if cb != nil {
		cb(cp)
	}
	return nil
}

// ReadFrame implements Driver.
func (d *MockDriver) ReadFrame(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0, ErrWouldBlock
	}
	frame := d.rx[0]
	d.rx = d.rx[1:]
	if buf == nil {
		return 0, nil
	}
	n := copy(buf, frame)
	return n, nil
}

// GetRXFrameSize implements Driver.
func (d *MockDriver) GetRXFrameSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0
	}
	return len(d.rx[0])
}

// LinkState implements Driver.
func (d *MockDriver) LinkState() LinkState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.link
}

// SetLinkState is a test helper to flip the link up/down.
func (d *MockDriver) SetLinkState(s LinkState) {
	d.mu.Lock()
	d.link = s
	d.mu.Unlock()
}

// SetOnSend installs the hook invoked with a copy of every complete
// frame transmitted, used by [Link]/[Hub] to deliver to a peer.
func (d *MockDriver) SetOnSend(cb func(frame []byte)) {
	d.mu.Lock()
	d.onSend = cb
	d.mu.Unlock()
}

// Deliver queues frame as incoming and fires the event callback if
// one is registered (event-driven collaboration mode).
func (d *MockDriver) Deliver(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.mu.Lock()
	d.rx = append(d.rx, cp)
	cb := d.eventCB
	d.mu.Unlock()
	if cb != nil {
		cb(DriverEvent{Kind: DriverEventRxFrame})
	}
}

// SentFrames returns a copy of every complete frame transmitted so
// far, for test assertions.
func (d *MockDriver) SentFrames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sentLog))
	copy(out, d.sentLog)
	return out
}
