package netcore

//
// Driver: the narrow contract the engine consumes from the MAC/PHY
// (spec.md §6's "Driver API (consumed)"). The physical driver itself
// is explicitly out of scope (spec.md §1); this file only pins down
// the shape every concrete driver — a mock for tests, a real
// raw-socket driver (driver_raw_linux.go) — must implement.
//

// Capabilities is the driver capability bitset (spec.md §6:
// "get_capabilities (bitset enumerating RX/TX offload...)").
type Capabilities uint32

const (
	CapRxChecksumIPv4 Capabilities = 1 << iota
	CapTxChecksumIPv4
	CapRxChecksumIPv6
	CapTxChecksumIPv6
	CapRxChecksumUDP
	CapTxChecksumUDP
	CapRxChecksumTCP
	CapTxChecksumTCP
	CapMACFromHardware
	CapEventDriven
	CapVLANFilter
	CapWiFiBypassMode
)

// Has reports whether all bits in want are set.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// ControlOp is the operation code passed to [Driver.Control].
type ControlOp int

const (
	CtrlConfigure ControlOp = iota
	CtrlRxOn
	CtrlRxOff
	CtrlTxOn
	CtrlTxOff
	CtrlFlush
	CtrlVLANFilter
)

// SendFlags qualifies a [Driver.SendFrame] call.
type SendFlags int

const (
	// SendFragment indicates more data for the same frame follows in
	// a subsequent call (spec.md §4.1's two-call VLAN insertion path,
	// "first 16 bytes TX_FRAGMENT").
	SendFragment SendFlags = iota
	// SendComplete indicates this call carries the entire frame.
	SendComplete
)

// LinkState is the physical link status a driver reports.
type LinkState struct {
	Up     bool
	Speed  uint32 // Mbps, 0 if unknown
	FullDx bool
}

// DriverEventKind distinguishes the asynchronous events a driver can
// raise through the callback passed to [Driver.Initialize].
type DriverEventKind int

const (
	// DriverEventRxFrame indicates at least one frame is ready in the
	// driver's RX FIFO (event-driven collaboration mode, spec.md §4.1).
	DriverEventRxFrame DriverEventKind = iota
)

// DriverEvent is delivered to the callback passed to
// [Driver.Initialize].
type DriverEvent struct {
	Kind DriverEventKind
}

// Driver is the MAC/PHY (or Wi-Fi) collaborator the engine drives.
// Errors are reported as [*Error] with [KindDriverError] or
// [KindBusy] (ARM_DRIVER_ERROR_BUSY equivalent).
type Driver interface {
	// Initialize registers the event callback used in event-driven
	// mode. Drivers that only support polling may ignore eventCB.
	Initialize(eventCB func(DriverEvent)) error

	// PowerControl turns the MAC on/off.
	PowerControl(on bool) error

	// GetCapabilities returns the driver's offload/feature bitset.
	GetCapabilities() Capabilities

	// SetMACAddress programs the hardware MAC address.
	SetMACAddress(mac MAC) error

	// GetMACAddress returns the current hardware MAC address.
	GetMACAddress() MAC

	// Control issues a control-plane operation; arg's meaning depends
	// on op (e.g. the VLAN ID for [CtrlVLANFilter]).
	Control(op ControlOp, arg any) error

	// SetAddressFilter programs the hardware multicast filter. If the
	// driver cannot do this precisely, it should return
	// [KindDriverError] so the caller falls back to accept-all-multicast.
	SetAddressFilter(macs []MAC) error

	// SendFrame transmits buf. flags distinguishes a fragment call
	// (more bytes of the same frame follow) from a complete send.
	SendFrame(buf []byte, flags SendFlags) error

	// ReadFrame reads the oldest queued RX frame into buf, returning
	// the number of bytes written. Passing a nil buf discards the
	// frame without copying it (spec.md §6: "len=0 discards").
	ReadFrame(buf []byte) (int, error)

	// GetRXFrameSize returns the size of the next queued RX frame, or
	// 0 if none is queued.
	GetRXFrameSize() int

	// LinkState polls the current physical link state.
	LinkState() LinkState
}
