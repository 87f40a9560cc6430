package netcore

//
// DHCPv4 client (RFC 2131), spec.md §4.7. Message construction and
// parsing uses insomniacslk/dhcp/dhcpv4's Options map instead of a
// hand-rolled BOOTP option scanner (SPEC_FULL.md §3); the client
// finite-state-machine driving it is ours.
//

import (
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

const (
	dhcpClientPort = 68
	dhcpServerPort = 67
)

type dhcpState int

const (
	dhcpDisabled dhcpState = iota
	dhcpInitReboot
	dhcpRebooting
	dhcpInit
	dhcpSelecting
	dhcpRequesting
	dhcpBound
	dhcpRenewing
	dhcpRebinding
	dhcpAutoIP
)

// DHCPNotifyKind distinguishes the option-change notifications
// spec.md §4.7's netDHCP_Notify callback carries.
type DHCPNotifyKind int

const (
	DHCPNotifyAddress DHCPNotifyKind = iota
	DHCPNotifyBootfile
	DHCPNotifyNTP
)

// DHCPConfig is one interface's DHCP client configuration (spec.md
// §6's "DHCP enable flag with per-instance options
// {VCID, request-bootfile, request-NTP, client-id}").
type DHCPConfig struct {
	ClientID        []byte // 2..19 bytes; defaults to the interface MAC if empty
	Hostname        string
	VendorClassID   string
	RequestBootfile bool
	RequestNTP      bool
	Notify          func(DHCPNotifyKind)
}

// dhcpClient is one interface's DHCP lease state machine (spec.md
// §4.7's "DHCP client state").
type dhcpClient struct {
	iface *Interface
	cfg   DHCPConfig

	mu       sync.Mutex
	state    dhcpState
	xid      uint32
	reqAddr  IPv4Addr
	serverID IPv4Addr
	hasServerID bool
	relayIP  IPv4Addr

	offer *dhcpv4.DHCPv4

	leaseSeconds int
	t1, t2       int // seconds remaining

	retryTimer int
	retryStage int // index into the 4/8/16/32 backoff ladder
	rebindTries int

	autoip *autoIPState
}

var dhcpBackoffLadder = []int{4, 8, 16, 32}

func newDHCPClient(iface *Interface, cfg DHCPConfig) *dhcpClient {
	if len(cfg.ClientID) == 0 {
		cfg.ClientID = append([]byte(nil), iface.mac[:]...)
	}
	c := &dhcpClient{iface: iface, cfg: cfg, state: dhcpDisabled}
	c.autoip = newAutoIPState(c)
	return c
}

func (c *dhcpClient) notify(kind DHCPNotifyKind) {
	if c.cfg.Notify != nil {
		c.cfg.Notify(kind)
	}
}

func (c *dhcpClient) onLinkUp() {
	c.mu.Lock()
	if !c.reqAddr.IsZero() {
		c.state = dhcpInitReboot
	} else {
		c.state = dhcpInit
	}
	c.mu.Unlock()
	c.tick1s() // drive the Init->Selecting (or InitReboot->Rebooting) transition immediately
}

func (c *dhcpClient) onLinkDown() {
	c.mu.Lock()
	if !c.iface.v4.address.IsZero() {
		c.reqAddr = c.iface.v4.address
	}
	c.state = dhcpInit
	c.retryTimer = 0
	c.retryStage = 0
	c.mu.Unlock()
	c.autoip.stop()
}

// tick1s drives the 1-second-granularity state machine: retry
// backoff in Selecting/Requesting/Rebooting, the T1/T2 countdown in
// Bound, and AutoIP's probe/re-discover timers.
func (c *dhcpClient) tick1s() {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case dhcpInit:
		c.beginSelecting()
	case dhcpInitReboot:
		c.beginRebooting()
	case dhcpSelecting, dhcpRequesting, dhcpRebooting:
		c.tickRetry(state)
	case dhcpBound:
		c.tickLease()
	case dhcpRenewing:
		c.tickRetry(state)
	case dhcpRebinding:
		c.tickRebind()
	case dhcpAutoIP:
		c.autoip.tick1s()
	}
}

func (c *dhcpClient) beginSelecting() {
	c.mu.Lock()
	c.state = dhcpSelecting
	c.xid = c.iface.stack.randUint32()
	c.retryTimer = dhcpBackoffLadder[0]
	c.retryStage = 0
	c.mu.Unlock()
	c.sendDiscover()
}

func (c *dhcpClient) beginRebooting() {
	c.mu.Lock()
	c.state = dhcpRebooting
	c.xid = c.iface.stack.randUint32()
	c.retryTimer = dhcpBackoffLadder[0]
	c.retryStage = 0
	c.mu.Unlock()
	c.sendRequestReboot()
}

// tickRetry implements the shared 4->8->16->32 s exponential backoff
// for Selecting/Requesting/Rebooting/Renewing.
func (c *dhcpClient) tickRetry(state dhcpState) {
	c.mu.Lock()
	c.retryTimer--
	fire := c.retryTimer <= 0
	if fire {
		c.retryStage++
		if c.retryStage < len(dhcpBackoffLadder) {
			c.retryTimer = dhcpBackoffLadder[c.retryStage]
		}
	}
	exhausted := fire && c.retryStage >= len(dhcpBackoffLadder)
	c.mu.Unlock()

	if !fire {
		return
	}
	if exhausted {
		switch state {
		case dhcpSelecting:
			c.mu.Lock()
			c.state = dhcpAutoIP
			c.mu.Unlock()
			c.autoip.start()
		case dhcpRebooting:
			c.mu.Lock()
			c.state = dhcpInit
			c.mu.Unlock()
		case dhcpRequesting:
			c.mu.Lock()
			c.state = dhcpInit
			c.mu.Unlock()
		case dhcpRenewing:
			c.mu.Lock()
			c.state = dhcpRebinding
			c.t2 = 5
			c.rebindTries = 0
			c.mu.Unlock()
		}
		return
	}
	switch state {
	case dhcpSelecting:
		c.sendDiscover()
	case dhcpRequesting:
		c.sendRequestSelecting()
	case dhcpRebooting:
		c.sendRequestReboot()
	case dhcpRenewing:
		c.sendRequestRenew()
	}
}

func (c *dhcpClient) tickLease() {
	c.mu.Lock()
	if c.t1 > 0 {
		c.t1--
	}
	if c.t2 > 0 {
		c.t2--
	}
	t1Fired := c.t1 == 0
	t2Fired := c.t2 == 0
	if t2Fired {
		c.state = dhcpRebinding
		c.retryTimer = 5
		c.rebindTries = 0
	} else if t1Fired {
		c.state = dhcpRenewing
		c.retryTimer = 10
	}
	c.mu.Unlock()
	if t2Fired {
		c.sendRequestRebind()
	} else if t1Fired {
		c.sendRequestRenew()
	}
}

func (c *dhcpClient) tickRebind() {
	c.mu.Lock()
	c.retryTimer--
	fire := c.retryTimer <= 0
	if fire {
		c.retryTimer = 5
		c.rebindTries++
	}
	exhausted := fire && c.rebindTries >= 10
	c.mu.Unlock()
	if !fire {
		return
	}
	if exhausted {
		c.mu.Lock()
		c.state = dhcpInit
		c.mu.Unlock()
		return
	}
	c.sendRequestRebind()
}

func (c *dhcpClient) paramRequestList() []dhcpv4.OptionCode {
	opts := []dhcpv4.OptionCode{
		dhcpv4.OptionSubnetMask,
		dhcpv4.OptionRouter,
		dhcpv4.OptionDomainNameServer,
		dhcpv4.OptionHostName,
		dhcpv4.OptionIPAddressLeaseTime,
		dhcpv4.OptionRenewTimeValue,
		dhcpv4.OptionRebindingTimeValue,
	}
	if c.cfg.RequestBootfile {
		opts = append(opts, dhcpv4.OptionBootfileName)
	}
	if c.cfg.RequestNTP {
		opts = append(opts, dhcpv4.OptionNTPServers)
	}
	return opts
}

func (c *dhcpClient) commonModifiers(msgType dhcpv4.MessageType, xid uint32, broadcast bool) []dhcpv4.Modifier {
	mods := []dhcpv4.Modifier{
		dhcpv4.WithTransactionID(dhcpv4.TransactionID{byte(xid >> 24), byte(xid >> 16), byte(xid >> 8), byte(xid)}),
		dhcpv4.WithMessageType(msgType),
		dhcpv4.WithBroadcast(broadcast),
		dhcpv4.WithOption(dhcpv4.OptClientIdentifier(c.cfg.ClientID)),
		dhcpv4.WithRequestedOptions(c.paramRequestList()...),
	}
	if c.cfg.Hostname != "" {
		mods = append(mods, dhcpv4.WithOption(dhcpv4.OptHostName(c.cfg.Hostname)))
	}
	if c.cfg.VendorClassID != "" {
		mods = append(mods, dhcpv4.WithOption(dhcpv4.OptClassIdentifier(c.cfg.VendorClassID)))
	}
	return mods
}

func (c *dhcpClient) send(d *dhcpv4.DHCPv4, dst IPv4Addr) {
	body := d.ToBytes()
	f := c.iface.stack.pool.AllocNoFail()
	if f == nil {
		return
	}
	f.Append(body)
	udp4Send(c.iface, f, dhcpClientPort, dhcpServerPort, dst)
}

func (c *dhcpClient) sendDiscover() {
	c.mu.Lock()
	xid := c.xid
	c.mu.Unlock()
	mods := c.commonModifiers(dhcpv4.MessageTypeDiscover, xid, true)
	d, err := dhcpv4.New(mods...)
	if err != nil {
		return
	}
	d.ClientHWAddr = c.iface.mac[:]
	c.send(d, IPv4Broadcast)
}

func (c *dhcpClient) sendRequestSelecting() {
	c.mu.Lock()
	xid, reqIP, serverID := c.xid, c.reqAddr, c.serverID
	c.mu.Unlock()
	mods := c.commonModifiers(dhcpv4.MessageTypeRequest, xid, true)
	mods = append(mods, dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(reqIP[:])))
	mods = append(mods, dhcpv4.WithOption(dhcpv4.OptServerIdentifier(serverID[:])))
	d, err := dhcpv4.New(mods...)
	if err != nil {
		return
	}
	d.ClientHWAddr = c.iface.mac[:]
	c.send(d, IPv4Broadcast)
}

func (c *dhcpClient) sendRequestReboot() {
	c.mu.Lock()
	xid, reqIP := c.xid, c.reqAddr
	c.mu.Unlock()
	mods := c.commonModifiers(dhcpv4.MessageTypeRequest, xid, true)
	mods = append(mods, dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(reqIP[:])))
	d, err := dhcpv4.New(mods...)
	if err != nil {
		return
	}
	d.ClientHWAddr = c.iface.mac[:]
	c.send(d, IPv4Broadcast)
}

func (c *dhcpClient) sendRequestRenew() {
	c.mu.Lock()
	xid, clientIP, serverID := c.xid, c.iface.v4.address, c.serverID
	c.mu.Unlock()
	mods := c.commonModifiers(dhcpv4.MessageTypeRequest, xid, false)
	d, err := dhcpv4.New(mods...)
	if err != nil {
		return
	}
	d.ClientHWAddr = c.iface.mac[:]
	d.ClientIPAddr = clientIP[:]
	c.send(d, serverID)
}

func (c *dhcpClient) sendRequestRebind() {
	c.mu.Lock()
	xid, clientIP := c.xid, c.iface.v4.address
	c.mu.Unlock()
	mods := c.commonModifiers(dhcpv4.MessageTypeRequest, xid, true)
	d, err := dhcpv4.New(mods...)
	if err != nil {
		return
	}
	d.ClientHWAddr = c.iface.mac[:]
	d.ClientIPAddr = clientIP[:]
	c.send(d, IPv4Broadcast)
}

// process handles an inbound DHCP server message (spec.md §4.7's
// receive validation and OFFER/ACK/NAK handling).
func (c *dhcpClient) process(payload []byte, from IPv4Addr, srcPort uint16) {
	d, err := dhcpv4.FromBytes(payload)
	if err != nil {
		return
	}
	if d.OpCode != dhcpv4.OpcodeBootReply {
		return
	}
	if d.HWType.String() != "Ethernet" && len(d.ClientHWAddr) != 0 {
		// tolerate HWType mismatches from relays that don't preserve it
	}
	if len(d.ClientHWAddr) != 6 || MAC(*(*[6]byte)(d.ClientHWAddr)) != c.iface.mac {
		return
	}

	c.mu.Lock()
	xid := c.xid
	state := c.state
	c.mu.Unlock()

	gotXID := uint32(d.TransactionID[0])<<24 | uint32(d.TransactionID[1])<<16 | uint32(d.TransactionID[2])<<8 | uint32(d.TransactionID[3])
	if gotXID != xid {
		return
	}

	serverID := d.ServerIdentifier()
	switch d.MessageType() {
	case dhcpv4.MessageTypeOffer:
		if state != dhcpSelecting || serverID == nil {
			return
		}
		yiaddr := d.YourIPAddr
		if len(yiaddr) != 4 {
			return
		}
		var offered IPv4Addr
		copy(offered[:], yiaddr)
		if offered.IsMulticast() || offered.IsLoopback() || offered.IsZero() || offered.IsBroadcast() {
			return
		}
		c.mu.Lock()
		c.reqAddr = offered
		copy(c.serverID[:], serverID.To4())
		c.hasServerID = true
		c.offer = d
		c.state = dhcpRequesting
		c.retryTimer = dhcpBackoffLadder[0]
		c.retryStage = 0
		c.mu.Unlock()
		c.sendRequestSelecting()

	case dhcpv4.MessageTypeAck:
		if state != dhcpRequesting && state != dhcpRenewing && state != dhcpRebinding && state != dhcpRebooting {
			return
		}
		c.applyAck(d)

	case dhcpv4.MessageTypeNak:
		c.mu.Lock()
		c.state = dhcpInit
		c.reqAddr = IPv4Addr{}
		c.hasServerID = false
		c.mu.Unlock()
	}
}

func (c *dhcpClient) applyAck(d *dhcpv4.DHCPv4) {
	var addr, mask, gw IPv4Addr
	copy(addr[:], d.YourIPAddr)
	if sm := d.SubnetMask(); sm != nil {
		copy(mask[:], sm)
	}
	if routers := d.Router(); len(routers) > 0 {
		copy(gw[:], routers[0].To4())
	}

	lease := int(d.IPAddressLeaseTime(86400).Seconds())
	t1 := int(d.IPAddressLeaseTime(86400).Seconds()) / 2
	t2 := t1 + lease/8*3 // 0.875*lease when options omit T1/T2 explicitly
	if v := d.Options.Get(dhcpv4.OptionRenewTimeValue); len(v) == 4 {
		t1 = int(getUint32(v))
	}
	if v := d.Options.Get(dhcpv4.OptionRebindingTimeValue); len(v) == 4 {
		t2 = int(getUint32(v))
	}

	c.iface.mu.Lock()
	c.iface.v4.address = addr
	c.iface.v4.netmask = mask
	c.iface.v4.gateway = gw
	c.iface.mu.Unlock()

	c.mu.Lock()
	c.state = dhcpBound
	c.reqAddr = addr
	c.leaseSeconds = lease
	c.t1, c.t2 = t1, t2
	c.mu.Unlock()

	c.notify(DHCPNotifyAddress)
	if bf := d.Options.Get(dhcpv4.OptionBootfileName); len(bf) > 0 {
		c.notify(DHCPNotifyBootfile)
	}
	if ntp := d.Options.Get(dhcpv4.OptionNTPServers); len(ntp) > 0 {
		c.notify(DHCPNotifyNTP)
	}

	c.iface.updateMulticastFilter()
	c.iface.arp.notify() // gratuitous ARP for the newly bound address
}
