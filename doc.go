// Package netcore implements the networking engine of an embedded
// dual-stack (IPv4/IPv6) TCP/IP stack: the frame pipeline and
// per-interface worker, ARP and NDP/SLAAC neighbor resolution, IGMP
// and MLD multicast membership, IPv4/IPv6 (including fragmentation
// and reassembly), a DHCPv4 client with AutoIP fallback, and a TCP
// connection engine.
//
// A [Stack] owns everything: the frame [Pool], one or more
// [Interface]s, the neighbor caches, the multicast membership
// tables, the DHCP clients and the TCP sockets. There is no global
// mutable state; embedders construct as many [Stack] instances as
// they need, which makes the engine straightforward to unit test.
//
// [Interface] bridges a [Driver] (the MAC/PHY, deliberately a narrow
// collaborator — see [Driver] and [MockDriver]) to the protocol
// layers. Frames flow up from the driver through [Interface], get
// classified by EtherType and handed to ARP, IPv4 or IPv6; they flow
// down the same way, resolving next-hop addresses through the ARP/NDP
// caches before reaching the driver.
//
// For testing without real hardware, two or more [Stack]s can be
// wired together with [NewLink] (point-to-point, with optional delay
// and loss) or [NewHub] (a shared broadcast segment), the way
// [NewPPPTopology] and [NewStarTopology] do it.
package netcore
