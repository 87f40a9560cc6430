// Command netcored brings up one interface on a real NIC, acquires an
// IPv4 lease (falling back to AutoIP), and logs the interface's
// startup line plus the engine's own log output (link up/down and the
// like), in the same calibration-tool spirit as the teacher's
// cmd/calibrate. Address and lease changes are not logged separately.
package main

import (
	"flag"
	"time"

	"github.com/apex/log"

	"github.com/erikvoss/netcore"
)

func main() {
	ifName := flag.String("iface", "eth0", "network interface to bind")
	mtu := flag.Int("mtu", 1500, "interface MTU")
	dhcp := flag.Bool("dhcp", true, "acquire an IPv4 lease via DHCP (falls back to AutoIP)")
	duration := flag.Duration("duration", 0, "exit after this long (0 = run forever)")
	flag.Parse()

	log.SetLevel(log.DebugLevel)

	drv, err := netcore.NewRawLinuxDriver(*ifName)
	if err != nil {
		log.WithError(err).Fatal("netcore.NewRawLinuxDriver")
	}
	defer drv.Close()

	stack := netcore.NewStack(log.Log)
	defer stack.Close()

	cfg := netcore.DefaultInterfaceConfig(drv.GetMACAddress())
	cfg.Name = *ifName
	cfg.MTU = *mtu
	cfg.IPv4.DHCP = *dhcp

	iface, err := stack.AddInterface(cfg, drv)
	if err != nil {
		log.WithError(err).Fatal("stack.AddInterface")
	}

	log.Infof("netcored: %s up, mac=%s", iface.Name(), iface.MAC())

	if *duration > 0 {
		time.Sleep(*duration)
		return
	}
	select {}
}
