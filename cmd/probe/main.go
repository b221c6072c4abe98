// Command probe sends datagrams to the pairing group by hand: the real probe
// by default, or any payload to check that listeners ignore it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"localex/internal/multicast"
	"localex/internal/netutil"
	"localex/internal/pairing"
)

func main() {
	payload := flag.String("payload", "", "payload to send instead of the probe")
	count := flag.Uint("count", 1, "number of datagrams to send")
	interval := flag.Duration("interval", time.Second, "pause between datagrams")
	port := flag.Uint("port", pairing.DefaultPort, "discovery port")
	flag.Parse()

	groupPort := validatePort(*port, "port")

	group, err := netutil.ParseMulticastIPv4(pairing.DefaultGroup)
	if err != nil {
		exit("Error: %v\n", err)
	}

	conn, err := multicast.ListenSender(context.Background(), netutil.IPv4{}, 0, pairing.DefaultTTL, nil)
	if err != nil {
		exit("Error creating connection: %v\n", err)
	}
	defer conn.Close()

	data := pairing.VerifyPass()
	if *payload != "" {
		data = []byte(*payload)
	}
	dst := netutil.UDPAddr(group, groupPort)

	fmt.Printf("Sending %d byte datagrams from %s to %s\n", len(data), conn.LocalAddr(), dst)

	for i := uint(0); i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}
		if _, err := conn.WriteToUDP(data, dst); err != nil {
			exit("Error sending datagram: %v\n", err)
		}
		fmt.Printf("Sent #%d: %q (probe=%t)\n", i+1, data, pairing.IsProbe(data))
	}
}

func exit(msg string, a ...any) {
	fmt.Fprintf(os.Stderr, msg, a...)
	os.Exit(1)
}

func validatePort(port uint, name string) uint16 {
	if port == 0 {
		exit("Error -%s is required\n", name)
	}

	if port > 65535 {
		exit("Error: invalid -%s value: %d exceeds uint16 max (65535)\n", name, port)
	}

	return uint16(port)
}
