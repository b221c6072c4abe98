package netutil

import (
	"fmt"
	"net"
)

type IPv4 [4]byte

func (ip IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

func (ip IPv4) IP() net.IP {
	return net.IPv4(ip[0], ip[1], ip[2], ip[3])
}

func (ip IPv4) IsUnspecified() bool {
	return ip == IPv4{}
}

// ParseIPv4 parses a dotted-quad IPv4 address.
func ParseIPv4(s string) (IPv4, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IPv4{}, fmt.Errorf("invalid IP address: %q", s)
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return IPv4{}, fmt.Errorf("not a valid IPv4 address: %q", s)
	}

	return IPv4(ip4), nil
}

// ParseMulticastIPv4 parses s and checks it lies in 224.0.0.0/4.
func ParseMulticastIPv4(s string) (IPv4, error) {
	ip, err := ParseIPv4(s)
	if err != nil {
		return IPv4{}, err
	}
	if !ip.IP().IsMulticast() {
		return IPv4{}, fmt.Errorf("not an IPv4 multicast address: %q", s)
	}
	return ip, nil
}

// FindInterfaceByIP returns the network interface that has ip assigned.
func FindInterfaceByIP(ip IPv4) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ifaceIP := addrIP(addr); ifaceIP != nil && ifaceIP.Equal(ip.IP()) {
				return &iface, nil
			}
		}
	}

	return nil, fmt.Errorf("IP %s not found on any interface", ip)
}

// LocalIPv4s returns every IPv4 address assigned to an interface of this
// host, loopback included.
func LocalIPv4s() (map[IPv4]struct{}, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to get interface addresses: %w", err)
	}

	out := make(map[IPv4]struct{}, len(addrs))
	for _, addr := range addrs {
		if ip4 := addrIP(addr).To4(); ip4 != nil {
			out[IPv4(ip4)] = struct{}{}
		}
	}
	return out, nil
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

func ValidatePort(port uint16) error {
	if port == 0 {
		return fmt.Errorf("port cannot be 0")
	}
	return nil
}

func FormatAddress(host IPv4, port uint16) string {
	return fmt.Sprintf("%s:%d", host.String(), port)
}

func UDPAddr(host IPv4, port uint16) *net.UDPAddr {
	return &net.UDPAddr{IP: host.IP(), Port: int(port)}
}
