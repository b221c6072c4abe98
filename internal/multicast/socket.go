package multicast

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"localex/internal/netutil"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

type sockopt struct {
	name  string
	level int
	opt   int
}

var (
	reuseAddr = sockopt{"SO_REUSEADDR", unix.SOL_SOCKET, unix.SO_REUSEADDR}
	reusePort = sockopt{"SO_REUSEPORT", unix.SOL_SOCKET, unix.SO_REUSEPORT}
	broadcast = sockopt{"SO_BROADCAST", unix.SOL_SOCKET, unix.SO_BROADCAST}
)

// control enables every option on the socket before bind.
func control(opts ...sockopt) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			for _, o := range opts {
				if opErr = unix.SetsockoptInt(int(fd), o.level, o.opt, 1); opErr != nil {
					opErr = fmt.Errorf("failed to set %s: %w", o.name, opErr)
					return
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

func listenUDP4(ctx context.Context, addr string, opts ...sockopt) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: control(opts...)}

	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return conn, nil
}

// ListenGroup binds a socket to bind:port with address and port reuse so
// several nodes on one host can share the discovery port, then joins group
// on the interface identified by iface (unspecified lets the kernel pick).
func ListenGroup(ctx context.Context, bind netutil.IPv4, port uint16, group netutil.IPv4, iface *net.Interface, ifaceAddr netutil.IPv4) (*net.UDPConn, error) {
	conn, err := listenUDP4(ctx, netutil.FormatAddress(bind, port), reuseAddr, reusePort)
	if err != nil {
		return nil, fmt.Errorf("failed to bind group socket: %w", err)
	}

	if err := JoinGroup(conn, group, iface, ifaceAddr); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// JoinGroup adds IPv4 group membership to conn.
func JoinGroup(conn *net.UDPConn, group netutil.IPv4, iface *net.Interface, ifaceAddr netutil.IPv4) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw conn: %w", err)
	}

	mreq := &unix.IPMreqn{
		Multiaddr: group,
		Address:   ifaceAddr,
	}
	if iface != nil {
		mreq.Ifindex = int32(iface.Index)
	}

	var joinErr error
	if err := rc.Control(func(fd uintptr) {
		joinErr = unix.SetsockoptIPMreqn(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	}); err != nil {
		return fmt.Errorf("failed to control raw conn: %w", err)
	}
	if joinErr != nil {
		return fmt.Errorf("failed to join multicast group %s: %w", group, joinErr)
	}
	return nil
}

// ListenSender binds a send socket on bind:port with SO_BROADCAST set.
// Multicast loopback stays on so nodes sharing a host hear each other, and
// ttl bounds how far probes travel.
func ListenSender(ctx context.Context, bind netutil.IPv4, port uint16, ttl int, iface *net.Interface) (*net.UDPConn, error) {
	conn, err := listenUDP4(ctx, netutil.FormatAddress(bind, port), broadcast)
	if err != nil {
		return nil, fmt.Errorf("failed to bind send socket: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable multicast loopback: %w", err)
	}
	if ttl > 0 {
		if err := pc.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set multicast ttl: %w", err)
		}
	}
	if iface != nil {
		if err := pc.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set multicast interface %s: %w", iface.Name, err)
		}
	}
	return conn, nil
}
