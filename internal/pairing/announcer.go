package pairing

import (
	"io"
	"net"

	"localex/internal/logger"
)

// Announcer sends probes to the discovery group from its own socket.
type Announcer struct {
	conn  *net.UDPConn
	group *net.UDPAddr
	log   *logger.Logger
}

func NewAnnouncer(conn *net.UDPConn, group *net.UDPAddr, log *logger.Logger) *Announcer {
	if log == nil {
		log = logger.Discard()
	}
	return &Announcer{
		conn:  conn,
		group: group,
		log:   log,
	}
}

// Announce sends one probe datagram to the group. Failures are returned
// as *IOError and never retried.
func (a *Announcer) Announce() error {
	n, err := a.conn.WriteToUDP(verifyPass[:], a.group)
	if err != nil {
		return &IOError{Op: "send", Err: err}
	}
	if n != PayloadSize {
		return &IOError{Op: "send", Err: io.ErrShortWrite}
	}

	a.log.Debug("sent probe to %s from %s", a.group, a.conn.LocalAddr())
	return nil
}

func (a *Announcer) LocalAddr() *net.UDPAddr {
	addr, _ := a.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

func (a *Announcer) Close() error {
	return a.conn.Close()
}
