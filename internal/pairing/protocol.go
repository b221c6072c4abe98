// Package pairing discovers peers on the local network by exchanging a fixed
// probe over IPv4 multicast.
//
// A Manager owns two sockets: one bound to the discovery port and joined to
// the discovery group, read by a Listener, and one bound to an ephemeral
// port, written by an Announcer. Split hands the two halves to separate
// owners. A Listener reports the source address of every valid probe that
// did not come from this node; deduplication and peer bookkeeping belong to
// the caller.
package pairing

import (
	"bytes"
	"errors"
	"net"
)

const (
	DefaultGroup     = "239.255.94.87"
	DefaultPort      = 9487
	DefaultInterface = "0.0.0.0"
	DefaultSendBind  = "0.0.0.0"
	DefaultTTL       = 1

	// PayloadSize is the exact length of a probe on the wire.
	PayloadSize = 14
)

var verifyPass = [PayloadSize]byte{69, 108, 32, 80, 115, 121, 32, 67, 111, 110, 103, 114, 111, 111}

// VerifyPass returns a copy of the probe payload.
func VerifyPass() []byte {
	p := verifyPass
	return p[:]
}

// IsProbe reports whether b is exactly the probe payload.
func IsProbe(b []byte) bool {
	return bytes.Equal(b, verifyPass[:])
}

// Config describes the discovery group and the sockets bound for it.
type Config struct {
	Group     string
	Port      uint16
	Interface string
	SendBind  string
	TTL       int
}

func DefaultConfig() Config {
	return Config{
		Group:     DefaultGroup,
		Port:      DefaultPort,
		Interface: DefaultInterface,
		SendBind:  DefaultSendBind,
		TTL:       DefaultTTL,
	}
}

// HandlerFunc receives the source address of a validated probe.
type HandlerFunc func(addr *net.UDPAddr)

var ErrSplit = errors.New("pairing manager already split")

// SetupError reports a failure while building the socket pair.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return "pairing setup: " + e.Op + ": " + e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IOError reports a failed send or receive on an established socket.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "pairing " + e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}
