package pairing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"localex/internal/logger"
	"localex/internal/multicast"
	"localex/internal/netutil"

	"github.com/google/uuid"
)

// Manager owns the receive and send sockets of one node. It can be used as a
// whole or split into an Announcer and a Listener with separate owners.
type Manager struct {
	id  uuid.UUID
	log *logger.Logger

	mu        sync.Mutex
	announcer *Announcer
	listener  *Listener
}

// New binds the receive socket to the discovery port on all interfaces,
// joins the group, and binds a broadcast-enabled send socket on an
// ephemeral port. Any failure is a *SetupError; nothing is retried.
func New(cfg Config, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Discard()
	}

	group, err := netutil.ParseMulticastIPv4(cfg.Group)
	if err != nil {
		return nil, &SetupError{Op: "parse group", Err: err}
	}
	ifaceAddr, err := netutil.ParseIPv4(cfg.Interface)
	if err != nil {
		return nil, &SetupError{Op: "parse interface", Err: err}
	}
	sendBind, err := netutil.ParseIPv4(cfg.SendBind)
	if err != nil {
		return nil, &SetupError{Op: "parse send address", Err: err}
	}
	if err := netutil.ValidatePort(cfg.Port); err != nil {
		return nil, &SetupError{Op: "validate port", Err: err}
	}

	var iface *net.Interface
	if !ifaceAddr.IsUnspecified() {
		if iface, err = netutil.FindInterfaceByIP(ifaceAddr); err != nil {
			return nil, &SetupError{Op: "find interface", Err: err}
		}
	}

	recv, err := multicast.ListenGroup(context.Background(), netutil.IPv4{}, cfg.Port, group, iface, ifaceAddr)
	if err != nil {
		return nil, &SetupError{Op: "listen group", Err: err}
	}

	send, err := multicast.ListenSender(context.Background(), sendBind, 0, cfg.TTL, iface)
	if err != nil {
		recv.Close()
		return nil, &SetupError{Op: "listen sender", Err: err}
	}

	id := uuid.New()
	mlog := log.With("pairing " + id.String()[:8])

	m := &Manager{
		id:        id,
		log:       mlog,
		announcer: NewAnnouncer(send, netutil.UDPAddr(group, cfg.Port), mlog),
		listener:  NewListener(recv, mlog),
	}
	m.listener.AddSelf(m.announcer.LocalAddr())

	mlog.Info("joined %s on %s, sending from %s", netutil.FormatAddress(group, cfg.Port), recv.LocalAddr(), send.LocalAddr())
	return m, nil
}

func (m *Manager) ID() uuid.UUID {
	return m.id
}

func (m *Manager) parts() (*Announcer, *Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.announcer == nil {
		return nil, nil, ErrSplit
	}
	return m.announcer, m.listener, nil
}

// Split hands both halves to the caller. The Manager is unusable afterwards.
func (m *Manager) Split() (*Announcer, *Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.announcer == nil {
		return nil, nil, ErrSplit
	}
	a, l := m.announcer, m.listener
	m.announcer, m.listener = nil, nil
	return a, l, nil
}

func (m *Manager) Announce() error {
	a, _, err := m.parts()
	if err != nil {
		return err
	}
	return a.Announce()
}

func (m *Manager) Run(ctx context.Context, handler HandlerFunc) error {
	_, l, err := m.parts()
	if err != nil {
		return err
	}
	return l.Run(ctx, handler)
}

func (m *Manager) Stop() {
	if _, l, err := m.parts(); err == nil {
		l.Stop()
	}
}

func (m *Manager) Close() error {
	a, l, err := m.parts()
	if err != nil {
		return err
	}

	if err := errors.Join(l.Close(), a.Close()); err != nil {
		return fmt.Errorf("failed to close pairing sockets: %w", err)
	}
	return nil
}
