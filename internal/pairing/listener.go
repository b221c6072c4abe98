package pairing

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"localex/internal/logger"
	"localex/internal/netutil"
)

// quitToken is the single-use cancellation signal of one receive loop.
type quitToken struct {
	quit chan struct{}
	once sync.Once
}

func newQuitToken() *quitToken {
	return &quitToken{quit: make(chan struct{})}
}

func (t *quitToken) fire() {
	t.once.Do(func() { close(t.quit) })
}

func (t *quitToken) fired() bool {
	select {
	case <-t.quit:
		return true
	default:
		return false
	}
}

// Listener reads probes from the discovery socket. At most one receive loop
// runs per Listener; it can be restarted after it stops.
type Listener struct {
	conn *net.UDPConn
	log  *logger.Logger

	mu       sync.Mutex
	token    *quitToken // non-nil while a loop runs
	closed   bool
	self     []*net.UDPAddr
	localIPs map[netutil.IPv4]struct{}
}

func NewListener(conn *net.UDPConn, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.Discard()
	}
	l := &Listener{
		conn: conn,
		log:  log,
	}
	if local, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		l.AddSelf(local)
	}
	return l
}

// AddSelf marks addr as belonging to this node so probes from it are
// ignored. An unspecified IP matches any of this host's addresses on
// addr's port.
func (l *Listener) AddSelf(addr *net.UDPAddr) {
	if addr == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.self = append(l.self, addr)
	if addr.IP.IsUnspecified() && l.localIPs == nil {
		ips, err := netutil.LocalIPv4s()
		if err != nil {
			l.log.Warn("cannot list local addresses, self filtering limited to exact matches: %v", err)
			ips = map[netutil.IPv4]struct{}{}
		}
		l.localIPs = ips
	}
}

func (l *Listener) isSelf(src *net.UDPAddr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.self {
		if s.Port != src.Port {
			continue
		}
		if s.IP.IsUnspecified() {
			if ip4 := src.IP.To4(); ip4 != nil {
				if _, ok := l.localIPs[netutil.IPv4(ip4)]; ok {
					return true
				}
			}
			continue
		}
		if s.IP.Equal(src.IP) {
			return true
		}
	}
	return false
}

func (l *Listener) LocalAddr() *net.UDPAddr {
	addr, _ := l.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Running reports whether a receive loop is active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token != nil
}

func (l *Listener) arm() (*quitToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, &IOError{Op: "receive", Err: net.ErrClosed}
	}
	if l.token != nil {
		return nil, nil
	}
	l.token = newQuitToken()
	return l.token, nil
}

func (l *Listener) disarm() {
	_ = l.conn.SetReadDeadline(time.Time{})

	l.mu.Lock()
	l.token = nil
	l.mu.Unlock()
}

// Run receives datagrams until Stop, Close or ctx cancellation, calling
// handler inline for every valid probe from another node. If a loop is
// already running Run returns nil at once and the first loop is left alone.
// A read failure ends the loop with an *IOError.
func (l *Listener) Run(ctx context.Context, handler HandlerFunc) error {
	if handler == nil {
		return errors.New("pairing: nil handler")
	}

	token, err := l.arm()
	if err != nil {
		return err
	}
	if token == nil {
		l.log.Debug("receive loop already running")
		return nil
	}
	defer l.disarm()

	// Unblock the pending read once cancelled; the socket stays open so the
	// loop can be restarted.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-token.quit:
		case <-ctx.Done():
			token.fire()
		case <-done:
			return
		}
		_ = l.conn.SetReadDeadline(time.Now())
	}()

	l.log.Info("listening for probes on %s", l.conn.LocalAddr())
	err = l.receive(token, handler)
	close(done)
	wg.Wait()

	if err != nil {
		l.log.Error("receive loop stopped: %v", err)
	} else {
		l.log.Info("receive loop stopped")
	}
	return err
}

func (l *Listener) receive(token *quitToken, handler HandlerFunc) error {
	var buf [PayloadSize]byte
	for {
		n, src, err := l.conn.ReadFromUDP(buf[:])
		if token.fired() {
			return nil
		}
		if err != nil {
			return &IOError{Op: "receive", Err: err}
		}

		if n < PayloadSize {
			l.log.Debug("discarded %d byte datagram from %s", n, src)
			continue
		}
		if !IsProbe(buf[:n]) {
			l.log.Debug("discarded foreign payload from %s", src)
			continue
		}
		if l.isSelf(src) {
			l.log.Debug("ignored own probe from %s", src)
			continue
		}

		l.log.Info("discovered peer %s", src)
		handler(src)
	}
}

// RunQueue runs the receive loop handing discovered addresses to q. Offers
// never block, so a slow consumer costs events rather than stalling the loop.
func (l *Listener) RunQueue(ctx context.Context, q *PeerQueue) error {
	return l.Run(ctx, func(addr *net.UDPAddr) {
		if !q.Offer(addr) {
			l.log.Warn("peer queue full, dropped %s (%d dropped so far)", addr, q.Dropped())
		}
	})
}

// Stop fires the cancellation token of the active loop. It is a no-op when
// no loop is running.
func (l *Listener) Stop() {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()

	if token != nil {
		token.fire()
	}
}

// Close stops the loop and releases the socket, leaving the group.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	token := l.token
	l.mu.Unlock()

	if token != nil {
		token.fire()
	}
	return l.conn.Close()
}
