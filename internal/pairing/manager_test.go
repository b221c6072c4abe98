package pairing

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"localex/internal/logger"
	"localex/internal/multicast"
	"localex/internal/netutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort returns a UDP port that was unused a moment ago.
func freePort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	defer conn.Close()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Port = freePort(t)
	return cfg
}

// newTestManager skips when the host cannot join multicast groups.
func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := New(cfg, logger.Discard())
	if err != nil {
		t.Skipf("multicast setup unavailable: %v", err)
	}
	return m
}

func hasMulticastInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "239.255.94.87", cfg.Group)
	assert.Equal(t, uint16(9487), cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Interface)
	assert.Equal(t, "0.0.0.0", cfg.SendBind)
}

func TestNewSetupErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"invalid group":     func(c *Config) { c.Group = "239.255.94" },
		"unicast group":     func(c *Config) { c.Group = "10.0.0.1" },
		"invalid interface": func(c *Config) { c.Interface = "eth0" },
		"unknown interface": func(c *Config) { c.Interface = "203.0.113.77" },
		"invalid send bind": func(c *Config) { c.SendBind = "localhost" },
		"zero port":         func(c *Config) { c.Port = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(&cfg)

			m, err := New(cfg, logger.Discard())
			assert.Nil(t, m)
			var setupErr *SetupError
			require.True(t, errors.As(err, &setupErr), "got %v", err)
			assert.NotEmpty(t, setupErr.Op)
		})
	}
}

func TestNewPortInUse(t *testing.T) {
	// A socket without SO_REUSEPORT keeps the port exclusive.
	taken, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	defer taken.Close()

	cfg := DefaultConfig()
	cfg.Port = uint16(taken.LocalAddr().(*net.UDPAddr).Port)

	_, err = New(cfg, logger.Discard())
	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr), "got %v", err)
	assert.Equal(t, "listen group", setupErr.Op)
}

func TestManagerSplitTransfersOwnership(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	a, l, err := m.Split()
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, l)
	defer a.Close()
	defer l.Close()

	_, _, err = m.Split()
	assert.ErrorIs(t, err, ErrSplit)
	assert.ErrorIs(t, m.Announce(), ErrSplit)
	assert.ErrorIs(t, m.Run(context.Background(), func(*net.UDPAddr) {}), ErrSplit)
	assert.ErrorIs(t, m.Close(), ErrSplit)
	m.Stop()

	assert.NotEqual(t, m.ID().String(), "")
}

func TestManagerCompositeStopAndClose(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background(), func(*net.UDPAddr) {}) }()

	_, l, err := m.parts()
	require.NoError(t, err)
	require.Eventually(t, l.Running, waitFor, 5*time.Millisecond)

	m.Stop()
	assert.NoError(t, waitStopped(t, errCh))
	assert.NoError(t, m.Close())
}

func TestManagersDiscoverEachOther(t *testing.T) {
	if testing.Short() {
		t.Skip("multicast round trip skipped in short mode")
	}
	if !hasMulticastInterface() {
		t.Skip("no multicast-capable interface")
	}

	cfg := testConfig(t)
	nodeA := newTestManager(t, cfg)
	defer nodeA.Close()
	nodeB, err := New(cfg, logger.Discard())
	require.NoError(t, err)
	defer nodeB.Close()

	senderA, listenerA, err := nodeA.Split()
	require.NoError(t, err)
	defer senderA.Close()
	defer listenerA.Close()

	recA, recB := newRecorder(), newRecorder()
	errA := startListener(t, listenerA, context.Background(), recA.handle)
	errB := startListener(t, nodeBListener(t, nodeB), context.Background(), recB.handle)

	// A non-participant sending noise to the group is never reported.
	group, err := netutil.ParseIPv4(cfg.Group)
	require.NoError(t, err)
	noise, err := multicast.ListenSender(context.Background(), netutil.IPv4{}, 0, 1, nil)
	require.NoError(t, err)
	defer noise.Close()
	_, err = noise.WriteToUDP([]byte("not a probe!!!"), netutil.UDPAddr(group, cfg.Port))
	require.NoError(t, err)

	require.NoError(t, senderA.Announce())

	got := recB.next(t)
	assert.Equal(t, senderA.LocalAddr().Port, got.Port)
	recB.none(t, 200*time.Millisecond)
	recA.none(t, 50*time.Millisecond)

	listenerA.Stop()
	nodeB.Stop()
	assert.NoError(t, waitStopped(t, errA))
	assert.NoError(t, waitStopped(t, errB))
}

func nodeBListener(t *testing.T, m *Manager) *Listener {
	t.Helper()
	_, l, err := m.parts()
	require.NoError(t, err)
	return l
}
