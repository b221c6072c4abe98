package pairing

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

// DropPolicy selects which address a full PeerQueue gives up.
type DropPolicy int

const (
	DropNewest DropPolicy = iota
	DropOldest
)

func (p DropPolicy) String() string {
	switch p {
	case DropNewest:
		return "newest"
	case DropOldest:
		return "oldest"
	default:
		return fmt.Sprintf("DropPolicy(%d)", int(p))
	}
}

func ParseDropPolicy(s string) (DropPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "newest", "":
		return DropNewest, nil
	case "oldest":
		return DropOldest, nil
	default:
		return 0, fmt.Errorf("unknown drop policy: %q (valid: newest, oldest)", s)
	}
}

// PeerQueue is the bounded hand-off between a Listener and the consumer of
// discovered peers. Producers never block.
type PeerQueue struct {
	ch      chan *net.UDPAddr
	policy  DropPolicy
	mu      sync.Mutex // serialises producers
	dropped atomic.Uint64
}

func NewPeerQueue(capacity int, policy DropPolicy) *PeerQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &PeerQueue{
		ch:     make(chan *net.UDPAddr, capacity),
		policy: policy,
	}
}

// Offer enqueues addr and reports whether it was kept. With DropOldest a
// full queue evicts its head to make room, so addr is always kept.
func (q *PeerQueue) Offer(addr *net.UDPAddr) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- addr:
		return true
	default:
	}

	if q.policy == DropOldest {
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
		select {
		case q.ch <- addr:
			return true
		default:
		}
	}

	q.dropped.Add(1)
	return false
}

// C is the receive side for the consumer.
func (q *PeerQueue) C() <-chan *net.UDPAddr {
	return q.ch
}

func (q *PeerQueue) Len() int {
	return len(q.ch)
}

func (q *PeerQueue) Cap() int {
	return cap(q.ch)
}

// Dropped counts addresses lost to a full queue.
func (q *PeerQueue) Dropped() uint64 {
	return q.dropped.Load()
}
