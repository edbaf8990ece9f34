package room

import (
	"context"
	"sync"
	"time"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

// Conn is one live participant connection. Implementations must be safe for
// concurrent use and Close may be called more than once.
type Conn interface {
	Send(ev auction.Event) error
	Close() error
}

// Membership ties one connection to one auction room on behalf of one
// bidder. A bidder may hold several memberships at once.
type Membership struct {
	ID        string
	AuctionID string
	BidderID  string

	hub   *Hub
	coord *auction.Coordinator
	conn  Conn
	out   chan auction.Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	room   *Room
}

func newMembership(h *Hub, id string, coord *auction.Coordinator, bidderID string, conn Conn) *Membership {
	return &Membership{
		ID:        id,
		AuctionID: coord.ID(),
		BidderID:  bidderID,
		hub:       h,
		coord:     coord,
		conn:      conn,
		out:       make(chan auction.Event, h.buffer),
		done:      make(chan struct{}),
	}
}

// Bid submits a bid on behalf of the membership's bidder.
func (m *Membership) Bid(ctx context.Context, amount int64, submittedAt time.Time) (auction.BidAccepted, error) {
	return m.coord.SubmitBid(ctx, m.BidderID, amount, submittedAt)
}

// Send queues ev for this connection only. It returns false if the
// membership is closed or its outbox is full.
func (m *Membership) Send(ev auction.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.out <- ev:
		return true
	default:
		return false
	}
}

// Done is closed once the writer has stopped and the connection is closed.
func (m *Membership) Done() <-chan struct{} {
	return m.done
}

// Closed reports whether the membership has left its room.
func (m *Membership) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Membership) attach(r *Room) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.room = r
	return true
}

// shutdown closes the outbox and returns the room the membership was in.
// Only the first call has any effect.
func (m *Membership) shutdown() (r *Room, first bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}
	m.closed = true
	close(m.out)
	r, m.room = m.room, nil
	return r, true
}

// pump writes queued events to the connection until the outbox closes or a
// write fails.
func (m *Membership) pump() {
	defer close(m.done)
	defer m.conn.Close()
	for ev := range m.out {
		if err := m.conn.Send(ev); err != nil {
			log.Debugw("send failed", "auction", m.AuctionID, "member", m.ID, "err", err)
			m.hub.Leave(m)
			return
		}
	}
}
