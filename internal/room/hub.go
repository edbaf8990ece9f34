// Package room fans auction events out to live participant connections.
//
// Each auction with at least one connected participant has a Room: a single
// goroutine that owns the member set and a projection of the auction fed by
// the coordinator's subscription. Members receive a snapshot on join and
// every later event in commit order. Members that cannot keep up are
// evicted rather than allowed to slow the room down.
package room

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/metrics"
)

var log = logging.Logger("room")

var (
	ErrHubClosed = errors.New("room hub closed")
	ErrNoBidder  = errors.New("bidder id required")
)

// DefaultBuffer is the per-member outbox size used when none is given.
const DefaultBuffer = 256

// Hub tracks the open room for every auction.
type Hub struct {
	registry *auction.Registry
	buffer   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
}

// NewHub creates a hub that resolves auctions through registry.
func NewHub(registry *auction.Registry, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: registry,
		buffer:   buffer,
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[string]*Room),
	}
}

// Join adds conn to the room for auctionID on behalf of bidderID. The first
// event written to conn is a snapshot of the auction.
func (h *Hub) Join(ctx context.Context, auctionID, bidderID string, conn Conn) (*Membership, error) {
	if bidderID == "" {
		return nil, ErrNoBidder
	}
	coord, err := h.registry.GetOrCreate(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	m := newMembership(h, uuid.NewString(), coord, bidderID, conn)
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrHubClosed
		}
		r, ok := h.rooms[auctionID]
		if !ok || r.coord != coord {
			r = newRoom(h, coord)
			h.rooms[auctionID] = r
			metrics.Rooms.Inc()
			h.wg.Add(1)
			h.mu.Unlock()
			go m.pump()
			go r.run(m)
			return m, nil
		}
		h.mu.Unlock()

		select {
		case r.joins <- m:
			go m.pump()
			return m, nil
		case <-r.done:
			// The room tore down between lookup and send; look again.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Leave removes m from its room and closes its connection. It is safe to
// call more than once.
func (h *Hub) Leave(m *Membership) {
	r, first := m.shutdown()
	if !first || r == nil {
		return
	}
	select {
	case r.leaves <- m:
	case <-r.done:
	}
}

// Broadcast delivers ev to every member of the auction's room. It reports
// false if the auction has no open room.
func (h *Hub) Broadcast(auctionID string, ev auction.Event) bool {
	h.mu.Lock()
	r, ok := h.rooms[auctionID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case r.broadcasts <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close disconnects every member and waits for all rooms to stop.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) remove(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
		metrics.Rooms.Dec()
	}
}
