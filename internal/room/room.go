package room

import (
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/metrics"
)

// Room serializes membership changes and event fan-out for one auction in a
// single goroutine. It keeps its own projection of the auction, advanced
// only by the coordinator feed, so a joining member receives a snapshot
// that is exactly consistent with the events that follow it.
type Room struct {
	id    string
	hub   *Hub
	coord *auction.Coordinator
	sub   *auction.Subscription

	state    auction.Auction
	feedDone bool
	members  map[*Membership]struct{}

	joins      chan *Membership
	leaves     chan *Membership
	broadcasts chan auction.Event
	done       chan struct{}
}

func newRoom(h *Hub, coord *auction.Coordinator) *Room {
	state, sub := coord.Subscribe()
	return &Room{
		id:         coord.ID(),
		hub:        h,
		coord:      coord,
		sub:        sub,
		state:      state,
		members:    make(map[*Membership]struct{}),
		joins:      make(chan *Membership),
		leaves:     make(chan *Membership),
		broadcasts: make(chan auction.Event),
		done:       make(chan struct{}),
	}
}

func (r *Room) run(first *Membership) {
	defer r.hub.wg.Done()
	defer close(r.done)
	defer r.hub.remove(r)

	r.add(first)
	if r.finished() {
		return
	}
	for {
		select {
		case m := <-r.joins:
			r.add(m)
		case m := <-r.leaves:
			r.drop(m, false)
		case ev := <-r.broadcasts:
			if !r.feedDone {
				r.fanout(ev)
			}
		case <-r.sub.Notify():
			events, done, retired := r.sub.Drain()
			for _, ev := range events {
				r.state.Apply(ev)
				r.fanout(ev)
			}
			if retired {
				log.Infow("room closed by release", "auction", r.id, "members", len(r.members))
				r.closeAll()
				return
			}
			r.feedDone = r.feedDone || done
		case <-r.hub.ctx.Done():
			r.closeAll()
			return
		}
		if r.finished() {
			return
		}
	}
}

func (r *Room) add(m *Membership) {
	if !m.attach(r) {
		return
	}
	r.members[m] = struct{}{}
	metrics.Members.Inc()

	m.Send(auction.SnapshotEvent(r.state))
	if r.state.Status == auction.StatusClosed {
		m.Send(auction.ClosedEvent(r.state))
		return
	}
	log.Debugw("member joined", "auction", r.id, "member", m.ID, "bidder", m.BidderID, "members", len(r.members))
	r.presence()
}

// drop removes m. evicted marks members removed for a full outbox.
func (r *Room) drop(m *Membership, evicted bool) {
	if _, ok := r.members[m]; !ok {
		return
	}
	delete(r.members, m)
	metrics.Members.Dec()
	m.shutdown()
	if evicted {
		// The writer may be stuck in Send, and Close can wait on it.
		go m.conn.Close()
		metrics.Evictions.Inc()
		log.Warnw("evicted slow member", "auction", r.id, "member", m.ID, "bidder", m.BidderID)
	} else {
		log.Debugw("member left", "auction", r.id, "member", m.ID, "members", len(r.members))
	}
	if !r.feedDone && r.state.Status != auction.StatusClosed {
		r.presence()
	}
}

// fanout delivers ev to every member without blocking. A member whose
// outbox is full is evicted; it can rejoin and resynchronize from a new
// snapshot.
func (r *Room) fanout(ev auction.Event) {
	var slow []*Membership
	for m := range r.members {
		if !m.Send(ev) {
			slow = append(slow, m)
		}
	}
	for _, m := range slow {
		r.drop(m, !m.Closed())
	}
}

func (r *Room) presence() {
	r.fanout(auction.Event{
		Type:      auction.EventPresence,
		AuctionID: r.id,
		Payload:   auction.Presence{Participants: len(r.members)},
	})
}

// finished tears the room down once it has no members. The coordinator is
// released when the auction is closed.
func (r *Room) finished() bool {
	if len(r.members) > 0 {
		return false
	}
	r.coord.Unsubscribe(r.sub)
	if r.coord.Status() == auction.StatusClosed && r.hub.registry.Get(r.id) == r.coord {
		r.hub.registry.Release(r.id)
	}
	log.Debugw("room empty", "auction", r.id)
	return true
}

func (r *Room) closeAll() {
	r.coord.Unsubscribe(r.sub)
	for m := range r.members {
		delete(r.members, m)
		metrics.Members.Dec()
		m.shutdown()
	}
}
