package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/metrics"
)

var log = logging.Logger("auction")

// Options tune every coordinator created by a Registry.
type Options struct {
	// BidTimeout bounds the wait for an auction's serialization token.
	// It is measured in wall time, not on Clock.
	BidTimeout time.Duration
	// SaveTimeout bounds a single durable write.
	SaveTimeout time.Duration
	// RejectSelfOutbid rejects bids from the current highest bidder.
	RejectSelfOutbid bool
	// Clock supplies auction time (start/end boundaries, timestamps).
	Clock clock.Clock
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		BidTimeout:       2 * time.Second,
		SaveTimeout:      5 * time.Second,
		RejectSelfOutbid: true,
		Clock:            clock.New(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BidTimeout <= 0 {
		o.BidTimeout = d.BidTimeout
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = d.SaveTimeout
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// Coordinator owns the live state of one auction. Every state change
// (bid, activation, close) runs while holding the auction's token, around
// the whole validate-update-persist sequence. Reads take mu only.
type Coordinator struct {
	id    string
	store Store
	opts  Options
	token chan struct{}

	mu      sync.RWMutex
	state   Auction
	subs    map[*Subscription]struct{}
	retired bool
}

func newCoordinator(a Auction, store Store, opts Options) *Coordinator {
	a = normalize(a)
	return &Coordinator{
		id:    a.ID,
		store: store,
		opts:  opts.withDefaults(),
		token: make(chan struct{}, 1),
		state: a,
		subs:  make(map[*Subscription]struct{}),
	}
}

func normalize(a Auction) Auction {
	a = a.Clone()
	if a.CurrentPrice < a.StartPrice {
		a.CurrentPrice = a.StartPrice
	}
	if a.Bids == nil {
		a.Bids = []Bid{}
	}
	return a
}

// ID returns the auction id.
func (c *Coordinator) ID() string { return c.id }

// Snapshot returns a deep copy of the committed state.
func (c *Coordinator) Snapshot() Auction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Status returns the current phase, including the transient closing phase.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status
}

// ClosedAt reports when the auction closed.
func (c *Coordinator) ClosedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Status != StatusClosed {
		return time.Time{}, false
	}
	if c.state.ClosedAt != nil {
		return *c.state.ClosedAt, true
	}
	return c.state.EndTime, true
}

// Subscribe returns the committed state together with a subscription that
// receives every event committed after it, in commit order.
func (c *Coordinator) Subscribe() (Auction, *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := newSubscription()
	if c.retired {
		sub.end(true)
		return c.state.Clone(), sub
	}
	if c.state.Status == StatusClosed {
		sub.end(false)
	}
	// Subscribers stay registered after the close so retire can reach them.
	c.subs[sub] = struct{}{}
	return c.state.Clone(), sub
}

// Unsubscribe stops delivery to sub.
func (c *Coordinator) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()
}

// SubmitBid evaluates a bid. The returned error wraps one of
// ErrInvalidBid, ErrAuctionNotActive, ErrBidTooLow, ErrDuplicateHighBidder,
// ErrPersistence or ErrTimeout.
func (c *Coordinator) SubmitBid(ctx context.Context, bidderID string, amount int64, submittedAt time.Time) (BidAccepted, error) {
	accepted, err := c.submitBid(ctx, bidderID, amount, submittedAt)
	if err != nil {
		reason := RejectReason(err)
		metrics.Bids.WithLabelValues(reason).Inc()
		if IsRejection(err) {
			log.Debugw("bid rejected", "auction", c.id, "bidder", bidderID, "amount", amount, "reason", reason)
		} else {
			log.Warnw("bid failed", "auction", c.id, "bidder", bidderID, "amount", amount, "err", err)
		}
		return BidAccepted{}, err
	}
	metrics.Bids.WithLabelValues("accepted").Inc()
	log.Debugw("bid accepted", "auction", c.id, "bidder", bidderID, "amount", amount, "sequence", accepted.Sequence)
	return accepted, nil
}

func (c *Coordinator) submitBid(ctx context.Context, bidderID string, amount int64, submittedAt time.Time) (BidAccepted, error) {
	if bidderID == "" {
		return BidAccepted{}, fmt.Errorf("%w: bidder id required", ErrInvalidBid)
	}
	if amount <= 0 {
		return BidAccepted{}, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}
	if err := c.acquire(ctx); err != nil {
		return BidAccepted{}, err
	}
	defer c.release()

	now := c.opts.Clock.Now()
	if err := c.activateLocked(ctx, now); err != nil {
		return BidAccepted{}, err
	}

	cur := c.state
	switch {
	case cur.Status != StatusActive:
		return BidAccepted{}, fmt.Errorf("%w: auction %s is %s", ErrAuctionNotActive, c.id, cur.Status)
	case !now.Before(cur.EndTime):
		return BidAccepted{}, fmt.Errorf("%w: auction %s ended at %s", ErrAuctionNotActive, c.id, cur.EndTime.Format(time.RFC3339))
	case amount < cur.MinimumBid():
		return BidAccepted{}, fmt.Errorf("%w: minimum is %d", ErrBidTooLow, cur.MinimumBid())
	case c.opts.RejectSelfOutbid && cur.HighestBidder == bidderID:
		return BidAccepted{}, ErrDuplicateHighBidder
	}

	if submittedAt.IsZero() {
		submittedAt = now
	}
	bid := Bid{
		Sequence:    cur.LastSequence() + 1,
		BidderID:    bidderID,
		Amount:      amount,
		SubmittedAt: submittedAt.UTC(),
		AcceptedAt:  now.UTC(),
	}
	next := cur.Clone()
	next.CurrentPrice = amount
	next.HighestBidder = bidderID
	next.Bids = append(next.Bids, bid)
	next.Version++
	next.UpdatedAt = now.UTC()

	if err := c.save(ctx, next); err != nil {
		return BidAccepted{}, err
	}

	accepted := BidAccepted{
		AuctionID:     c.id,
		CurrentPrice:  amount,
		HighestBidder: bidderID,
		Sequence:      bid.Sequence,
		Bid:           bid,
	}
	c.commit(next, Event{Type: EventBidAccepted, AuctionID: c.id, Payload: accepted}, false)
	return accepted, nil
}

// Close ends the auction. It is idempotent: closing a closed auction is a
// no-op. An auction that has not started cannot be closed and gets
// ErrAuctionNotActive. On a failed write the auction stays open and
// ErrPersistence is returned.
func (c *Coordinator) Close(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	now := c.opts.Clock.Now()
	if err := c.activateLocked(ctx, now); err != nil {
		return err
	}
	if c.state.Status == StatusScheduled {
		return fmt.Errorf("%w: auction %s has not started", ErrAuctionNotActive, c.id)
	}
	return c.closeLocked(ctx, now)
}

// Advance applies any time-driven transition that is due: activation at
// the start time and closure at the end time.
func (c *Coordinator) Advance(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	now := c.opts.Clock.Now()
	if err := c.activateLocked(ctx, now); err != nil {
		return err
	}
	if c.state.Status != StatusClosed && !now.Before(c.state.EndTime) {
		return c.closeLocked(ctx, now)
	}
	return nil
}

func (c *Coordinator) activateLocked(ctx context.Context, now time.Time) error {
	if c.state.Status != StatusScheduled || now.Before(c.state.StartTime) {
		return nil
	}
	next := c.state.Clone()
	next.Status = StatusActive
	next.Version++
	next.UpdatedAt = now.UTC()
	if err := c.save(ctx, next); err != nil {
		return err
	}
	c.commit(next, SnapshotEvent(next), false)
	metrics.Transitions.WithLabelValues(string(StatusActive)).Inc()
	log.Infow("auction active", "auction", c.id, "startTime", next.StartTime)
	return nil
}

func (c *Coordinator) closeLocked(ctx context.Context, now time.Time) error {
	prev := c.state.Status
	if prev == StatusClosed {
		return nil
	}
	c.setStatus(StatusClosing)

	closedAt := now.UTC()
	next := c.state.Clone()
	next.Status = StatusClosed
	next.ClosedAt = &closedAt
	next.Version++
	next.UpdatedAt = closedAt
	if err := c.save(ctx, next); err != nil {
		// A reconciled save may already have replaced the state.
		if c.Status() == StatusClosing {
			c.setStatus(prev)
		}
		return err
	}
	c.commit(next, ClosedEvent(next), true)
	metrics.Transitions.WithLabelValues(string(StatusClosed)).Inc()
	log.Infow("auction closed", "auction", c.id, "winner", next.HighestBidder, "finalPrice", next.CurrentPrice, "bids", len(next.Bids))
	return nil
}

// retire ends every subscription. Called by the registry on release.
func (c *Coordinator) retire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retired = true
	for sub := range c.subs {
		sub.end(true)
	}
	c.subs = make(map[*Subscription]struct{})
}

// acquire takes the auction's token, waiting at most BidTimeout.
func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.token <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(c.opts.BidTimeout)
	defer timer.Stop()
	select {
	case c.token <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: auction %s busy for %s", ErrTimeout, c.id, c.opts.BidTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() {
	<-c.token
}

// save writes next. A failed write may still have been applied (a deadline
// can fire after the store committed), so the stored record is reloaded:
// if it is next, the save counts as done; if it moved elsewhere, it becomes
// the committed state and subscribers get a fresh snapshot.
func (c *Coordinator) save(ctx context.Context, next Auction) error {
	wctx, cancel := context.WithTimeout(ctx, c.opts.SaveTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.Save(wctx, next)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreWrites.WithLabelValues(result).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	lctx, lcancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SaveTimeout)
	defer lcancel()
	stored, lerr := c.store.Load(lctx, c.id)
	switch {
	case lerr != nil:
		log.Warnw("reload after failed save", "auction", c.id, "err", lerr)
	case sameRecord(stored, next):
		log.Warnw("save reported failure but was stored", "auction", c.id, "version", next.Version, "err", err)
		return nil
	case stored.Version != c.state.Version:
		c.adopt(stored)
	}
	return fmt.Errorf("%w: save auction %s: %w", ErrPersistence, c.id, err)
}

func sameRecord(a, b Auction) bool {
	return a.Version == b.Version &&
		a.Status == b.Status &&
		a.CurrentPrice == b.CurrentPrice &&
		a.HighestBidder == b.HighestBidder &&
		a.LastSequence() == b.LastSequence()
}

// adopt replaces the committed state with a record found in the store.
func (c *Coordinator) adopt(stored Auction) {
	stored = normalize(stored)
	log.Warnw("adopting stored record", "auction", c.id, "version", stored.Version, "status", stored.Status)
	c.commit(stored, SnapshotEvent(stored), false)
	if stored.Status == StatusClosed {
		c.commit(stored, ClosedEvent(stored), true)
	}
}

// commit installs next as the committed state and publishes ev to every
// subscriber in the same critical section, so subscribers observe events in
// commit order. final ends the subscriptions after ev.
func (c *Coordinator) commit(next Auction, ev Event, final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = next
	for sub := range c.subs {
		sub.push(ev)
		if final {
			sub.end(false)
		}
	}
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.state.Status = s
	c.mu.Unlock()
}
