package auction_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

func TestBiddingScenario(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, sub := c.Subscribe()

	_, err := bid(c, "A", 105)
	assert.ErrorIs(t, err, auction.ErrBidTooLow)

	accepted, err := bid(c, "B", 110)
	require.NoError(t, err)
	assert.Equal(t, int64(110), accepted.CurrentPrice)
	assert.Equal(t, "B", accepted.HighestBidder)
	assert.Equal(t, uint64(1), accepted.Sequence)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i, bidder := range []string{"C", "D"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = bid(c, bidder, 120)
		}()
	}
	close(start)
	wg.Wait()

	var won string
	switch {
	case errs[0] == nil:
		won = "C"
		assert.ErrorIs(t, errs[1], auction.ErrBidTooLow)
	case errs[1] == nil:
		won = "D"
		assert.ErrorIs(t, errs[0], auction.ErrBidTooLow)
	default:
		t.Fatalf("no concurrent bid accepted: %v", errs)
	}

	f.clock.Add(time.Hour)
	require.NoError(t, c.Advance(context.Background()))

	events, done := drain(sub)
	assert.True(t, done)
	require.Equal(t, []string{auction.EventBidAccepted, auction.EventBidAccepted, auction.EventAuctionClosed}, eventTypes(events))
	closed := events[2].Payload.(auction.AuctionClosed)
	assert.Equal(t, won, closed.Winner)
	assert.Equal(t, int64(120), closed.FinalPrice)
	assert.Equal(t, f.clock.Now(), closed.ClosedAt)

	_, err = bid(c, "E", 200)
	assert.ErrorIs(t, err, auction.ErrAuctionNotActive)

	stored, err := f.store.Load(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, stored.Status)
	assert.Equal(t, won, stored.HighestBidder)
	assert.Len(t, stored.Bids, 2)
}

func TestSubmitBidInvalid(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")

	_, err := bid(c, "", 500)
	assert.ErrorIs(t, err, auction.ErrInvalidBid)
	_, err = bid(c, "A", 0)
	assert.ErrorIs(t, err, auction.ErrInvalidBid)
	_, err = bid(c, "A", -20)
	assert.ErrorIs(t, err, auction.ErrInvalidBid)
	assert.Empty(t, c.Snapshot().Bids)
}

func TestSubmitBidFirstBidNeedsIncrement(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")

	_, err := bid(c, "A", 100)
	assert.ErrorIs(t, err, auction.ErrBidTooLow)
	_, err = bid(c, "A", 110)
	assert.NoError(t, err)
}

func TestSelfOutbid(t *testing.T) {
	t.Run("rejected by default", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "a1", t0, time.Hour, 100, 10)
		c := f.coordinator(t, "a1")

		_, err := bid(c, "A", 110)
		require.NoError(t, err)
		_, err = bid(c, "A", 200)
		assert.ErrorIs(t, err, auction.ErrDuplicateHighBidder)
		assert.Equal(t, int64(110), c.Snapshot().CurrentPrice)
	})

	t.Run("allowed when disabled", func(t *testing.T) {
		f := newFixture(t, func(o *auction.Options) { o.RejectSelfOutbid = false })
		f.seed(t, "a1", t0, time.Hour, 100, 10)
		c := f.coordinator(t, "a1")

		_, err := bid(c, "A", 110)
		require.NoError(t, err)
		accepted, err := bid(c, "A", 200)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), accepted.Sequence)
	})
}

func TestSubmitBidAfterEndTimeBeforeSweep(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Minute, 100, 10)
	c := f.coordinator(t, "a1")

	f.clock.Add(time.Minute)
	_, err := bid(c, "A", 500)
	assert.ErrorIs(t, err, auction.ErrAuctionNotActive)
	assert.Equal(t, auction.StatusActive, c.Status())
}

func TestLazyActivation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0.Add(time.Minute), time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	assert.Equal(t, auction.StatusScheduled, c.Status())
	_, sub := c.Subscribe()

	_, err := bid(c, "A", 110)
	assert.ErrorIs(t, err, auction.ErrAuctionNotActive)

	f.clock.Add(time.Minute)
	_, err = bid(c, "A", 110)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, c.Status())

	stored, err := f.store.Load(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, stored.Status)
	assert.Equal(t, int64(3), stored.Version)

	events, _ := drain(sub)
	assert.Equal(t, []string{auction.EventSnapshot, auction.EventBidAccepted}, eventTypes(events))
}

func TestPersistenceFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	before := c.Snapshot()
	_, sub := c.Subscribe()

	f.store.failSaves.Store(true)
	_, err := bid(c, "A", 110)
	require.ErrorIs(t, err, auction.ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, before, c.Snapshot())
	events, _ := drain(sub)
	assert.Empty(t, events)

	f.store.failSaves.Store(false)
	accepted, err := bid(c, "A", 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), accepted.Sequence)
}

func TestBidTimeoutWhileBusy(t *testing.T) {
	f := newFixture(t, func(o *auction.Options) { o.BidTimeout = 50 * time.Millisecond })
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")

	entered, release := f.store.blockSaves()
	first := make(chan error, 1)
	go func() {
		_, err := bid(c, "A", 110)
		first <- err
	}()
	<-entered

	_, err := bid(c, "B", 200)
	assert.ErrorIs(t, err, auction.ErrTimeout)
	assert.Equal(t, auction.ReasonTimeout, auction.RejectReason(err))

	release()
	require.NoError(t, <-first)
	assert.Equal(t, "A", c.Snapshot().HighestBidder)
}

func TestBidRespectsContextWhileBusy(t *testing.T) {
	f := newFixture(t, func(o *auction.Options) { o.BidTimeout = time.Minute })
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")

	entered, release := f.store.blockSaves()
	defer release()
	go func() { _, _ = bid(c, "A", 110) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.SubmitBid(ctx, "B", 200, time.Time{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, sub := c.Subscribe()

	_, err := bid(c, "A", 110)
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	events, done := drain(sub)
	assert.True(t, done)
	assert.Equal(t, []string{auction.EventBidAccepted, auction.EventAuctionClosed}, eventTypes(events))

	closedAt, ok := c.ClosedAt()
	assert.True(t, ok)
	assert.Equal(t, t0, closedAt)

	for _, amount := range []int64{120, 1000} {
		_, err := bid(c, "B", amount)
		assert.ErrorIs(t, err, auction.ErrAuctionNotActive)
	}
}

func TestCloseFailureReverts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, sub := c.Subscribe()

	f.store.failSaves.Store(true)
	err := c.Close(context.Background())
	require.ErrorIs(t, err, auction.ErrPersistence)
	assert.Equal(t, auction.StatusActive, c.Status())
	events, done := drain(sub)
	assert.Empty(t, events)
	assert.False(t, done)

	f.store.failSaves.Store(false)
	_, err = bid(c, "A", 110)
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, auction.StatusClosed, c.Status())
}

func TestSubscribeSeesOnlyLaterEvents(t *testing.T) {
	f := newFixture(t, func(o *auction.Options) { o.RejectSelfOutbid = false })
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")

	for i := int64(1); i <= 3; i++ {
		_, err := bid(c, "A", 100+10*i)
		require.NoError(t, err)
	}
	snap, sub := c.Subscribe()
	assert.Len(t, snap.Bids, 3)
	assert.Equal(t, int64(130), snap.CurrentPrice)

	for i := int64(4); i <= 5; i++ {
		_, err := bid(c, "B", 100+10*i)
		require.NoError(t, err)
	}
	events, _ := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(4), events[0].Payload.(auction.BidAccepted).Sequence)
	assert.Equal(t, uint64(5), events[1].Payload.(auction.BidAccepted).Sequence)

	// The projection built from snapshot plus events matches the coordinator.
	for _, ev := range events {
		snap.Apply(ev)
	}
	live := c.Snapshot()
	assert.Equal(t, live.CurrentPrice, snap.CurrentPrice)
	assert.Equal(t, live.HighestBidder, snap.HighestBidder)
	assert.Equal(t, live.Bids, snap.Bids)
}

func TestSubscribeClosedAuction(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	require.NoError(t, c.Close(context.Background()))

	snap, sub := c.Subscribe()
	assert.Equal(t, auction.StatusClosed, snap.Status)
	events, done, retired := sub.Drain()
	assert.Empty(t, events)
	assert.True(t, done)
	assert.False(t, retired)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, err := bid(c, "A", 110)
	require.NoError(t, err)

	snap := c.Snapshot()
	snap.Bids[0].Amount = 1
	snap.CurrentPrice = 1
	assert.Equal(t, int64(110), c.Snapshot().Bids[0].Amount)
	assert.Equal(t, int64(110), c.Snapshot().CurrentPrice)
}

func TestSaveAppliedDespiteErrorIsCommitted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, sub := c.Subscribe()

	f.store.lostAcks.Store(1)
	accepted, err := bid(c, "ann", 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), accepted.Sequence)

	live := c.Snapshot()
	stored, err := f.store.Load(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, stored.Version, live.Version)
	assert.Equal(t, int64(110), live.CurrentPrice)
	assert.Equal(t, "ann", live.HighestBidder)

	// The auction keeps working afterwards, close included.
	_, err = bid(c, "bob", 500)
	require.NoError(t, err)
	f.store.lostAcks.Store(1)
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, auction.StatusClosed, c.Status())

	stored, err = f.store.Load(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, stored.Status)
	assert.Equal(t, int64(500), stored.CurrentPrice)

	events, done := drain(sub)
	assert.True(t, done)
	assert.Equal(t, []string{auction.EventBidAccepted, auction.EventBidAccepted, auction.EventAuctionClosed}, eventTypes(events))
}

func TestStoredRecordAheadIsAdopted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0, time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, sub := c.Subscribe()

	ahead, err := f.store.Load(context.Background(), "a1")
	require.NoError(t, err)
	ahead.CurrentPrice = 300
	ahead.HighestBidder = "zed"
	ahead.Bids = append(ahead.Bids, auction.Bid{Sequence: 1, BidderID: "zed", Amount: 300, SubmittedAt: t0, AcceptedAt: t0})
	ahead.Version++
	require.NoError(t, f.store.MemoryStore.Save(context.Background(), ahead))

	_, err = bid(c, "ann", 110)
	require.ErrorIs(t, err, auction.ErrPersistence)

	live := c.Snapshot()
	assert.Equal(t, ahead.Version, live.Version)
	assert.Equal(t, int64(300), live.CurrentPrice)
	assert.Equal(t, "zed", live.HighestBidder)

	events, _ := drain(sub)
	require.Equal(t, []string{auction.EventSnapshot}, eventTypes(events))
	assert.Equal(t, int64(300), events[0].Payload.(auction.Auction).CurrentPrice)

	_, err = bid(c, "ann", 300)
	assert.ErrorIs(t, err, auction.ErrBidTooLow)
	accepted, err := bid(c, "ann", 310)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), accepted.Sequence)
}

func TestCloseBeforeStartIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a1", t0.Add(time.Hour), time.Hour, 100, 10)
	c := f.coordinator(t, "a1")
	_, sub := c.Subscribe()

	err := c.Close(context.Background())
	require.ErrorIs(t, err, auction.ErrAuctionNotActive)
	assert.Equal(t, auction.StatusScheduled, c.Status())

	// Once the start time has passed the auction activates before closing.
	f.clock.Add(time.Hour + time.Minute)
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, auction.StatusClosed, c.Status())

	events, done := drain(sub)
	assert.True(t, done)
	assert.Equal(t, []string{auction.EventSnapshot, auction.EventAuctionClosed}, eventTypes(events))
	assert.Equal(t, auction.StatusActive, events[0].Payload.(auction.Auction).Status)
}
