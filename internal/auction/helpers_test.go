package auction_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errDiskFull = errors.New("disk full")

// testStore wraps a MemoryStore with fault injection and call counting.
type testStore struct {
	*store.MemoryStore

	loads     atomic.Int64
	loadDelay time.Duration
	failSaves atomic.Bool
	// lostAcks counts Saves that are applied but still report a deadline.
	lostAcks atomic.Int32

	mu      sync.Mutex
	gate    chan struct{} // when set, Save blocks until it is closed
	entered chan struct{}
}

func newTestStore() *testStore {
	return &testStore{MemoryStore: store.NewMemoryStore()}
}

func (s *testStore) Load(ctx context.Context, id string) (auction.Auction, error) {
	s.loads.Add(1)
	if s.loadDelay > 0 {
		time.Sleep(s.loadDelay)
	}
	return s.MemoryStore.Load(ctx, id)
}

func (s *testStore) Save(ctx context.Context, a auction.Auction) error {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}
	if s.failSaves.Load() {
		return errDiskFull
	}
	if err := s.MemoryStore.Save(ctx, a); err != nil {
		return err
	}
	if s.dropAck() {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *testStore) dropAck() bool {
	for {
		n := s.lostAcks.Load()
		if n <= 0 {
			return false
		}
		if s.lostAcks.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// blockSaves makes every Save wait until the returned release func runs.
// entered receives once per blocked Save.
func (s *testStore) blockSaves() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan struct{}, 1)
	gate := s.gate
	return s.entered, func() {
		s.mu.Lock()
		s.gate = nil
		s.mu.Unlock()
		close(gate)
	}
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type fixture struct {
	clock    *clock.Mock
	store    *testStore
	registry *auction.Registry
}

func newFixture(t testingT, mutate ...func(*auction.Options)) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(t0)
	opts := auction.Options{
		BidTimeout:       time.Second,
		SaveTimeout:      time.Second,
		RejectSelfOutbid: true,
		Clock:            mock,
	}
	for _, m := range mutate {
		m(&opts)
	}
	st := newTestStore()
	return &fixture{clock: mock, store: st, registry: auction.NewRegistry(st, opts)}
}

// seed persists an auction starting at start and running for d.
func (f *fixture) seed(t testingT, id string, start time.Time, d time.Duration, startPrice, increment int64) auction.Auction {
	t.Helper()
	a := auction.NewAuction(id, auction.CreateAuctionParams{
		ItemName:     "item " + id,
		StartPrice:   startPrice,
		BidIncrement: increment,
		StartTime:    start,
		EndTime:      start.Add(d),
	}, f.clock.Now())
	require.NoError(t, f.store.Create(context.Background(), a))
	return a
}

func (f *fixture) coordinator(t testingT, id string) *auction.Coordinator {
	t.Helper()
	c, err := f.registry.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	return c
}

func bid(c *auction.Coordinator, bidder string, amount int64) (auction.BidAccepted, error) {
	return c.SubmitBid(context.Background(), bidder, amount, time.Time{})
}

func drain(sub *auction.Subscription) ([]auction.Event, bool) {
	events, done, _ := sub.Drain()
	return events, done
}

func eventTypes(events []auction.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
