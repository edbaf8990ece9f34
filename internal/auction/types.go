// Package auction holds the live auction core: the per-auction bid
// coordinator, the registry of live coordinators and the lifecycle sweeper.
package auction

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is the persisted lifecycle state of an auction.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	// StatusClosing only exists inside a coordinator while the final status
	// is being written. It is never persisted.
	StatusClosing Status = "closing"
	StatusClosed  Status = "closed"
)

// Auction is the durable auction record. Prices are in minor currency units.
type Auction struct {
	ID            string     `json:"id" bson:"_id"`
	ItemName      string     `json:"itemName" bson:"itemName"`
	Description   string     `json:"description" bson:"description"`
	StartPrice    int64      `json:"startPrice" bson:"startPrice"`
	CurrentPrice  int64      `json:"currentPrice" bson:"currentPrice"`
	BidIncrement  int64      `json:"bidIncrement" bson:"bidIncrement"`
	StartTime     time.Time  `json:"startTime" bson:"startTime"`
	EndTime       time.Time  `json:"endTime" bson:"endTime"`
	ClosedAt      *time.Time `json:"closedAt,omitempty" bson:"closedAt,omitempty"`
	Status        Status     `json:"status" bson:"status"`
	HighestBidder string     `json:"highestBidder,omitempty" bson:"highestBidder,omitempty"`
	Bids          []Bid      `json:"bids" bson:"bids"`
	Version       int64      `json:"version" bson:"version"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Bid is one accepted bid. Sequence numbers start at 1 and are contiguous.
type Bid struct {
	Sequence    uint64    `json:"sequence" bson:"sequence"`
	BidderID    string    `json:"bidderId" bson:"bidderId"`
	Amount      int64     `json:"amount" bson:"amount"`
	SubmittedAt time.Time `json:"submittedAt" bson:"submittedAt"`
	AcceptedAt  time.Time `json:"acceptedAt" bson:"acceptedAt"`
}

// CreateAuctionParams describes a new auction submitted through the admin API.
type CreateAuctionParams struct {
	ItemName     string
	Description  string
	StartPrice   int64
	BidIncrement int64
	StartTime    time.Time
	EndTime      time.Time
}

// Validate reports the first problem with p.
func (p CreateAuctionParams) Validate() error {
	switch {
	case strings.TrimSpace(p.ItemName) == "":
		return fmt.Errorf("%w: item name required", ErrInvalidAuction)
	case p.StartPrice < 0:
		return fmt.Errorf("%w: start price must not be negative", ErrInvalidAuction)
	case p.BidIncrement <= 0:
		return fmt.Errorf("%w: bid increment must be positive", ErrInvalidAuction)
	case !p.EndTime.After(p.StartTime):
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidAuction)
	}
	return nil
}

// NewAuction builds the initial record for p. The caller assigns the ID.
func NewAuction(id string, p CreateAuctionParams, now time.Time) Auction {
	status := StatusScheduled
	if !now.Before(p.StartTime) {
		status = StatusActive
	}
	return Auction{
		ID:           id,
		ItemName:     p.ItemName,
		Description:  p.Description,
		StartPrice:   p.StartPrice,
		CurrentPrice: p.StartPrice,
		BidIncrement: p.BidIncrement,
		StartTime:    p.StartTime.UTC(),
		EndTime:      p.EndTime.UTC(),
		Status:       status,
		Bids:         []Bid{},
		Version:      1,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

// Clone returns a deep copy of a.
func (a Auction) Clone() Auction {
	out := a
	out.Bids = make([]Bid, len(a.Bids))
	copy(out.Bids, a.Bids)
	if a.ClosedAt != nil {
		t := *a.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// MinimumBid is the smallest amount the next bid may carry.
func (a Auction) MinimumBid() int64 {
	return a.CurrentPrice + a.BidIncrement
}

// LastSequence is the sequence number of the most recent accepted bid, or 0.
func (a Auction) LastSequence() uint64 {
	if len(a.Bids) == 0 {
		return 0
	}
	return a.Bids[len(a.Bids)-1].Sequence
}

// Apply folds ev into a. Rooms use it to keep a projection of the
// coordinator's state in step with the event feed.
func (a *Auction) Apply(ev Event) {
	switch p := ev.Payload.(type) {
	case Auction:
		*a = p.Clone()
	case BidAccepted:
		a.CurrentPrice = p.CurrentPrice
		a.HighestBidder = p.HighestBidder
		a.Bids = append(a.Bids, p.Bid)
		a.UpdatedAt = p.Bid.AcceptedAt
	case AuctionClosed:
		a.Status = StatusClosed
		a.CurrentPrice = p.FinalPrice
		a.HighestBidder = p.Winner
		t := p.ClosedAt
		a.ClosedAt = &t
	}
}

// Store is the narrow view of the durable auction store the core needs.
// Save must fail when the stored version is not a.Version-1.
type Store interface {
	Load(ctx context.Context, id string) (Auction, error)
	Save(ctx context.Context, a Auction) error
	ListActive(ctx context.Context) ([]Auction, error)
}
