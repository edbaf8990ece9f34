package auction

import "time"

// Event types sent to room members.
const (
	EventSnapshot      = "snapshot"
	EventBidAccepted   = "bid_accepted"
	EventBidRejected   = "bid_rejected"
	EventAuctionClosed = "auction_closed"
	EventPresence      = "presence"
	EventError         = "error"
)

// Event is the outbound envelope. Payload is one of Auction, BidAccepted,
// BidRejected, AuctionClosed, Presence or ErrorPayload.
type Event struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId"`
	Payload   any    `json:"payload,omitempty"`
}

// BidAccepted is published after a bid is durably recorded.
type BidAccepted struct {
	AuctionID     string `json:"auctionId"`
	CurrentPrice  int64  `json:"currentPrice"`
	HighestBidder string `json:"highestBidder"`
	Sequence      uint64 `json:"sequence"`
	Bid           Bid    `json:"bid"`
}

// BidRejected is sent only to the connection that submitted the bid.
type BidRejected struct {
	AuctionID string `json:"auctionId"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// AuctionClosed is always the last event of an auction.
type AuctionClosed struct {
	AuctionID  string    `json:"auctionId"`
	Winner     string    `json:"winner,omitempty"`
	FinalPrice int64     `json:"finalPrice"`
	ClosedAt   time.Time `json:"closedAt"`
}

// Presence reports the number of live connections in a room.
type Presence struct {
	Participants int `json:"participants"`
}

// ErrorPayload carries protocol errors.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SnapshotEvent wraps a deep copy of a.
func SnapshotEvent(a Auction) Event {
	return Event{Type: EventSnapshot, AuctionID: a.ID, Payload: a.Clone()}
}

// ClosedEvent builds the terminal event for a closed auction.
func ClosedEvent(a Auction) Event {
	closed := AuctionClosed{
		AuctionID:  a.ID,
		Winner:     a.HighestBidder,
		FinalPrice: a.CurrentPrice,
		ClosedAt:   a.EndTime,
	}
	if a.ClosedAt != nil {
		closed.ClosedAt = *a.ClosedAt
	}
	return Event{Type: EventAuctionClosed, AuctionID: a.ID, Payload: closed}
}

// RejectedEvent builds the rejection sent back to a bidder.
func RejectedEvent(auctionID string, amount int64, err error) Event {
	return Event{
		Type:      EventBidRejected,
		AuctionID: auctionID,
		Payload: BidRejected{
			AuctionID: auctionID,
			Amount:    amount,
			Reason:    RejectReason(err),
			Message:   err.Error(),
		},
	}
}
