// Package realtime implements the live bidding protocol over WebSocket and
// WebRTC DataChannel transports.
package realtime

import (
	"encoding/json"
	"errors"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

var log = logging.Logger("realtime")

// Client message types.
const (
	MsgJoin  = "join"
	MsgBid   = "bid"
	MsgLeave = "leave"
)

var (
	ErrNotJoined      = errors.New("join required before any other message")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrBidderMismatch = errors.New("bidder id does not match authenticated identity")
	ErrRateLimited    = errors.New("too many bids")
	ErrUnknownMessage = errors.New("unknown message type")
	errLeft           = errors.New("session left")
)

// ClientMessage is any message sent by a participant. Fields not used by a
// given type are ignored.
type ClientMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId,omitempty"`
	BidderID  string `json:"bidderId,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
}

func decodeMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

func errorEvent(auctionID string, err error) auction.Event {
	return auction.Event{
		Type:      auction.EventError,
		AuctionID: auctionID,
		Payload:   auction.ErrorPayload{Message: err.Error()},
	}
}

func rateLimitedEvent(auctionID string, amount int64) auction.Event {
	return auction.Event{
		Type:      auction.EventBidRejected,
		AuctionID: auctionID,
		Payload: auction.BidRejected{
			AuctionID: auctionID,
			Amount:    amount,
			Reason:    auction.ReasonRateLimited,
			Message:   ErrRateLimited.Error(),
		},
	}
}
