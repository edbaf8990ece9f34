package auction

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no persisted record exists for an id.
	ErrNotFound = errors.New("auction not found")
	// ErrAuctionNotActive rejects bids outside the active window.
	ErrAuctionNotActive = errors.New("auction not active")
	// ErrBidTooLow rejects bids below current price plus increment.
	ErrBidTooLow = errors.New("bid too low")
	// ErrDuplicateHighBidder rejects a bid from the current highest bidder.
	ErrDuplicateHighBidder = errors.New("bidder already holds the highest bid")
	// ErrInvalidBid rejects malformed bids (empty bidder, non-positive amount).
	ErrInvalidBid = errors.New("invalid bid")
	// ErrInvalidAuction is returned for create requests that fail validation.
	ErrInvalidAuction = errors.New("invalid auction")
	// ErrPersistence means the durable write failed and nothing was applied.
	ErrPersistence = errors.New("persistence failure")
	// ErrTimeout means the auction stayed busy longer than the bid timeout.
	// Callers may retry.
	ErrTimeout = errors.New("auction busy, retry")
)

// Rejection reason codes sent to clients.
const (
	ReasonNotActive   = "auction_not_active"
	ReasonTooLow      = "bid_too_low"
	ReasonDuplicate   = "duplicate_high_bidder"
	ReasonInvalid     = "invalid_bid"
	ReasonPersistence = "persistence_failure"
	ReasonTimeout     = "timeout"
	ReasonNotFound    = "not_found"
	ReasonRateLimited = "rate_limited"
	ReasonInternal    = "internal_error"
)

// RejectReason maps an error from SubmitBid to its protocol reason code.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrAuctionNotActive):
		return ReasonNotActive
	case errors.Is(err, ErrBidTooLow):
		return ReasonTooLow
	case errors.Is(err, ErrDuplicateHighBidder):
		return ReasonDuplicate
	case errors.Is(err, ErrInvalidBid):
		return ReasonInvalid
	case errors.Is(err, ErrPersistence):
		return ReasonPersistence
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	}
	return ReasonInternal
}

// IsRejection reports whether err is an expected, user-facing bid rejection
// that should not be logged as an error.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAuctionNotActive) ||
		errors.Is(err, ErrBidTooLow) ||
		errors.Is(err, ErrDuplicateHighBidder) ||
		errors.Is(err, ErrInvalidBid)
}
