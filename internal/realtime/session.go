package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/room"
)

// Limits bounds how fast one connection may submit bids.
type Limits struct {
	BidsPerSecond float64
	BidBurst      int
}

func (l Limits) limiter() *rate.Limiter {
	if l.BidsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.BidBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.BidsPerSecond), burst)
}

// Session runs the protocol for one connection independent of transport.
// The first message must be a join; after that the connection may bid and
// leave. Handle is not safe for concurrent use.
type Session struct {
	hub      *room.Hub
	conn     room.Conn
	identity string
	limiter  *rate.Limiter
	member   *room.Membership
}

// NewSession creates a session writing to conn. identity is the
// authenticated bidder id, or empty when joins are trusted.
func NewSession(hub *room.Hub, conn room.Conn, identity string, limits Limits) *Session {
	return &Session{
		hub:      hub,
		conn:     conn,
		identity: identity,
		limiter:  limits.limiter(),
	}
}

// Member returns the room membership, or nil before a successful join.
func (s *Session) Member() *room.Membership { return s.member }

// Handle processes one inbound message. A non-nil error ends the session;
// the caller should then call Close.
func (s *Session) Handle(ctx context.Context, data []byte) error {
	msg, err := decodeMessage(data)
	if err != nil {
		err = fmt.Errorf("malformed message: %w", err)
		if s.member == nil {
			s.reply(errorEvent("", err))
			return err
		}
		s.reply(errorEvent(s.member.AuctionID, err))
		return nil
	}

	if s.member == nil {
		if msg.Type != MsgJoin {
			s.reply(errorEvent(msg.AuctionID, ErrNotJoined))
			return ErrNotJoined
		}
		return s.join(ctx, msg)
	}

	switch msg.Type {
	case MsgBid:
		s.bid(ctx, msg)
		return nil
	case MsgLeave:
		return errLeft
	case MsgJoin:
		s.reply(errorEvent(s.member.AuctionID, ErrAlreadyJoined))
		return nil
	}
	s.reply(errorEvent(s.member.AuctionID, fmt.Errorf("%w %q", ErrUnknownMessage, msg.Type)))
	return nil
}

// Close leaves the room, or closes the connection if the session never
// joined. It is safe to call more than once.
func (s *Session) Close() {
	if s.member != nil {
		s.hub.Leave(s.member)
		return
	}
	_ = s.conn.Close()
}

func (s *Session) join(ctx context.Context, msg ClientMessage) error {
	bidder := msg.BidderID
	if s.identity != "" {
		if bidder == "" {
			bidder = s.identity
		} else if bidder != s.identity {
			s.reply(errorEvent(msg.AuctionID, ErrBidderMismatch))
			return ErrBidderMismatch
		}
	}

	m, err := s.hub.Join(ctx, msg.AuctionID, bidder, s.conn)
	if err != nil {
		if errors.Is(err, auction.ErrNotFound) {
			s.reply(errorEvent(msg.AuctionID, fmt.Errorf("%s: %w", auction.ReasonNotFound, err)))
		} else {
			s.reply(errorEvent(msg.AuctionID, err))
		}
		return err
	}
	s.member = m
	log.Debugw("joined", "auction", m.AuctionID, "bidder", m.BidderID, "member", m.ID)
	return nil
}

func (s *Session) bid(ctx context.Context, msg ClientMessage) {
	id := s.member.AuctionID
	if msg.AuctionID != "" && msg.AuctionID != id {
		s.member.Send(auction.RejectedEvent(id, msg.Amount,
			fmt.Errorf("%w: joined %s, bid names %s", auction.ErrInvalidBid, id, msg.AuctionID)))
		return
	}
	if !s.limiter.Allow() {
		s.member.Send(rateLimitedEvent(id, msg.Amount))
		return
	}
	// Accepted bids reach this connection through the room broadcast.
	if _, err := s.member.Bid(ctx, msg.Amount, time.Now().UTC()); err != nil {
		s.member.Send(auction.RejectedEvent(id, msg.Amount, err))
	}
}

// reply sends ev through the membership outbox once joined so it stays
// ordered with room events, or directly before that.
func (s *Session) reply(ev auction.Event) {
	if s.member != nil {
		s.member.Send(ev)
		return
	}
	if err := s.conn.Send(ev); err != nil {
		log.Debugw("reply failed", "err", err)
	}
}
