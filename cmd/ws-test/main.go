// Command ws-test is a smoke client for a running auctiond. It creates a
// short auction, joins it over WebSocket, places a bid at the minimum and
// waits for the bid to be broadcast back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

var log = logging.Logger("ws-test")

type envelope struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auctionId"`
	Payload   json.RawMessage `json:"payload"`
}

func main() {
	logging.SetAllLoggers(logging.LevelInfo)

	api := getenv("API", "http://localhost:8080")
	bidder := getenv("BIDDER", "cli-1")
	wsURL := toWS(api) + "/ws"
	log.Infow("starting", "api", api, "ws", wsURL, "bidder", bidder)

	// 1) Create a short auction
	createBody := map[string]any{
		"itemName":        "CLI Test Auction",
		"description":     "created by ws-test",
		"startPrice":      100,
		"bidIncrement":    10,
		"durationSeconds": 30,
	}
	var created auction.Auction
	must(httpPostJSON(api+"/api/auctions", createBody, &created))
	log.Infow("created auction", "id", created.ID, "endTime", created.EndTime.Format(time.RFC3339))

	// 2) Connect and join
	header := http.Header{}
	if h := os.Getenv("BIDDER_HEADER"); h != "" {
		header.Set(h, bidder)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		log.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	must(conn.WriteJSON(map[string]any{"type": "join", "auctionId": created.ID, "bidderId": bidder}))

	// 3) Wait for the snapshot
	var initial auction.Auction
	decode(waitFor(conn, auction.EventSnapshot, 5*time.Second), &initial)
	log.Infow("snapshot", "price", initial.CurrentPrice, "minimum", initial.MinimumBid(), "status", initial.Status)

	// 4) Bid the minimum and wait for the broadcast
	next := initial.MinimumBid()
	must(conn.WriteJSON(map[string]any{"type": "bid", "auctionId": created.ID, "amount": next}))
	log.Infow("placed bid", "amount", next)

	var accepted auction.BidAccepted
	decode(waitFor(conn, auction.EventBidAccepted, 5*time.Second), &accepted)
	if accepted.CurrentPrice != next || accepted.HighestBidder != bidder || accepted.Sequence != 1 {
		log.Fatalf("unexpected bid_accepted: %+v", accepted)
	}

	// 5) A repeat bid from the leader is rejected by default
	must(conn.WriteJSON(map[string]any{"type": "bid", "auctionId": created.ID, "amount": next + created.BidIncrement}))
	var rejected auction.BidRejected
	if env, ok := tryWait(conn, auction.EventBidRejected, 2*time.Second); ok {
		decode(env, &rejected)
		log.Infow("repeat bid rejected", "reason", rejected.Reason)
	} else {
		log.Info("repeat bid not rejected (self-outbid allowed)")
	}

	_ = conn.WriteJSON(map[string]any{"type": "leave"})
	log.Info("WS test passed")
}

func waitFor(conn *websocket.Conn, typ string, timeout time.Duration) envelope {
	env, ok := tryWait(conn, typ, timeout)
	if !ok {
		log.Fatalf("timeout waiting for %s", typ)
	}
	return env
}

func tryWait(conn *websocket.Conn, typ string, timeout time.Duration) (envelope, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return envelope{}, false
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == auction.EventError {
			log.Fatalf("server error: %s", env.Payload)
		}
		if env.Type == typ {
			return env, true
		}
	}
}

func decode(env envelope, out any) {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		log.Fatalf("decode %s: %v", env.Type, err)
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func httpPostJSON(url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func toWS(httpURL string) string {
	if strings.HasPrefix(httpURL, "https") {
		return "wss" + httpURL[5:]
	}
	if strings.HasPrefix(httpURL, "http") {
		return "ws" + httpURL[4:]
	}
	return httpURL
}
