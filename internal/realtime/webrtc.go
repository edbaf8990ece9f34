package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/room"
)

// DataChannelLabel is the only DataChannel label the server accepts.
const DataChannelLabel = "auction-v1"

type sdpMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// SignalHandler negotiates a WebRTC peer connection over a short-lived
// WebSocket and then runs the bidding protocol over its DataChannel.
type SignalHandler struct {
	Hub        *room.Hub
	Auth       Authenticator
	Limits     Limits
	ICEServers []string
	Upgrader   websocket.Upgrader
	// API builds peer connections. Nil uses pion's defaults.
	API *webrtc.API
}

func (s *SignalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := identify(s.Auth, r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	ws, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugw("signal upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(30 * time.Second))
	var offer sdpMsg
	if err := ws.ReadJSON(&offer); err != nil || offer.Type != "offer" || offer.SDP == "" {
		_ = ws.WriteJSON(errorEvent("", errors.New("expected offer")))
		return
	}

	api := s.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(s.ICEServers),
	})
	if err != nil {
		log.Warnw("create peer connection", "err", err)
		return
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			log.Debugw("peer connection ended", "state", state.String(), "remote", r.RemoteAddr)
			_ = pc.Close()
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			log.Debugw("unexpected data channel", "label", dc.Label())
			_ = dc.Close()
			return
		}
		s.serveChannel(pc, dc, identity)
	})

	answer, err := negotiate(pc, offer.SDP)
	if err != nil {
		log.Debugw("sdp negotiation failed", "err", err, "remote", r.RemoteAddr)
		_ = ws.WriteJSON(errorEvent("", err))
		_ = pc.Close()
		return
	}
	if err := ws.WriteJSON(sdpMsg{Type: "answer", SDP: answer}); err != nil {
		_ = pc.Close()
		return
	}

	// Give the client a moment to read the answer before the socket closes.
	// The peer connection outlives this handler.
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, _ = ws.ReadMessage()
}

func negotiate(pc *webrtc.PeerConnection, sdp string) (string, error) {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	gather := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	<-gather
	return pc.LocalDescription().SDP, nil
}

func (s *SignalHandler) serveChannel(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, identity string) {
	conn := &dcConn{dc: dc, pc: pc}
	session := NewSession(s.Hub, conn, identity, s.Limits)
	ctx, cancel := context.WithCancel(context.Background())
	inbox := make(chan []byte, 64)

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case inbox <- msg.Data:
		case <-ctx.Done():
		}
	})
	dc.OnClose(cancel)

	// Bids block for up to the bid timeout; keep them off pion's read loop.
	go func() {
		defer session.Close()
		defer cancel()
		for {
			select {
			case data := <-inbox:
				if err := session.Handle(ctx, data); err != nil {
					if !errors.Is(err, errLeft) {
						log.Debugw("datachannel session ended", "err", err)
					}
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// dcConn adapts a DataChannel to room.Conn. Closing it tears down the
// whole peer connection.
type dcConn struct {
	dc   *webrtc.DataChannel
	pc   *webrtc.PeerConnection
	once sync.Once
}

func (c *dcConn) Send(ev auction.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.dc.SendText(string(data))
}

func (c *dcConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.dc.Close()
		err = c.pc.Close()
	})
	return err
}
