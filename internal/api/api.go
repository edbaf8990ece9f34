// Package api serves the HTTP surface of auctiond: auction reads, admin
// creation, metrics and the real-time transport endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/store"
)

var log = logging.Logger("api")

// CreateAuctionRequest is the admin create payload. Amounts are in minor
// currency units. EndTime wins over DurationSeconds when both are set.
type CreateAuctionRequest struct {
	ItemName        string     `json:"itemName"`
	Description     string     `json:"description"`
	StartPrice      int64      `json:"startPrice"`
	BidIncrement    int64      `json:"bidIncrement"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int64      `json:"durationSeconds,omitempty"`
}

func (req CreateAuctionRequest) params(now time.Time) auction.CreateAuctionParams {
	start := now
	if req.StartTime != nil {
		start = *req.StartTime
	}
	var end time.Time
	switch {
	case req.EndTime != nil:
		end = *req.EndTime
	case req.DurationSeconds > 0:
		end = start.Add(time.Duration(req.DurationSeconds) * time.Second)
	}
	return auction.CreateAuctionParams{
		ItemName:     req.ItemName,
		Description:  req.Description,
		StartPrice:   req.StartPrice,
		BidIncrement: req.BidIncrement,
		StartTime:    start,
		EndTime:      end,
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store    store.Backend
	registry *auction.Registry
}

// Transports are the real-time endpoints mounted next to the API.
type Transports struct {
	WebSocket http.Handler
	Signal    http.Handler
}

// NewRouter builds the full HTTP handler.
func NewRouter(backend store.Backend, registry *auction.Registry, t Transports) *mux.Router {
	s := &Server{store: backend, registry: registry}

	r := mux.NewRouter()
	r.Use(simpleCORS)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/auctions", s.listAuctions).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/auctions", s.createAuction).Methods(http.MethodPost)
	r.HandleFunc("/api/auctions/{id}", s.getAuction).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if t.WebSocket != nil {
		r.Handle("/ws", t.WebSocket)
	}
	if t.Signal != nil {
		r.Handle("/signal", t.Signal)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// listAuctions returns every stored record with live state overlaid for
// auctions that currently have a coordinator.
func (s *Server) listAuctions(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		log.Warnw("list auctions", "err", err)
		writeErr(w, http.StatusInternalServerError, "list failed")
		return
	}
	for i, a := range records {
		if c := s.registry.Get(a.ID); c != nil {
			records[i] = c.Snapshot()
		}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getAuction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if c := s.registry.Get(id); c != nil {
		writeJSON(w, http.StatusOK, c.Snapshot())
		return
	}
	a, err := s.store.Load(r.Context(), id)
	if errors.Is(err, auction.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		log.Warnw("load auction", "id", id, "err", err)
		writeErr(w, http.StatusInternalServerError, "load failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) createAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	now := s.registry.Options().Clock.Now()
	p := req.params(now)
	if err := p.Validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	a := auction.NewAuction(uuid.NewString(), p, now)
	if err := s.store.Create(r.Context(), a); err != nil {
		log.Warnw("create auction", "id", a.ID, "err", err)
		writeErr(w, http.StatusInternalServerError, "create failed")
		return
	}
	log.Infow("auction created", "id", a.ID, "item", a.ItemName, "start", a.StartTime, "end", a.EndTime)
	writeJSON(w, http.StatusCreated, a)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// simpleCORS echoes the caller's origin and short-circuits preflights.
func simpleCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
