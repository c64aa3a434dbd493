// Package web serves the status API: health, metrics, the order ledger and balance snapshots.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"go.uber.org/zap"
)

const (
	pollInterval      = 2 * time.Second
	heartbeatInterval = 30 * time.Second
	defaultPageLimit  = 100
	maxPageLimit      = 1000
)

type ledgerReader interface {
	After(ctx context.Context, id uint64, limit int) ([]domain.LedgerOrder, error)
	FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error)
}

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
}

// Server exposes read-only HTTP endpoints. Either store may be nil.
type Server struct {
	Addr      string
	Ledger    ledgerReader
	Snapshots balanceSnapshotReader
	l         *zap.Logger
	router    *mux.Router
}

// NewServer creates a new status server instance.
func NewServer(l *zap.Logger, addr string, ledger ledgerReader, snapshots balanceSnapshotReader) *Server {
	s := &Server{Addr: addr, Ledger: ledger, Snapshots: snapshots, l: l, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodGet)
	s.router.HandleFunc("/ledger/stream", s.handleLedgerStream).Methods(http.MethodGet)
	s.router.HandleFunc("/ledger/{id:[0-9]+}/consumers", s.handleConsumers).Methods(http.MethodGet)

	s.router.HandleFunc("/balances", s.handleBalances).Methods(http.MethodGet)
	s.router.HandleFunc("/balances/stream", s.handleBalanceStream).Methods(http.MethodGet)
}

// Handler returns the routed handler wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	return c.Handler(s.router)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("status server starting", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLedger pages ledger rows: ?after=<id>&limit=<n>&pair=BTC_USDT&exchange=binance.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger not available")
		return
	}

	q := r.URL.Query()
	after, err := parseUint(q.Get("after"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid after")
		return
	}
	limit, err := parseUint(q.Get("limit"), defaultPageLimit)
	if err != nil || limit == 0 || limit > maxPageLimit {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be in [1, %d]", maxPageLimit))
		return
	}
	filter, err := newLedgerFilter(q.Get("pair"), q.Get("exchange"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := s.Ledger.After(r.Context(), after, int(limit))
	if err != nil {
		s.l.Error("ledger page", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}

	out := make([]domain.LedgerOrder, 0, len(orders))
	for _, o := range orders {
		if filter.match(o) {
			out = append(out, o)
		}
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleConsumers(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger not available")
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	consumers, err := s.Ledger.FindConsumersOf(r.Context(), id)
	if err != nil {
		s.l.Error("ledger consumers", zap.Uint64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if consumers == nil {
		consumers = []domain.LedgerOrder{}
	}

	respondJSON(w, http.StatusOK, consumers)
}

// handleBalances returns the latest snapshot per exchange, ?exchange= narrows it to one.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot store not available")
		return
	}

	records, err := s.Snapshots.SnapshotsAfter(0)
	if err != nil {
		s.l.Error("balance snapshots", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load snapshots")
		return
	}

	exchange := r.URL.Query().Get("exchange")
	latest := make(map[string]domain.BalanceSnapshot)
	for _, rec := range records {
		if exchange != "" && rec.Snapshot.Exchange != exchange {
			continue
		}
		latest[rec.Snapshot.Exchange] = rec.Snapshot
	}

	respondJSON(w, http.StatusOK, latest)
}

func (s *Server) handleLedgerStream(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger not available")
		return
	}
	filter, err := newLedgerFilter(r.URL.Query().Get("pair"), r.URL.Query().Get("exchange"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	lastID := uint64(0)
	s.stream(w, r, "ledger", func(emit func(event string, v any) error) error {
		for {
			orders, err := s.Ledger.After(r.Context(), lastID, maxPageLimit)
			if err != nil {
				return err
			}
			for _, o := range orders {
				lastID = o.ID
				if !filter.match(o) {
					continue
				}
				if err := emit("order", o); err != nil {
					return err
				}
			}
			if len(orders) < maxPageLimit {
				return nil
			}
		}
	})
}

func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot store not available")
		return
	}

	lastIndex := uint64(0)
	s.stream(w, r, "balance", func(emit func(event string, v any) error) error {
		records, err := s.Snapshots.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := emit("balance", record.Snapshot); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		return nil
	})
}

// stream serves server-sent events. poll is called once up front and then
// every pollInterval until the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, name string, poll func(emit func(event string, v any) error) error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	emit := func(event string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "event: %s\n", event)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	}

	// headers must be set before the first write
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := poll(emit); err != nil {
		s.l.Error("stream initial load", zap.String("stream", name), zap.Error(err))
		return
	}
	flusher.Flush()

	// comment heartbeat keeps proxies from dropping the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := poll(emit); err != nil {
				s.l.Warn("stream poll", zap.String("stream", name), zap.Error(err))
			}
		}
	}
}

type ledgerFilter struct {
	pair     *domain.Pair
	exchange string
}

func newLedgerFilter(pair, exchange string) (ledgerFilter, error) {
	f := ledgerFilter{exchange: exchange}
	if pair != "" {
		p, err := domain.ParsePair(pair)
		if err != nil {
			return ledgerFilter{}, err
		}
		f.pair = &p
	}
	return f, nil
}

func (f ledgerFilter) match(o domain.LedgerOrder) bool {
	if f.pair != nil && o.Pair != *f.pair {
		return false
	}
	return f.exchange == "" || o.Exchange == f.exchange
}

func parseUint(v string, def uint64) (uint64, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
