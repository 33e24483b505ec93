// Package api serves the rendered order list over REST and pushes order,
// edit and transaction updates to WebSocket subscribers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/orderlist"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

const shutdownTimeout = 5 * time.Second

// Refresher queues an out-of-band refresh. *refresh.Poller implements it.
type Refresher interface {
	Trigger()
}

type Config struct {
	Account        common.Address
	AllowedOrigins []string
	TxLogPath      string // empty disables the transaction log
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg       Config
	list      *orderlist.List
	refresher Refresher
	gatherer  prometheus.Gatherer
	router    *mux.Router
	hub       *Hub
	logger    *zap.SugaredLogger

	txLog   *os.File // Transaction log file
	txLogMu sync.Mutex
}

// NewServer creates a new API server. refresher and gatherer may be nil.
func NewServer(cfg Config, list *orderlist.List, refresher Refresher, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) *Server {
	s := &Server{
		cfg:       cfg,
		list:      list,
		refresher: refresher,
		gatherer:  gatherer,
		router:    mux.NewRouter(),
		hub:       NewHub(logger),
		logger:    logger,
	}

	if cfg.TxLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.TxLogPath), 0755); err != nil {
			logger.Warnw("tx_log_unavailable", "path", cfg.TxLogPath, "err", err)
		} else if f, err := os.OpenFile(cfg.TxLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err != nil {
			// continue without tx logging
			logger.Warnw("tx_log_unavailable", "path", cfg.TxLogPath, "err", err)
		} else {
			s.txLog = f
			logger.Infow("tx_log_opened", "path", cfg.TxLogPath)
		}
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order list
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	// Order actions
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/edit", s.handleEditOrder).Methods("POST")
	api.HandleFunc("/orders/refresh", s.handleRefresh).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Hub exposes the WebSocket hub so callers can observe its clients
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router wrapped in the CORS policy
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	// Start WebSocket hub
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.closeTxLog()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeTxLog()
	s.logger.Infow("api_stopped")
	return err
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	rows := s.list.Rows()
	snap := s.list.Snapshot()

	resp := OrdersResponse{
		Account:     s.cfg.Account.Hex(),
		BlockNumber: snap.BlockNumber,
		UpdatedAt:   unixMilli(snap.TakenAt),
		ReadOnly:    s.list.ReadOnly(),
		Count:       len(rows),
		Orders:      rows,
	}
	if len(rows) == 0 {
		resp.Message = orderlist.EmptyMessage
	}

	respondJSON(w, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	row, o, ok := s.list.Row(id)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", id.String())
		return
	}

	respondJSON(w, OrderDetail{Row: row, Order: orders.Wrap(o)})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeOrderID(w, r)
	if !ok {
		return
	}

	hash, err := s.list.Cancel(r.Context(), id)
	if err != nil {
		s.respondActionError(w, err)
		return
	}

	s.logTransaction("ORDER_CANCEL", map[string]interface{}{
		"order_id": id.String(),
		"tx_hash":  hash.Hex(),
	})

	respondJSON(w, CancelOrderResponse{
		Status:  orderlist.TxSubmitted,
		OrderID: id.String(),
		TxHash:  hash.Hex(),
		Message: orderlist.MsgCancelSubmitted,
	})
}

func (s *Server) handleEditOrder(w http.ResponseWriter, r *http.Request) {
	var req EditOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	id, err := orders.ParseID(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	o, err := s.list.RequestEdit(id)
	if err != nil {
		s.respondActionError(w, err)
		return
	}

	s.logTransaction("ORDER_EDIT", map[string]interface{}{
		"order_id": id.String(),
	})

	respondJSON(w, EditOrderResponse{OrderID: id.String(), Order: orders.Wrap(o)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		respondError(w, http.StatusServiceUnavailable, "refresh unavailable", "")
		return
	}
	s.refresher.Trigger()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(RefreshResponse{Status: "queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.list.Snapshot()
	respondJSON(w, HealthResponse{
		Status:      "ok",
		Orders:      s.list.Len(),
		BlockNumber: snap.BlockNumber,
		UpdatedAt:   unixMilli(snap.TakenAt),
		ReadOnly:    s.list.ReadOnly(),
	})
}

// ==============================
// Broadcast Methods (called from the refresh loop and the order list)
// ==============================

// BroadcastOrders pushes the current rows to the "orders" channel
func (s *Server) BroadcastOrders() {
	s.hub.BroadcastToChannel(ChannelOrders, OrdersUpdate{
		Type:        ChannelOrders,
		BlockNumber: s.list.Snapshot().BlockNumber,
		Orders:      s.list.Rows(),
	})
}

// BroadcastEdit pushes the order selected for editing to the "edit" channel
func (s *Server) BroadcastEdit(o orders.Order) {
	s.hub.BroadcastToChannel(ChannelEdit, EditRequest{
		Type:    ChannelEdit,
		OrderID: o.OrderID().String(),
		Order:   orders.Wrap(o),
	})
}

// BroadcastTx pushes a cancel status update to the "tx" channel
func (s *Server) BroadcastTx(status orderlist.TxStatus) {
	s.hub.BroadcastToChannel(ChannelTx, TxUpdate{Type: ChannelTx, TxStatus: status})

	if status.Status != orderlist.TxSubmitted {
		s.logTransaction("ORDER_CANCEL_"+strings.ToUpper(status.Status), map[string]interface{}{
			"order_id": status.OrderID,
			"tx_hash":  status.TxHash,
			"error":    status.Error,
		})
	}
}

// ==============================
// Helper Functions
// ==============================

func decodeOrderID(w http.ResponseWriter, r *http.Request) (orders.ID, bool) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return orders.ID{}, false
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return orders.ID{}, false
	}
	id, err := orders.ParseID(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return orders.ID{}, false
	}
	return id, true
}

func (s *Server) respondActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderlist.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, orderlist.ErrReadOnly):
		respondError(w, http.StatusForbidden, "order actions disabled", err.Error())
	default:
		respondError(w, http.StatusBadGateway, orderlist.MsgCancelFailed, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// logTransaction writes a transaction event to the log file
func (s *Server) logTransaction(eventType string, data map[string]interface{}) {
	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()

	if s.txLog == nil {
		return // Logging disabled
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     eventType,
		"account":   s.cfg.Account.Hex(),
		"data":      data,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		s.logger.Errorw("tx_log_marshal_failed", "err", err)
		return
	}

	// one JSON object per line
	s.txLog.Write(append(jsonData, '\n'))
}

func (s *Server) closeTxLog() {
	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()
	if s.txLog != nil {
		s.txLog.Close()
		s.txLog = nil
	}
}
