package api

import (
	"github.com/uhyunpark/orderwatch/pkg/orderlist"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// OrdersResponse is the rendered order list of the watched account
type OrdersResponse struct {
	Account     string          `json:"account"`
	BlockNumber uint64          `json:"blockNumber"` // block the market data was read at
	UpdatedAt   int64           `json:"updatedAt"`   // Unix milliseconds, 0 before the first refresh
	ReadOnly    bool            `json:"readOnly"`
	Count       int             `json:"count"`
	Message     string          `json:"message,omitempty"` // "No open orders" when empty
	Orders      []orderlist.Row `json:"orders"`
}

// OrderDetail is one rendered row plus the raw order it came from
type OrderDetail struct {
	Row   orderlist.Row   `json:"row"`
	Order orders.Envelope `json:"order"`
}

// HealthResponse reports liveness and refresh progress
type HealthResponse struct {
	Status      string `json:"status"`
	Orders      int    `json:"orders"`
	BlockNumber uint64 `json:"blockNumber"`
	UpdatedAt   int64  `json:"updatedAt"`
	ReadOnly    bool   `json:"readOnly"`
}

// ==============================
// REST Request Types
// ==============================

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel
type CancelOrderRequest struct {
	OrderID string `json:"orderId"` // e.g. "decrease-7"
}

// CancelOrderResponse is returned once the cancel transaction is accepted by the node
type CancelOrderResponse struct {
	Status  string `json:"status"` // "submitted"
	OrderID string `json:"orderId"`
	TxHash  string `json:"txHash"`
	Message string `json:"message"`
}

// EditOrderRequest is the payload for POST /api/v1/orders/edit
type EditOrderRequest struct {
	OrderID string `json:"orderId"`
}

// EditOrderResponse echoes the order selected for editing
type EditOrderResponse struct {
	OrderID string          `json:"orderId"`
	Order   orders.Envelope `json:"order"`
}

// RefreshResponse is returned by POST /api/v1/orders/refresh
type RefreshResponse struct {
	Status string `json:"status"` // "queued"
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

const (
	ChannelOrders = "orders"
	ChannelEdit   = "edit"
	ChannelTx     = "tx"
)

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // "orders", "edit", "tx"
}

// OrdersUpdate is broadcast after every refresh
type OrdersUpdate struct {
	Type        string          `json:"type"` // "orders"
	BlockNumber uint64          `json:"blockNumber"`
	Orders      []orderlist.Row `json:"orders"`
}

// EditRequest is broadcast when an order is selected for editing
type EditRequest struct {
	Type    string          `json:"type"` // "edit"
	OrderID string          `json:"orderId"`
	Order   orders.Envelope `json:"order"`
}

// TxUpdate is broadcast at each step of a cancel transaction
type TxUpdate struct {
	Type string `json:"type"` // "tx"
	orderlist.TxStatus
}
