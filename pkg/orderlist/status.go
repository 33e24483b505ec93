package orderlist

const (
	MsgCancelSubmitted = "Cancel submitted"
	MsgCancelled       = "Order cancelled"
	MsgCancelFailed    = "Cancel failed"
)

const (
	TxSubmitted = "submitted"
	TxConfirmed = "confirmed"
	TxFailed    = "failed"
)

// TxStatus is one step of a cancel transaction's lifecycle
type TxStatus struct {
	OrderID string `json:"orderId"`
	TxHash  string `json:"txHash,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
