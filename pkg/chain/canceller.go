package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/pkg/crypto"
	"github.com/uhyunpark/orderwatch/pkg/orders"
	"github.com/uhyunpark/orderwatch/pkg/util"
)

// ErrTxReverted is returned by Confirm when the transaction was mined but failed
var ErrTxReverted = errors.New("transaction reverted")

// TxBackend is satisfied by *ethclient.Client
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var cancelMethods = map[orders.Kind]string{
	orders.KindSwap:     "cancelSwapOrder",
	orders.KindIncrease: "cancelIncreaseOrder",
	orders.KindDecrease: "cancelDecreaseOrder",
}

// Canceller submits cancel transactions to the OrderBook. It never retries.
type Canceller struct {
	backend      TxBackend
	signer       *crypto.Signer
	orderBook    common.Address
	chainID      *big.Int
	pollInterval time.Duration
	clock        util.Clock
	logger       *zap.SugaredLogger
}

func NewCanceller(backend TxBackend, signer *crypto.Signer, orderBook common.Address, chainID *big.Int, clock util.Clock, logger *zap.SugaredLogger) *Canceller {
	return &Canceller{
		backend:      backend,
		signer:       signer,
		orderBook:    orderBook,
		chainID:      chainID,
		pollInterval: 2 * time.Second,
		clock:        clock,
		logger:       logger,
	}
}

// CancelData returns the calldata that cancels order (kind, index)
func CancelData(kind orders.Kind, index uint64) ([]byte, error) {
	method, ok := cancelMethods[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %d", orders.ErrInvalidOrder, kind)
	}
	return OrderBookABI.Pack(method, new(big.Int).SetUint64(index))
}

// CancelOrder signs and sends a cancel transaction and returns its hash once the node accepts it
func (c *Canceller) CancelOrder(ctx context.Context, kind orders.Kind, index uint64) (common.Hash, error) {
	data, err := CancelData(kind, index)
	if err != nil {
		return common.Hash{}, err
	}

	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.orderBook, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas / 5

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.orderBook,
		Data:      data,
	})
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send cancel: %w", err)
	}

	c.logger.Infow("cancel_sent", "kind", kind.String(), "index", index, "tx", signed.Hash().Hex(), "nonce", nonce)
	return signed.Hash(), nil
}

// Confirm polls until the transaction is mined. Returns ErrTxReverted if it failed on chain.
func (c *Canceller) Confirm(ctx context.Context, hash common.Hash) error {
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			c.logger.Infow("cancel_confirmed", "tx", hash.Hex(), "block", receipt.BlockNumber)
			return nil
		case errors.Is(err, ethereum.NotFound):
			// still pending
		default:
			return fmt.Errorf("failed to get receipt %s: %w", hash.Hex(), err)
		}

		if err := util.Sleep(ctx, c.clock, c.pollInterval); err != nil {
			return err
		}
	}
}
