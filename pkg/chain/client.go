// Package chain reads GMX OrderBook and Vault state over JSON-RPC and submits cancel transactions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderwatch/params"
)

// CallBackend is satisfied by *ethclient.Client
type CallBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client runs read-only contract calls behind a circuit breaker, so a dead
// RPC endpoint fails fast instead of stalling every refresh.
type Client struct {
	backend        CallBackend
	circuitBreaker *gobreaker.CircuitBreaker[[]byte]
	logger         *zap.SugaredLogger

	// OnCall is invoked after every call with the method name and result. Optional.
	OnCall func(method string, err error)
	// OnBreakerChange is invoked when the breaker opens (true) or closes (false). Optional.
	OnBreakerChange func(open bool)
}

// Dial connects to an RPC endpoint. Head subscriptions need a ws:// or wss:// URL.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return c, nil
}

func NewClient(backend CallBackend, cfg params.Breaker, logger *zap.SugaredLogger) *Client {
	c := &Client{backend: backend, logger: logger}
	c.circuitBreaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rpc",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// a cancelled refresh says nothing about the endpoint
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("breaker_state_change", "name", name, "from", from.String(), "to", to.String())
			if c.OnBreakerChange != nil {
				c.OnBreakerChange(to == gobreaker.StateOpen)
			}
		},
	})
	return c
}

// Call packs method(args...) for contract, executes it at the latest block and unpacks the outputs
func (c *Client) Call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := c.circuitBreaker.Execute(func() ([]byte, error) {
		return c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	})
	if c.OnCall != nil {
		c.OnCall(method, err)
	}
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}

	values, err := contract.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

// callUint is the common shape of index and price getters
func (c *Client) callUint(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.Call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return v, nil
}
