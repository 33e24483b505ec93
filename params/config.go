package params

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// MinRefreshInterval is the smallest spacing allowed between two order refreshes
const MinRefreshInterval = 5 * time.Second

type Chain struct {
	RPCURL        string // websocket endpoint; new-head subscriptions need ws:// or wss://
	ChainID       *big.Int
	OrderBook     common.Address
	Vault         common.Address
	WrappedNative common.Address // e.g. WETH on Arbitrum
}

type Account struct {
	Address       common.Address
	PrivateKeyHex string // optional; cancel is disabled without it
}

type Refresh struct {
	// Interval is the minimum spacing between refreshes. New blocks arrive far more often
	// than this; bursts of heads collapse into a single pending refresh.
	Interval   time.Duration
	RetryDelay time.Duration // wait before resubscribing after the connection drops
	ScanWindow uint64        // how many of the most recent order indices to read per kind
}

type Node struct {
	APIAddr     string
	DataDir     string
	LogFile     string
	LogLevel    string
	TokensFile  string
	TxLogFile   string // append-only record of cancel and edit requests; empty disables it
	CORSOrigins []string
	ReadOnly    bool // hide edit/cancel actions
}

type Breaker struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

type Config struct {
	Chain   Chain
	Account Account
	Refresh Refresh
	Node    Node
	Breaker Breaker
}

// Default returns Arbitrum mainnet contract addresses and devnet-friendly node settings
func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:        "ws://127.0.0.1:8546",
			ChainID:       big.NewInt(42161),
			OrderBook:     common.HexToAddress("0x09f77E8A13De9a35a7231028187e9fD5DB8a2ACB"),
			Vault:         common.HexToAddress("0x489ee077994B6658eAfA855C308275EAd8097C4A"),
			WrappedNative: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		},
		Refresh: Refresh{
			Interval:   MinRefreshInterval,
			RetryDelay: 3 * time.Second,
			ScanWindow: 100,
		},
		Node: Node{
			APIAddr:     ":8080",
			DataDir:     "data",
			LogFile:     "data/orderwatch.log",
			LogLevel:    "info",
			TokensFile:  "tokens.yaml",
			TxLogFile:   "data/transactions.log",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Breaker: Breaker{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			MaxFailures: 5,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		chainID, ok := new(big.Int).SetString(id, 10)
		if !ok {
			return cfg, fmt.Errorf("invalid CHAIN_ID %q", id)
		}
		cfg.Chain.ChainID = chainID
	}

	var err error
	if cfg.Chain.OrderBook, err = getAddress("ORDER_BOOK_ADDRESS", cfg.Chain.OrderBook); err != nil {
		return cfg, err
	}
	if cfg.Chain.Vault, err = getAddress("VAULT_ADDRESS", cfg.Chain.Vault); err != nil {
		return cfg, err
	}
	if cfg.Chain.WrappedNative, err = getAddress("NATIVE_TOKEN_ADDRESS", cfg.Chain.WrappedNative); err != nil {
		return cfg, err
	}
	if cfg.Account.Address, err = getAddress("ACCOUNT", cfg.Account.Address); err != nil {
		return cfg, err
	}
	cfg.Account.PrivateKeyHex = os.Getenv("PRIVATE_KEY")

	if ms := os.Getenv("REFRESH_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Refresh.Interval = time.Duration(v) * time.Millisecond
		}
	}
	if ms := os.Getenv("RESUBSCRIBE_DELAY_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Refresh.RetryDelay = time.Duration(v) * time.Millisecond
		}
	}
	if w := os.Getenv("ORDER_SCAN_WINDOW"); w != "" {
		if v, err := strconv.ParseUint(w, 10, 64); err == nil {
			cfg.Refresh.ScanWindow = v
		}
	}

	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.TokensFile = getEnv("TOKENS_FILE", cfg.Node.TokensFile)
	cfg.Node.TxLogFile = getEnv("TX_LOG_FILE", cfg.Node.TxLogFile)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.CORSOrigins = strings.Split(origins, ",")
	}
	if ro := os.Getenv("READ_ONLY"); ro != "" {
		cfg.Node.ReadOnly = ro == "true"
	}

	return cfg, cfg.Validate()
}

// Validate checks settings that would make the node misbehave silently
func (c Config) Validate() error {
	if c.Account.Address == (common.Address{}) {
		return fmt.Errorf("ACCOUNT must be set")
	}
	if c.Refresh.Interval < MinRefreshInterval {
		return fmt.Errorf("refresh interval %v below minimum %v", c.Refresh.Interval, MinRefreshInterval)
	}
	if c.Refresh.ScanWindow == 0 {
		return fmt.Errorf("order scan window must be positive")
	}
	if c.Chain.ChainID == nil || c.Chain.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getAddress(key string, defaultValue common.Address) (common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if !common.IsHexAddress(value) {
		return defaultValue, fmt.Errorf("%s is not a valid address: %q", key, value)
	}
	return common.HexToAddress(value), nil
}
