// cancel-order cancels a single open order from the command line and waits
// for the transaction to be mined.
//
//	cancel-order -order decrease-7
//
// Chain settings, ACCOUNT and PRIVATE_KEY come from the same .env as the node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/orderwatch/params"
	"github.com/uhyunpark/orderwatch/pkg/chain"
	"github.com/uhyunpark/orderwatch/pkg/crypto"
	"github.com/uhyunpark/orderwatch/pkg/orderlist"
	"github.com/uhyunpark/orderwatch/pkg/orders"
	"github.com/uhyunpark/orderwatch/pkg/util"
)

func main() {
	orderFlag := flag.String("order", "", `order to cancel, e.g. "swap-3" or "decrease-7"`)
	envFlag := flag.String("env", "", "path to .env file (default: ./.env)")
	dryRun := flag.Bool("dry-run", false, "print the calldata without sending")
	timeout := flag.Duration("timeout", 5*time.Minute, "how long to wait for the receipt")
	flag.Parse()

	id, err := orders.ParseID(*orderFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	// Step 1: Encode the cancel call
	data, err := chain.CancelData(id.Kind, id.Index)
	if err != nil {
		fmt.Printf("Error encoding cancel: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Order: %s\n", id)
	fmt.Printf("Calldata: 0x%x\n\n", data)
	if *dryRun {
		return
	}

	// Step 2: Load config and key
	cfg, err := params.LoadFromEnv(*envFlag)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Account.PrivateKeyHex == "" {
		fmt.Println("Error: PRIVATE_KEY is not set")
		os.Exit(1)
	}
	signer, err := crypto.FromPrivateKeyHex(cfg.Account.PrivateKeyHex)
	if err != nil {
		fmt.Printf("Error loading key: %v\n", err)
		os.Exit(1)
	}
	if signer.Address() != cfg.Account.Address {
		fmt.Printf("Error: PRIVATE_KEY belongs to %s, not ACCOUNT %s\n", signer.Address().Hex(), cfg.Account.Address.Hex())
		os.Exit(1)
	}
	fmt.Printf("Account: %s\n", signer.Address().Hex())

	logger, err := util.NewLogger(cfg.Node.LogLevel)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 3: Send
	eth, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eth.Close()

	canceller := chain.NewCanceller(eth, signer, cfg.Chain.OrderBook, cfg.Chain.ChainID, util.RealClock{}, logger.Sugar())
	hash, err := canceller.CancelOrder(ctx, id.Kind, id.Index)
	if err != nil {
		fmt.Printf("%s: %v\n", orderlist.MsgCancelFailed, err)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", orderlist.MsgCancelSubmitted, hash.Hex())

	// Step 4: Wait for the receipt
	confirmCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	if err := canceller.Confirm(confirmCtx, hash); err != nil {
		fmt.Printf("%s: %v\n", orderlist.MsgCancelFailed, err)
		os.Exit(1)
	}
	fmt.Println(orderlist.MsgCancelled)
}
