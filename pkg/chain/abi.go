package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Subset of the GMX OrderBook and Vault ABIs used by the watcher.
const orderBookABIJSON = `[
  {"type":"function","name":"swapOrdersIndex","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"increaseOrdersIndex","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decreaseOrdersIndex","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getSwapOrder","stateMutability":"view",
   "inputs":[{"name":"_account","type":"address"},{"name":"_orderIndex","type":"uint256"}],
   "outputs":[
     {"name":"path0","type":"address"},
     {"name":"path1","type":"address"},
     {"name":"path2","type":"address"},
     {"name":"amountIn","type":"uint256"},
     {"name":"minOut","type":"uint256"},
     {"name":"triggerRatio","type":"uint256"},
     {"name":"triggerAboveThreshold","type":"bool"},
     {"name":"shouldUnwrap","type":"bool"},
     {"name":"executionFee","type":"uint256"}]},
  {"type":"function","name":"getIncreaseOrder","stateMutability":"view",
   "inputs":[{"name":"_account","type":"address"},{"name":"_orderIndex","type":"uint256"}],
   "outputs":[
     {"name":"purchaseToken","type":"address"},
     {"name":"purchaseTokenAmount","type":"uint256"},
     {"name":"collateralToken","type":"address"},
     {"name":"indexToken","type":"address"},
     {"name":"sizeDelta","type":"uint256"},
     {"name":"isLong","type":"bool"},
     {"name":"triggerPrice","type":"uint256"},
     {"name":"triggerAboveThreshold","type":"bool"},
     {"name":"executionFee","type":"uint256"}]},
  {"type":"function","name":"getDecreaseOrder","stateMutability":"view",
   "inputs":[{"name":"_account","type":"address"},{"name":"_orderIndex","type":"uint256"}],
   "outputs":[
     {"name":"collateralToken","type":"address"},
     {"name":"collateralDelta","type":"uint256"},
     {"name":"indexToken","type":"address"},
     {"name":"sizeDelta","type":"uint256"},
     {"name":"isLong","type":"bool"},
     {"name":"triggerPrice","type":"uint256"},
     {"name":"triggerAboveThreshold","type":"bool"},
     {"name":"executionFee","type":"uint256"}]},
  {"type":"function","name":"cancelSwapOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"_orderIndex","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelIncreaseOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"_orderIndex","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelDecreaseOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"_orderIndex","type":"uint256"}],"outputs":[]}
]`

const vaultABIJSON = `[
  {"type":"function","name":"getMinPrice","stateMutability":"view",
   "inputs":[{"name":"_token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMaxPrice","stateMutability":"view",
   "inputs":[{"name":"_token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPosition","stateMutability":"view",
   "inputs":[
     {"name":"_account","type":"address"},
     {"name":"_collateralToken","type":"address"},
     {"name":"_indexToken","type":"address"},
     {"name":"_isLong","type":"bool"}],
   "outputs":[
     {"name":"size","type":"uint256"},
     {"name":"collateral","type":"uint256"},
     {"name":"averagePrice","type":"uint256"},
     {"name":"entryFundingRate","type":"uint256"},
     {"name":"reserveAmount","type":"uint256"},
     {"name":"realisedPnl","type":"uint256"},
     {"name":"hasRealisedProfit","type":"bool"},
     {"name":"lastIncreasedTime","type":"uint256"}]}
]`

var (
	OrderBookABI = mustParseABI(orderBookABIJSON)
	VaultABI     = mustParseABI(vaultABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}
