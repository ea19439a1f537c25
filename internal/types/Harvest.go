/*

Harvest receipts record one batched harvest executed by the controller.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// StrategyHarvest is the per-strategy slice of a harvest.
type StrategyHarvest struct {
	Index    int            `json:"index"`
	Strategy common.Address `json:"strategy"`
	Route    *Route         `json:"route,omitempty"`
	Proceeds math.Int       `json:"proceeds"` // base asset returned to the controller
}

// HarvestReceipt is persisted after every successful harvest.
type HarvestReceipt struct {
	ID               string            `json:"id"`
	Round            int               `json:"round"`
	Timestamp        time.Time         `json:"timestamp"`
	Controller       common.Address    `json:"controller"`
	StrategyIndices  []int             `json:"strategy_indices"`
	PerStrategy      []StrategyHarvest `json:"per_strategy"`
	Proceeds         math.Int          `json:"proceeds"`
	Fee              math.Int          `json:"fee"`
	Net              math.Int          `json:"net"`
	TotalAssetsAfter math.Int          `json:"total_assets_after"`
}
