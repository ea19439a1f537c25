/*

Allocation registry and strategy lifecycle types.

*/

package types

import (
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// StrategyStatus is the lifecycle state of a strategy.
type StrategyStatus uint8

const (
	StatusUninitialized StrategyStatus = iota
	StatusActive
	StatusDrained
)

func (s StrategyStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusActive:
		return "active"
	case StatusDrained:
		return "drained"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText renders the status by name in JSON payloads.
func (s StrategyStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStrategyStatus is the inverse of StrategyStatus.String.
func ParseStrategyStatus(s string) (StrategyStatus, error) {
	switch s {
	case "uninitialized":
		return StatusUninitialized, nil
	case "active":
		return StatusActive, nil
	case "drained":
		return StatusDrained, nil
	}
	return 0, fmt.Errorf("%w: unknown strategy status %q", ErrInvalidArgument, s)
}

// AllocationEntry is one slot of the controller's strategy registry.
type AllocationEntry struct {
	Index      int            `json:"index"`       // harvest target id, never reused
	Strategy   common.Address `json:"strategy"`    // strategy handle, unique across live entries
	AllocPoint uint64         `json:"alloc_point"` // relative weight for deposit allocation
	Removed    bool           `json:"removed"`     // tombstoned by deregistration
}

// StrategySummary is the read model served by the API.
type StrategySummary struct {
	Index       int            `json:"index"`
	Strategy    common.Address `json:"strategy"`
	Name        string         `json:"name"`
	Status      StrategyStatus `json:"status"`
	AllocPoint  uint64         `json:"alloc_point"`
	TotalAssets math.Int       `json:"total_assets"`
}

// VaultSummary aggregates the controller view for dashboards.
type VaultSummary struct {
	Controller        common.Address    `json:"controller"`
	Asset             common.Address    `json:"asset"`
	Treasury          common.Address    `json:"treasury"`
	TotalAssets       math.Int          `json:"total_assets"`
	IdleAssets        math.Int          `json:"idle_assets"`
	RecordedTotal     math.Int          `json:"recorded_total"`
	TotalAllocPoint   uint64            `json:"total_alloc_point"`
	PerformanceFeeBps uint64            `json:"performance_fee_bps"`
	Strategies        []StrategySummary `json:"strategies"`
}
