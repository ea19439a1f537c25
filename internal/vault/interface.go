package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Controller is the part of the controller a front-end depends on. The
// front-end trusts its return values.
type Controller interface {
	// TotalAssets returns the base asset under management, idle funds included.
	TotalAssets(ctx context.Context) sdkmath.Int

	// Deposit pulls amount of base asset from caller and allocates it.
	Deposit(ctx context.Context, caller common.Address, amount sdkmath.Int) error

	// Withdraw sends up to amount of base asset to receiver. It fails with
	// types.ErrExceedTotalDeposit when amount is more than can be freed.
	Withdraw(ctx context.Context, caller common.Address, amount sdkmath.Int, receiver common.Address) (sdkmath.Int, error)
}
