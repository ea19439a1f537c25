package simulations

import (
	"context"
	"errors"
	"fmt"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

const supplyKey = "supply"

// StakingPool is a single-asset liquidity pool. The virtual price is the
// pool's asset balance over the LP supply, so AccrueYield raises it.
type StakingPool struct {
	ledger  *ledger.Ledger
	address common.Address
	asset   common.Address
	lpToken common.Address

	totals     map[string]sdkmath.Int
	exitFeeBps uint64
}

// NewStakingPool creates a pool for asset issuing lpToken.
func NewStakingPool(l *ledger.Ledger, address, asset, lpToken common.Address) *StakingPool {
	return &StakingPool{
		ledger:  l,
		address: address,
		asset:   asset,
		lpToken: lpToken,
		totals:  make(map[string]sdkmath.Int),
	}
}

func (p *StakingPool) Address() common.Address { return p.address }
func (p *StakingPool) LPToken() common.Address { return p.lpToken }

// SetExitFeeBps charges a fee on RemoveLiquidity that CalcWithdraw does not
// report, so callers see less than quoted.
func (p *StakingPool) SetExitFeeBps(bps uint64) {
	p.exitFeeBps = bps
}

func (p *StakingPool) reserves(ctx context.Context) (holdings, supply sdkmath.Int) {
	return p.ledger.BalanceOf(ctx, p.asset, p.address), amountOf(p.totals, supplyKey)
}

func (p *StakingPool) CalcDeposit(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	var minted sdkmath.Int
	err := p.ledger.View(ctx, func(ctx context.Context) error {
		holdings, supply := p.reserves(ctx)
		if supply.IsZero() {
			minted = amount
			return nil
		}
		minted = utils.MulDiv(amount, supply, holdings)
		return nil
	})
	return minted, err
}

func (p *StakingPool) CalcWithdraw(ctx context.Context, lpAmount sdkmath.Int) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := p.ledger.View(ctx, func(ctx context.Context) error {
		holdings, supply := p.reserves(ctx)
		if supply.IsZero() {
			out = sdkmath.ZeroInt()
			return nil
		}
		out = utils.MulDiv(lpAmount, holdings, supply)
		return nil
	})
	return out, err
}

func (p *StakingPool) AddLiquidity(ctx context.Context, from common.Address, amount, minMint sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("deposit amount must be positive"))
	}
	var minted sdkmath.Int
	err := p.ledger.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if minted, err = p.CalcDeposit(ctx, amount); err != nil {
			return err
		}
		if minted.LT(minMint) {
			return fmt.Errorf("%w: pool mints %s LP, minimum %s", types.ErrSlippageExceeded, minted, minMint)
		}
		if err := p.ledger.Transfer(ctx, p.asset, from, p.address, amount); err != nil {
			return err
		}
		if err := p.ledger.Mint(ctx, p.lpToken, from, minted); err != nil {
			return err
		}
		setAmount(ctx, p.ledger, p.totals, supplyKey, amountOf(p.totals, supplyKey).Add(minted))
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return minted, nil
}

func (p *StakingPool) RemoveLiquidity(ctx context.Context, from common.Address, lpAmount, minOut sdkmath.Int) (sdkmath.Int, error) {
	if lpAmount.IsNil() || !lpAmount.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("LP amount must be positive"))
	}
	var out sdkmath.Int
	err := p.ledger.Atomic(ctx, func(ctx context.Context) error {
		gross, err := p.CalcWithdraw(ctx, lpAmount)
		if err != nil {
			return err
		}
		out = gross.Sub(utils.MulBps(gross, p.exitFeeBps))
		if out.LT(minOut) {
			return fmt.Errorf("%w: pool pays %s, minimum %s", types.ErrSlippageExceeded, out, minOut)
		}
		if err := p.ledger.Burn(ctx, p.lpToken, from, lpAmount); err != nil {
			return err
		}
		setAmount(ctx, p.ledger, p.totals, supplyKey, amountOf(p.totals, supplyKey).Sub(lpAmount))
		return p.ledger.Transfer(ctx, p.asset, p.address, from, out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// AccrueYield adds amount of the asset to the pool, raising the virtual price.
func (p *StakingPool) AccrueYield(ctx context.Context, amount sdkmath.Int) error {
	return p.ledger.Mint(ctx, p.asset, p.address, amount)
}

type rewardKey struct {
	account common.Address
	token   common.Address
}

// Booster stakes LP tokens and pays out rewards credited by AccrueReward.
type Booster struct {
	ledger       *ledger.Ledger
	address      common.Address
	lpToken      common.Address
	rewardTokens []common.Address

	staked map[common.Address]sdkmath.Int
	earned map[rewardKey]sdkmath.Int
}

// NewBooster creates a booster for lpToken paying rewardTokens.
func NewBooster(l *ledger.Ledger, address, lpToken common.Address, rewardTokens ...common.Address) *Booster {
	return &Booster{
		ledger:       l,
		address:      address,
		lpToken:      lpToken,
		rewardTokens: rewardTokens,
		staked:       make(map[common.Address]sdkmath.Int),
		earned:       make(map[rewardKey]sdkmath.Int),
	}
}

func (b *Booster) Address() common.Address { return b.address }

func (b *Booster) Stake(ctx context.Context, from common.Address, lpAmount sdkmath.Int) error {
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.ledger.Transfer(ctx, b.lpToken, from, b.address, lpAmount); err != nil {
			return err
		}
		setAmount(ctx, b.ledger, b.staked, from, amountOf(b.staked, from).Add(lpAmount))
		return nil
	})
}

func (b *Booster) Unstake(ctx context.Context, from common.Address, lpAmount sdkmath.Int) error {
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		staked := amountOf(b.staked, from)
		if staked.LT(lpAmount) {
			return fmt.Errorf("%w: %s staked, unstake %s", types.ErrInsufficientBalance, staked, lpAmount)
		}
		setAmount(ctx, b.ledger, b.staked, from, staked.Sub(lpAmount))
		return b.ledger.Transfer(ctx, b.lpToken, b.address, from, lpAmount)
	})
}

func (b *Booster) Staked(ctx context.Context, account common.Address) sdkmath.Int {
	var staked sdkmath.Int
	_ = b.ledger.View(ctx, func(context.Context) error {
		staked = amountOf(b.staked, account)
		return nil
	})
	return staked
}

func (b *Booster) Earned(ctx context.Context, account, rewardToken common.Address) sdkmath.Int {
	var earned sdkmath.Int
	_ = b.ledger.View(ctx, func(context.Context) error {
		earned = amountOf(b.earned, rewardKey{account, rewardToken})
		return nil
	})
	return earned
}

// GetReward pays every accrued reward of account.
func (b *Booster) GetReward(ctx context.Context, account common.Address) error {
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		for _, token := range b.rewardTokens {
			key := rewardKey{account, token}
			earned := amountOf(b.earned, key)
			if earned.IsZero() {
				continue
			}
			setAmount(ctx, b.ledger, b.earned, key, sdkmath.ZeroInt())
			if err := b.ledger.Transfer(ctx, token, b.address, account, earned); err != nil {
				return err
			}
		}
		return nil
	})
}

// AccrueReward credits amount of token to account, minting the reward into
// the booster.
func (b *Booster) AccrueReward(ctx context.Context, account, token common.Address, amount sdkmath.Int) error {
	if !slices.Contains(b.rewardTokens, token) {
		return errors.Join(types.ErrInvalidArgument, fmt.Errorf("booster does not pay %s", token.Hex()))
	}
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.ledger.Mint(ctx, token, b.address, amount); err != nil {
			return err
		}
		key := rewardKey{account, token}
		setAmount(ctx, b.ledger, b.earned, key, amountOf(b.earned, key).Add(amount))
		return nil
	})
}

var (
	_ strategy.LiquidityPool = (*StakingPool)(nil)
	_ strategy.Booster       = (*Booster)(nil)
)
