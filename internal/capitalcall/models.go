// Package capitalcall holds the fundraising round records and the rules that
// govern them. The state of a round is never stored: it is derived from the
// record's accumulators and the trusted request time, so a time-driven
// transition can never go stale relative to a persisted status field.
package capitalcall

import (
	"math/big"
	"time"

	id "capcall/pkg/domain"
	dErrors "capcall/pkg/domain-errors"
)

// State is the derived position of a round in its lifecycle.
type State string

const (
	// StatePending: the window has not opened yet.
	StatePending State = "pending"
	// StateOpen: inside the window with capacity remaining.
	StateOpen State = "open"
	// StateFilled: fully allocated, conversion not yet performed.
	StateFilled State = "filled"
	// StateConverted: ownership tokens minted, no settlement yet.
	StateConverted State = "converted"
	// StateSettling: converted and partially claimed.
	StateSettling State = "settling"
	// StateExpiredUnfilled: window closed below capacity; refunds pending.
	StateExpiredUnfilled State = "expired_unfilled"
	// StateCloseable: every voucher settled; terminal cleanup is legal.
	StateCloseable State = "closeable"
)

// CapitalCall is one fundraising-then-deployment round.
//
// Invariants:
//   - Allocated <= Capacity, always
//   - Redeemed <= Allocated, always; both monotonically non-decreasing
//   - TokenLiquidity and LPSupply are zero before conversion and frozen after
//   - conversion happens at most once
type CapitalCall struct {
	ID       id.CallID
	Registry id.RegistryID

	// Escrow accounts exclusively owned by the call's derived authority.
	FundsEscrow id.AccountID
	TokenEscrow id.AccountID

	StartTime time.Time
	EndTime   time.Time
	Capacity  uint64
	Allocated uint64
	Redeemed  uint64

	// Valuation snapshot, frozen at conversion time. Claims reuse these
	// fields rather than live external state so every depositor settles at
	// the same price regardless of when they claim.
	TokenLiquidity    uint64
	LPSupply          uint64
	CreditOutstanding uint64

	Converted bool
}

// Authority returns the derived authority that owns the call's escrow accounts.
func (c *CapitalCall) Authority() id.AuthorityID {
	return id.DeriveCallAuthority(c.ID)
}

// StateAt derives the round's lifecycle state at the given instant.
func (c *CapitalCall) StateAt(now time.Time) State {
	if c.Converted {
		switch {
		case c.Redeemed == c.Allocated:
			return StateCloseable
		case c.Redeemed > 0:
			return StateSettling
		default:
			return StateConverted
		}
	}
	if c.Allocated == c.Capacity {
		return StateFilled
	}
	switch {
	case now.Before(c.StartTime):
		return StatePending
	case now.Before(c.EndTime):
		return StateOpen
	case c.Redeemed == c.Allocated:
		return StateCloseable
	default:
		return StateExpiredUnfilled
	}
}

// Remaining is the unallocated capacity.
func (c *CapitalCall) Remaining() uint64 {
	return c.Capacity - c.Allocated
}

// CanDeposit checks the temporal and capacity preconditions for a deposit.
func (c *CapitalCall) CanDeposit(now time.Time, amount uint64) error {
	if now.Before(c.StartTime) {
		return dErrors.New(dErrors.CodeNotStarted, "capital call has not started")
	}
	if !now.Before(c.EndTime) {
		return dErrors.New(dErrors.CodeWindowClosed, "capital call window has closed")
	}
	if c.Allocated >= c.Capacity {
		return dErrors.New(dErrors.CodeAlreadyFull, "capital call is fully funded")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeZeroAmount, "deposit amount must be positive")
	}
	return nil
}

// ApplyDeposit records an accepted deposit. Callers clamp via Remaining first;
// CanDeposit must have passed.
func (c *CapitalCall) ApplyDeposit(accepted uint64) {
	c.Allocated += accepted
}

// CanRefund checks the refund preconditions: the round never filled and the
// window has closed.
func (c *CapitalCall) CanRefund(now time.Time) error {
	if c.Allocated == c.Capacity {
		return dErrors.New(dErrors.CodeStillFundraising, "capital call reached capacity; refunds are not available")
	}
	if now.Before(c.EndTime) {
		return dErrors.New(dErrors.CodeWindowStillOpen, "capital call window is still open")
	}
	return nil
}

// ConversionEligible reports whether convert would do real work. A false
// return is not an error: convert is permissionless and no-ops when the round
// is not fully raised or was already converted.
func (c *CapitalCall) ConversionEligible() bool {
	return c.Allocated == c.Capacity && !c.Converted
}

// ApplyConversion freezes the valuation snapshot. The snapshot is taken once;
// calling this on a converted round is a programming error guarded upstream by
// ConversionEligible.
func (c *CapitalCall) ApplyConversion(tokenLiquidity, lpSupply uint64) {
	c.TokenLiquidity = tokenLiquidity
	c.LPSupply = lpSupply
	c.Converted = true
}

// CanClaim checks the claim precondition.
func (c *CapitalCall) CanClaim() error {
	if !c.Converted {
		return dErrors.New(dErrors.CodeNotYetConverted, "ownership tokens have not been minted")
	}
	return nil
}

// ApplySettlement records a settled voucher amount (refund or claim). The
// voucher system guarantees Redeemed never exceeds Allocated: each voucher is
// settled exactly once and the sum of voucher amounts equals Allocated.
func (c *CapitalCall) ApplySettlement(amount uint64) {
	c.Redeemed += amount
}

// CanClose checks the terminal-cleanup preconditions.
func (c *CapitalCall) CanClose(now time.Time) error {
	if !c.Converted {
		if now.Before(c.EndTime) || now.Equal(c.EndTime) {
			return dErrors.New(dErrors.CodeWindowStillOpen, "capital call window has not passed")
		}
		if c.Redeemed != c.Allocated {
			return dErrors.New(dErrors.CodeMustRefundFirst, "all depositors must be refunded before close")
		}
		return nil
	}
	if c.Redeemed != c.Allocated {
		return dErrors.New(dErrors.CodeMustDistributeFirst, "all ownership tokens must be distributed before close")
	}
	return nil
}

// ToOwnershipTokens prices a contribution against the frozen snapshot:
//
//	tokens = amount * (token_liquidity + credit_outstanding) / lp_supply
//
// computed with arbitrary-width intermediates and truncated toward zero. The
// same formula prices the capacity at conversion and each voucher at claim,
// which is what makes distribution pro-rata.
func (c *CapitalCall) ToOwnershipTokens(amount uint64) (uint64, error) {
	if c.LPSupply == 0 {
		return 0, dErrors.New(dErrors.CodeZeroSupply, "ownership token supply is zero")
	}
	valuation := new(big.Int).Add(
		new(big.Int).SetUint64(c.TokenLiquidity),
		new(big.Int).SetUint64(c.CreditOutstanding),
	)
	out := new(big.Int).Mul(new(big.Int).SetUint64(amount), valuation)
	out.Quo(out, new(big.Int).SetUint64(c.LPSupply))
	if !out.IsUint64() {
		return 0, dErrors.New(dErrors.CodeCalculationOverflow, "conversion result exceeds 64 bits")
	}
	return out.Uint64(), nil
}

// Voucher is a depositor's receipt for their unsettled contribution to one
// capital call. At most one exists per (call, depositor) pair; it is destroyed
// by exactly one settling operation.
type Voucher struct {
	ID        id.VoucherID
	Call      id.CallID
	Depositor id.PartyID
	Amount    uint64
}

// Settleable verifies the caller owns the voucher.
func (v *Voucher) Settleable(caller id.PartyID) error {
	if v.Depositor != caller {
		return dErrors.New(dErrors.CodeUnauthorized, "voucher belongs to a different depositor")
	}
	return nil
}
