// Package events carries the engine's lifecycle notifications. Events are
// side effects: no invariant depends on them, and a publisher failure after
// the operation commits is logged, not rolled back.
package events

import (
	"context"
	"time"

	id "capcall/pkg/domain"
)

// Kind labels an event type on the wire.
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindFullyRaised Kind = "fully_raised"
	KindRefund      Kind = "refund"
	KindConverted   Kind = "converted"
	KindClaim       Kind = "claim"
)

// Event is one lifecycle notification. Only the fields relevant to its Kind
// are populated.
type Event struct {
	Kind      Kind          `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	Registry  id.RegistryID `json:"registry"`
	Call      id.CallID     `json:"capital_call"`

	// Deposit, refund, claim.
	Depositor id.PartyID `json:"depositor,omitempty"`
	Amount    uint64     `json:"amount,omitempty"`

	// Claim.
	LPAmount uint64 `json:"lp_amount,omitempty"`

	// Converted.
	TokenLiquidity    uint64 `json:"token_liquidity,omitempty"`
	LPSupply          uint64 `json:"lp_supply,omitempty"`
	CreditOutstanding uint64 `json:"credit_outstanding,omitempty"`
	Capacity          uint64 `json:"capacity,omitempty"`
	Minted            uint64 `json:"minted,omitempty"`
}

// Publisher emits lifecycle events to downstream consumers.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Deposit builds a DepositEvent.
func Deposit(registry id.RegistryID, call id.CallID, depositor id.PartyID, amount uint64) Event {
	return Event{Kind: KindDeposit, Registry: registry, Call: call, Depositor: depositor, Amount: amount}
}

// FullyRaised builds the notification emitted when allocation reaches capacity.
func FullyRaised(registry id.RegistryID, call id.CallID) Event {
	return Event{Kind: KindFullyRaised, Registry: registry, Call: call}
}

// Refund builds a RefundEvent.
func Refund(registry id.RegistryID, call id.CallID, depositor id.PartyID, amount uint64) Event {
	return Event{Kind: KindRefund, Registry: registry, Call: call, Depositor: depositor, Amount: amount}
}

// Converted builds the event recording the frozen conversion snapshot.
func Converted(registry id.RegistryID, call id.CallID, tokenLiquidity, lpSupply, creditOutstanding, capacity, minted uint64) Event {
	return Event{
		Kind:              KindConverted,
		Registry:          registry,
		Call:              call,
		TokenLiquidity:    tokenLiquidity,
		LPSupply:          lpSupply,
		CreditOutstanding: creditOutstanding,
		Capacity:          capacity,
		Minted:            minted,
	}
}

// Claim builds a ClaimEvent. Amount is the original contribution; LPAmount is
// the ownership tokens paid out.
func Claim(registry id.RegistryID, call id.CallID, depositor id.PartyID, amount, lpAmount uint64) Event {
	return Event{Kind: KindClaim, Registry: registry, Call: call, Depositor: depositor, Amount: amount, LPAmount: lpAmount}
}
