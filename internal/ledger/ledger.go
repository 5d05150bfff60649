// Package ledger defines the balance-movement capability the engine consumes.
//
// The engine never mutates balances directly: it submits ops (transfer, mint,
// burn, close) through the Service interface. Multi-step movements are batched
// into a single Apply call, which is all-or-nothing -- either every op in the
// batch commits or the ledger is left untouched. That is what lets convert and
// close stay atomic without rollback logic in the engine.
package ledger

import (
	"context"

	id "capcall/pkg/domain"
)

// Mint describes a token mint: who may issue it and how much circulates.
type Mint struct {
	ID        id.MintID
	Authority id.AuthorityID
	Supply    uint64
}

// Account is a single-mint balance holder owned by one authority.
type Account struct {
	ID      id.AccountID
	Mint    id.MintID
	Owner   id.AuthorityID
	Balance uint64
}

// OpKind discriminates ledger ops.
type OpKind string

const (
	OpTransfer OpKind = "transfer"
	OpMint     OpKind = "mint"
	OpBurn     OpKind = "burn"
	OpClose    OpKind = "close"
)

// Op is one ledger movement. Authority is checked against the moving account's
// owner (transfer, burn, close) or the mint's registered authority (mint).
type Op struct {
	Kind      OpKind
	Mint      id.MintID
	From      id.AccountID
	To        id.AccountID
	Amount    uint64
	Authority id.AuthorityID
}

// Transfer moves amount between two accounts of the same mint.
func Transfer(from, to id.AccountID, amount uint64, authority id.AuthorityID) Op {
	return Op{Kind: OpTransfer, From: from, To: to, Amount: amount, Authority: authority}
}

// MintTo issues new supply into an account.
func MintTo(mint id.MintID, to id.AccountID, amount uint64, authority id.AuthorityID) Op {
	return Op{Kind: OpMint, Mint: mint, To: to, Amount: amount, Authority: authority}
}

// Burn destroys supply held in an account.
func Burn(mint id.MintID, from id.AccountID, amount uint64, authority id.AuthorityID) Op {
	return Op{Kind: OpBurn, Mint: mint, From: from, Amount: amount, Authority: authority}
}

// Close removes an account, sweeping any residual balance to residualDest.
func Close(account, residualDest id.AccountID, authority id.AuthorityID) Op {
	return Op{Kind: OpClose, From: account, To: residualDest, Authority: authority}
}

//go:generate mockgen -destination=mock/ledger_mock.go -package=mock capcall/internal/ledger Service

// Service is the capability interface over the external ledger.
type Service interface {
	// CreateMint registers a new mint controlled by authority.
	CreateMint(ctx context.Context, authority id.AuthorityID) (id.MintID, error)
	// CreateAccount opens a zero-balance account for mint owned by owner.
	CreateAccount(ctx context.Context, mint id.MintID, owner id.AuthorityID) (id.AccountID, error)
	// Account returns the current state of an account.
	Account(ctx context.Context, account id.AccountID) (Account, error)
	// MintInfo returns the current state of a mint.
	MintInfo(ctx context.Context, mint id.MintID) (Mint, error)
	// Apply executes ops as one atomic batch. On any failed check the whole
	// batch is rejected and no balance moves.
	Apply(ctx context.Context, ops ...Op) error
}
