package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record or account does not exist
// - ErrConflict: duplicate key on creation
// - ErrInsufficientFunds: ledger account balance below requested movement
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, violated preconditions), use
// pkg/domain-errors directly.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("unavailable")
)
