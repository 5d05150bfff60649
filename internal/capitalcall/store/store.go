// Package store persists capital calls and vouchers.
//
// Every engine operation runs inside RunInTx: the callback sees a Store view
// whose writes only become visible if the callback returns nil. Combined with
// the ledger's atomic batches this gives each operation its all-or-nothing
// contract without rollback logic in the service.
package store

import (
	"context"

	"capcall/internal/capitalcall"
	id "capcall/pkg/domain"
)

// Store is the record access surface available inside a transaction.
// Creation rejects duplicate content-derived keys with sentinel.ErrConflict;
// lookups of absent records return sentinel.ErrNotFound.
type Store interface {
	CreateCall(ctx context.Context, call *capitalcall.CapitalCall) error
	GetCall(ctx context.Context, callID id.CallID) (*capitalcall.CapitalCall, error)
	UpdateCall(ctx context.Context, call *capitalcall.CapitalCall) error
	DeleteCall(ctx context.Context, callID id.CallID) error

	GetVoucher(ctx context.Context, voucherID id.VoucherID) (*capitalcall.Voucher, error)
	PutVoucher(ctx context.Context, voucher *capitalcall.Voucher) error
	DeleteVoucher(ctx context.Context, voucherID id.VoucherID) error
	ListVouchers(ctx context.Context, callID id.CallID) ([]*capitalcall.Voucher, error)
}

// Tx runs a function against the store with all-or-nothing commit semantics.
type Tx interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}
