package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"capcall/internal/capitalcall"
	id "capcall/pkg/domain"
	"capcall/pkg/platform/sentinel"
)

// InMemoryStore keeps records in process. One mutex serializes transactions,
// matching the one-writer-per-record model; reads inside a transaction see
// staged writes, and staged writes are flushed only when the callback
// succeeds.
type InMemoryStore struct {
	mu       sync.Mutex
	calls    map[id.CallID]capitalcall.CapitalCall
	vouchers map[id.VoucherID]capitalcall.Voucher
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		calls:    make(map[id.CallID]capitalcall.CapitalCall),
		vouchers: make(map[id.VoucherID]capitalcall.Voucher),
	}
}

// RunInTx executes fn against a staged view and commits on success.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		base:            s,
		calls:           make(map[id.CallID]*capitalcall.CapitalCall),
		vouchers:        make(map[id.VoucherID]*capitalcall.Voucher),
		deletedCalls:    make(map[id.CallID]bool),
		deletedVouchers: make(map[id.VoucherID]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	base            *InMemoryStore
	calls           map[id.CallID]*capitalcall.CapitalCall
	vouchers        map[id.VoucherID]*capitalcall.Voucher
	deletedCalls    map[id.CallID]bool
	deletedVouchers map[id.VoucherID]bool
}

func (t *memTx) commit() {
	for callID := range t.deletedCalls {
		delete(t.base.calls, callID)
	}
	for voucherID := range t.deletedVouchers {
		delete(t.base.vouchers, voucherID)
	}
	for callID, call := range t.calls {
		t.base.calls[callID] = *call
	}
	for voucherID, voucher := range t.vouchers {
		t.base.vouchers[voucherID] = *voucher
	}
}

func (t *memTx) CreateCall(_ context.Context, call *capitalcall.CapitalCall) error {
	if _, staged := t.calls[call.ID]; staged {
		return fmt.Errorf("capital call %s: %w", call.ID, sentinel.ErrConflict)
	}
	if _, exists := t.base.calls[call.ID]; exists && !t.deletedCalls[call.ID] {
		return fmt.Errorf("capital call %s: %w", call.ID, sentinel.ErrConflict)
	}
	cp := *call
	t.calls[call.ID] = &cp
	return nil
}

func (t *memTx) GetCall(_ context.Context, callID id.CallID) (*capitalcall.CapitalCall, error) {
	if t.deletedCalls[callID] {
		return nil, fmt.Errorf("capital call %s: %w", callID, sentinel.ErrNotFound)
	}
	if call, ok := t.calls[callID]; ok {
		cp := *call
		return &cp, nil
	}
	if call, ok := t.base.calls[callID]; ok {
		return &call, nil
	}
	return nil, fmt.Errorf("capital call %s: %w", callID, sentinel.ErrNotFound)
}

func (t *memTx) UpdateCall(ctx context.Context, call *capitalcall.CapitalCall) error {
	if _, err := t.GetCall(ctx, call.ID); err != nil {
		return err
	}
	cp := *call
	t.calls[call.ID] = &cp
	return nil
}

func (t *memTx) DeleteCall(ctx context.Context, callID id.CallID) error {
	if _, err := t.GetCall(ctx, callID); err != nil {
		return err
	}
	delete(t.calls, callID)
	t.deletedCalls[callID] = true
	return nil
}

func (t *memTx) GetVoucher(_ context.Context, voucherID id.VoucherID) (*capitalcall.Voucher, error) {
	if t.deletedVouchers[voucherID] {
		return nil, fmt.Errorf("voucher %s: %w", voucherID, sentinel.ErrNotFound)
	}
	if voucher, ok := t.vouchers[voucherID]; ok {
		cp := *voucher
		return &cp, nil
	}
	if voucher, ok := t.base.vouchers[voucherID]; ok {
		return &voucher, nil
	}
	return nil, fmt.Errorf("voucher %s: %w", voucherID, sentinel.ErrNotFound)
}

func (t *memTx) PutVoucher(_ context.Context, voucher *capitalcall.Voucher) error {
	cp := *voucher
	t.vouchers[voucher.ID] = &cp
	delete(t.deletedVouchers, voucher.ID)
	return nil
}

func (t *memTx) DeleteVoucher(ctx context.Context, voucherID id.VoucherID) error {
	if _, err := t.GetVoucher(ctx, voucherID); err != nil {
		return err
	}
	delete(t.vouchers, voucherID)
	t.deletedVouchers[voucherID] = true
	return nil
}

func (t *memTx) ListVouchers(_ context.Context, callID id.CallID) ([]*capitalcall.Voucher, error) {
	byID := make(map[id.VoucherID]capitalcall.Voucher)
	for voucherID, voucher := range t.base.vouchers {
		if voucher.Call == callID && !t.deletedVouchers[voucherID] {
			byID[voucherID] = voucher
		}
	}
	for voucherID, voucher := range t.vouchers {
		if voucher.Call == callID {
			byID[voucherID] = *voucher
		}
	}
	out := make([]*capitalcall.Voucher, 0, len(byID))
	for _, voucher := range byID {
		cp := voucher
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
