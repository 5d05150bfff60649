package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"capcall/internal/capitalcall"
	id "capcall/pkg/domain"
	"capcall/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// Schema for the capital-call tables. Applied by Migrate; kept inline so the
// store and its schema move together. Amounts are stored as signed BIGINT,
// which caps the usable range at 2^63-1 base units; larger values trip the
// CHECK constraints instead of wrapping.
const schema = `
CREATE TABLE IF NOT EXISTS capital_calls (
    id                 TEXT PRIMARY KEY,
    registry_id        UUID        NOT NULL,
    funds_escrow       UUID        NOT NULL,
    token_escrow       UUID        NOT NULL,
    start_time         TIMESTAMPTZ NOT NULL,
    end_time           TIMESTAMPTZ NOT NULL,
    capacity           BIGINT      NOT NULL CHECK (capacity > 0),
    allocated          BIGINT      NOT NULL DEFAULT 0,
    redeemed           BIGINT      NOT NULL DEFAULT 0,
    token_liquidity    BIGINT      NOT NULL DEFAULT 0,
    lp_supply          BIGINT      NOT NULL DEFAULT 0,
    credit_outstanding BIGINT      NOT NULL DEFAULT 0,
    converted          BOOLEAN     NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS vouchers (
    id        TEXT PRIMARY KEY,
    call_id   TEXT   NOT NULL REFERENCES capital_calls (id) ON DELETE CASCADE,
    depositor UUID   NOT NULL,
    amount    BIGINT NOT NULL CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS vouchers_call_idx ON vouchers (call_id);
`

// Migrate applies the store schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply capital call schema: %w", err)
	}
	return nil
}

// PostgresTx runs engine transactions against PostgreSQL. Records are locked
// with SELECT ... FOR UPDATE, which serializes concurrent operations on the
// same capital call while leaving independent calls free to proceed in
// parallel.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresTx constructs a PostgreSQL-backed transaction runner.
func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db}
}

// RunInTx begins a transaction, runs fn against it, and commits only when fn
// returns nil.
func (p *PostgresTx) RunInTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := p.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&pgStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgStore struct {
	tx *sql.Tx
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *pgStore) CreateCall(ctx context.Context, call *capitalcall.CapitalCall) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO capital_calls (
			id, registry_id, funds_escrow, token_escrow,
			start_time, end_time, capacity, allocated, redeemed,
			token_liquidity, lp_supply, credit_outstanding, converted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		call.ID.String(), call.Registry.String(), call.FundsEscrow.String(), call.TokenEscrow.String(),
		call.StartTime, call.EndTime, int64(call.Capacity), int64(call.Allocated), int64(call.Redeemed),
		int64(call.TokenLiquidity), int64(call.LPSupply), int64(call.CreditOutstanding), call.Converted,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("capital call %s: %w", call.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create capital call: %w", err)
	}
	return nil
}

func (s *pgStore) GetCall(ctx context.Context, callID id.CallID) (*capitalcall.CapitalCall, error) {
	row := s.tx.QueryRowContext(ctx, `
		SELECT id, registry_id, funds_escrow, token_escrow,
		       start_time, end_time, capacity, allocated, redeemed,
		       token_liquidity, lp_supply, credit_outstanding, converted
		FROM capital_calls WHERE id = $1 FOR UPDATE`,
		callID.String(),
	)
	return scanCall(row)
}

func scanCall(row *sql.Row) (*capitalcall.CapitalCall, error) {
	var call capitalcall.CapitalCall
	var rawID, rawRegistry, rawFunds, rawTokens string
	var capacity, allocated, redeemed int64
	var tokenLiquidity, lpSupply, creditOutstanding int64
	err := row.Scan(
		&rawID, &rawRegistry, &rawFunds, &rawTokens,
		&call.StartTime, &call.EndTime, &capacity, &allocated, &redeemed,
		&tokenLiquidity, &lpSupply, &creditOutstanding, &call.Converted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("capital call: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan capital call: %w", err)
	}
	if call.ID, err = id.ParseCallID(rawID); err != nil {
		return nil, fmt.Errorf("scan capital call id: %w", err)
	}
	if call.Registry, err = id.ParseRegistryID(rawRegistry); err != nil {
		return nil, fmt.Errorf("scan capital call registry: %w", err)
	}
	if call.FundsEscrow, err = id.ParseAccountID(rawFunds); err != nil {
		return nil, fmt.Errorf("scan capital call funds escrow: %w", err)
	}
	if call.TokenEscrow, err = id.ParseAccountID(rawTokens); err != nil {
		return nil, fmt.Errorf("scan capital call token escrow: %w", err)
	}
	call.Capacity = uint64(capacity)
	call.Allocated = uint64(allocated)
	call.Redeemed = uint64(redeemed)
	call.TokenLiquidity = uint64(tokenLiquidity)
	call.LPSupply = uint64(lpSupply)
	call.CreditOutstanding = uint64(creditOutstanding)
	return &call, nil
}

func (s *pgStore) UpdateCall(ctx context.Context, call *capitalcall.CapitalCall) error {
	res, err := s.tx.ExecContext(ctx, `
		UPDATE capital_calls SET
			allocated = $2, redeemed = $3,
			token_liquidity = $4, lp_supply = $5, converted = $6
		WHERE id = $1`,
		call.ID.String(), int64(call.Allocated), int64(call.Redeemed),
		int64(call.TokenLiquidity), int64(call.LPSupply), call.Converted,
	)
	if err != nil {
		return fmt.Errorf("update capital call: %w", err)
	}
	return requireOneRow(res, "capital call")
}

func (s *pgStore) DeleteCall(ctx context.Context, callID id.CallID) error {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM capital_calls WHERE id = $1`, callID.String())
	if err != nil {
		return fmt.Errorf("delete capital call: %w", err)
	}
	return requireOneRow(res, "capital call")
}

func (s *pgStore) GetVoucher(ctx context.Context, voucherID id.VoucherID) (*capitalcall.Voucher, error) {
	row := s.tx.QueryRowContext(ctx, `
		SELECT id, call_id, depositor, amount
		FROM vouchers WHERE id = $1 FOR UPDATE`,
		voucherID.String(),
	)
	var voucher capitalcall.Voucher
	var rawID, rawCall, rawDepositor string
	var amount int64
	err := row.Scan(&rawID, &rawCall, &rawDepositor, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voucher: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	if voucher.ID, err = id.ParseVoucherID(rawID); err != nil {
		return nil, fmt.Errorf("scan voucher id: %w", err)
	}
	if voucher.Call, err = id.ParseCallID(rawCall); err != nil {
		return nil, fmt.Errorf("scan voucher call: %w", err)
	}
	if voucher.Depositor, err = id.ParsePartyID(rawDepositor); err != nil {
		return nil, fmt.Errorf("scan voucher depositor: %w", err)
	}
	voucher.Amount = uint64(amount)
	return &voucher, nil
}

func (s *pgStore) PutVoucher(ctx context.Context, voucher *capitalcall.Voucher) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO vouchers (id, call_id, depositor, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET amount = EXCLUDED.amount`,
		voucher.ID.String(), voucher.Call.String(), voucher.Depositor.String(), int64(voucher.Amount),
	)
	if err != nil {
		return fmt.Errorf("put voucher: %w", err)
	}
	return nil
}

func (s *pgStore) DeleteVoucher(ctx context.Context, voucherID id.VoucherID) error {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM vouchers WHERE id = $1`, voucherID.String())
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	return requireOneRow(res, "voucher")
}

func (s *pgStore) ListVouchers(ctx context.Context, callID id.CallID) ([]*capitalcall.Voucher, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT id, call_id, depositor, amount
		FROM vouchers WHERE call_id = $1 ORDER BY id`,
		callID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var out []*capitalcall.Voucher
	for rows.Next() {
		var voucher capitalcall.Voucher
		var rawID, rawCall, rawDepositor string
		var amount int64
		if err := rows.Scan(&rawID, &rawCall, &rawDepositor, &amount); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		if voucher.ID, err = id.ParseVoucherID(rawID); err != nil {
			return nil, fmt.Errorf("scan voucher id: %w", err)
		}
		if voucher.Call, err = id.ParseCallID(rawCall); err != nil {
			return nil, fmt.Errorf("scan voucher call: %w", err)
		}
		if voucher.Depositor, err = id.ParsePartyID(rawDepositor); err != nil {
			return nil, fmt.Errorf("scan voucher depositor: %w", err)
		}
		voucher.Amount = uint64(amount)
		out = append(out, &voucher)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	return out, nil
}

func requireOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	return nil
}
