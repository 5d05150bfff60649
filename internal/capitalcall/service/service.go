// Package service implements the capital-call operations. Each operation runs
// as one atomic unit: preconditions are checked against records locked inside
// the store transaction, record writes are staged, and the ledger batch is the
// final fallible step before commit. A failed precondition therefore aborts
// with zero side effects.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"capcall/internal/capitalcall"
	"capcall/internal/capitalcall/metrics"
	"capcall/internal/capitalcall/store"
	"capcall/internal/events"
	"capcall/internal/ledger"
	"capcall/internal/registry"
	id "capcall/pkg/domain"
	dErrors "capcall/pkg/domain-errors"
	"capcall/pkg/platform/sentinel"
	"capcall/pkg/requestcontext"
)

// RegistryResolver resolves the registry record a capital call was created
// against.
type RegistryResolver interface {
	Get(ctx context.Context, registryID id.RegistryID) (*registry.Registry, error)
}

// Service orchestrates capital-call operations over the store, the ledger
// capability and the event publisher.
type Service struct {
	tx         store.Tx
	registries RegistryResolver
	ledger     ledger.Service
	events     events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New constructs the engine service. Metrics may be nil (tests).
func New(tx store.Tx, registries RegistryResolver, ledgerSvc ledger.Service, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) (*Service, error) {
	if tx == nil || registries == nil || ledgerSvc == nil || publisher == nil {
		return nil, errors.New("service: tx, registries, ledger and publisher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:         tx,
		registries: registries,
		ledger:     ledgerSvc,
		events:     publisher,
		metrics:    m,
		logger:     logger,
	}, nil
}

// CreateParams are the operator inputs for a new capital call.
type CreateParams struct {
	Registry          id.RegistryID
	StartTime         time.Time
	Duration          time.Duration
	Capacity          uint64
	CreditOutstanding uint64
}

// Create opens a new fundraising round and its two escrow accounts. The
// round's key is derived from (registry, start_time, capacity), so recreating
// the same round is a conflict, and unrelated rounds never contend.
func (s *Service) Create(ctx context.Context, params CreateParams) (call *capitalcall.CapitalCall, err error) {
	defer s.observe("create", time.Now(), &err)

	now := requestcontext.Now(ctx)
	if params.StartTime.Before(now) {
		return nil, dErrors.New(dErrors.CodeInvalidWindow, "start time must not be in the past")
	}
	if params.Duration <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidDuration, "duration must be positive")
	}
	if params.Capacity == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidCapacity, "capacity must be positive")
	}

	reg, err := s.registries.Get(ctx, params.Registry)
	if err != nil {
		return nil, err
	}
	if caller := requestcontext.Caller(ctx); caller != reg.Operator {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the operator may create capital calls")
	}

	callID := id.DeriveCallID(reg.ID, params.StartTime.Unix(), params.Capacity)
	authority := id.DeriveCallAuthority(callID)

	fundsEscrow, err := s.ledger.CreateAccount(ctx, reg.FundsMint, authority)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create funds escrow")
	}
	tokenEscrow, err := s.ledger.CreateAccount(ctx, reg.LPMint, authority)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create token escrow")
	}

	call = &capitalcall.CapitalCall{
		ID:                callID,
		Registry:          reg.ID,
		FundsEscrow:       fundsEscrow,
		TokenEscrow:       tokenEscrow,
		StartTime:         params.StartTime,
		EndTime:           params.StartTime.Add(params.Duration),
		Capacity:          params.Capacity,
		CreditOutstanding: params.CreditOutstanding,
	}
	err = s.tx.RunInTx(ctx, func(st store.Store) error {
		return st.CreateCall(ctx, call)
	})
	if err != nil {
		// The escrow accounts were opened before the record insert; on a
		// duplicate key they are fresh and empty, so release them again.
		if closeErr := s.ledger.Apply(ctx,
			ledger.Close(fundsEscrow, fundsEscrow, authority),
			ledger.Close(tokenEscrow, tokenEscrow, authority),
		); closeErr != nil {
			s.logger.WarnContext(ctx, "release escrow accounts after failed create", "error", closeErr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "capital call already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist capital call")
	}

	if s.metrics != nil {
		s.metrics.CallsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "capital call created",
		"capital_call", callID.String(),
		"registry", reg.ID.String(),
		"capacity", params.Capacity,
		"start_time", params.StartTime,
		"end_time", call.EndTime,
	)
	return call, nil
}

// DepositResult reports what a deposit did.
type DepositResult struct {
	Voucher *capitalcall.Voucher
	// Accepted is the amount actually taken, clamped to remaining capacity.
	Accepted uint64
	// FullyRaised is true when this deposit filled the round.
	FullyRaised bool
}

// Deposit moves funds from the caller's source account into escrow and
// creates or tops up the caller's voucher. A deposit that would overfill the
// round is partially accepted; the caller is only charged the accepted amount.
func (s *Service) Deposit(ctx context.Context, callID id.CallID, amount uint64, source id.AccountID) (result *DepositResult, err error) {
	defer s.observe("deposit", time.Now(), &err)

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	var emitted []events.Event
	err = s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := call.CanDeposit(now, amount); err != nil {
			return err
		}
		accepted := min(amount, call.Remaining())

		voucherID := id.DeriveVoucherID(call.ID, caller)
		voucher, err := st.GetVoucher(ctx, voucherID)
		if errors.Is(err, sentinel.ErrNotFound) {
			voucher = &capitalcall.Voucher{ID: voucherID, Call: call.ID, Depositor: caller}
		} else if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load voucher")
		}
		voucher.Amount += accepted
		call.ApplyDeposit(accepted)

		if err := st.UpdateCall(ctx, call); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update capital call")
		}
		if err := st.PutVoucher(ctx, voucher); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save voucher")
		}

		// Last fallible step: balance movement. An insufficient source
		// balance or wrong account owner aborts the whole operation.
		if err := s.ledger.Apply(ctx,
			ledger.Transfer(source, call.FundsEscrow, accepted, caller.Authority()),
		); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "transfer deposit into escrow")
		}

		emitted = append(emitted, events.Deposit(call.Registry, call.ID, caller, accepted))
		fullyRaised := call.Allocated == call.Capacity
		if fullyRaised {
			emitted = append(emitted, events.FullyRaised(call.Registry, call.ID))
		}
		result = &DepositResult{Voucher: voucher, Accepted: accepted, FullyRaised: fullyRaised}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, emitted)
	if s.metrics != nil {
		s.metrics.Deposits.Inc()
		s.metrics.DepositedAmount.Add(float64(result.Accepted))
	}
	s.logger.InfoContext(ctx, "deposit accepted",
		"capital_call", callID.String(),
		"depositor", caller.String(),
		"accepted", result.Accepted,
		"fully_raised", result.FullyRaised,
	)
	return result, nil
}

// Refund settles the caller's voucher after an unfilled round's window closes,
// returning the contribution from escrow to the destination account.
func (s *Service) Refund(ctx context.Context, callID id.CallID, destination id.AccountID) (amount uint64, err error) {
	defer s.observe("refund", time.Now(), &err)

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	var emitted []events.Event
	err = s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		if err := call.CanRefund(requestcontext.Now(ctx)); err != nil {
			return err
		}
		voucher, err := s.loadVoucher(ctx, st, call.ID, caller)
		if err != nil {
			return err
		}

		amount = voucher.Amount
		call.ApplySettlement(amount)
		if err := st.UpdateCall(ctx, call); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update capital call")
		}
		if err := st.DeleteVoucher(ctx, voucher.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "close voucher")
		}

		if err := s.ledger.Apply(ctx,
			ledger.Transfer(call.FundsEscrow, destination, amount, call.Authority()),
		); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "transfer refund from escrow")
		}

		emitted = append(emitted, events.Refund(call.Registry, call.ID, caller, amount))
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, emitted)
	if s.metrics != nil {
		s.metrics.Refunds.Inc()
	}
	s.logger.InfoContext(ctx, "refund settled",
		"capital_call", callID.String(),
		"depositor", caller.String(),
		"amount", amount,
	)
	return amount, nil
}

// ConvertResult reports whether convert performed real work.
type ConvertResult struct {
	Performed bool
	Minted    uint64
}

// Convert prices the raised capital against the external pool and mints
// ownership tokens into escrow. It is permissionless and idempotent: when the
// round is not fully raised, or was already converted, it returns a successful
// no-op so automated triggers can poll it safely. The valuation snapshot is
// taken exactly once here and reused by every later claim.
func (s *Service) Convert(ctx context.Context, callID id.CallID) (result ConvertResult, err error) {
	defer s.observe("convert", time.Now(), &err)

	var emitted []events.Event
	err = s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		reg, err := s.registries.Get(ctx, call.Registry)
		if err != nil {
			return err
		}

		// Authority and supply are validated even when the call turns out to
		// be ineligible, so a misconfigured deployment fails loudly instead
		// of no-oping forever.
		lpMint, err := s.ledger.MintInfo(ctx, reg.LPMint)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load ownership token mint")
		}
		if lpMint.Authority != reg.MintAuthority {
			return dErrors.New(dErrors.CodeInvalidMintAuthority, "ownership token mint is not controlled by the registry authority")
		}
		if lpMint.Supply == 0 {
			return dErrors.New(dErrors.CodeZeroSupply, "ownership token supply must be bootstrapped outside the engine")
		}

		if !call.ConversionEligible() {
			result = ConvertResult{Performed: false}
			return nil
		}

		pool, err := s.ledger.Account(ctx, reg.LiquidityPool)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load liquidity pool")
		}

		call.ApplyConversion(pool.Balance, lpMint.Supply)
		minted, err := call.ToOwnershipTokens(call.Capacity)
		if err != nil {
			// CalculationOverflow aborts the transaction; the call stays
			// unconverted and can be retried.
			return err
		}
		if err := st.UpdateCall(ctx, call); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update capital call")
		}

		if err := s.ledger.Apply(ctx,
			ledger.MintTo(reg.LPMint, call.TokenEscrow, minted, reg.MintAuthority),
			ledger.Transfer(call.FundsEscrow, reg.LiquidityPool, call.Capacity, call.Authority()),
		); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "mint and deploy capital")
		}

		emitted = append(emitted, events.Converted(
			call.Registry, call.ID,
			call.TokenLiquidity, call.LPSupply, call.CreditOutstanding, call.Capacity, minted,
		))
		result = ConvertResult{Performed: true, Minted: minted}
		return nil
	})
	if err != nil {
		return ConvertResult{}, err
	}

	s.publish(ctx, emitted)
	if s.metrics != nil {
		if result.Performed {
			s.metrics.Conversions.Inc()
		} else {
			s.metrics.ConversionNoOps.Inc()
		}
	}
	if result.Performed {
		s.logger.InfoContext(ctx, "capital call converted",
			"capital_call", callID.String(),
			"minted", result.Minted,
		)
	}
	return result, nil
}

// ClaimResult reports a settled claim.
type ClaimResult struct {
	// Amount is the original contribution consumed.
	Amount uint64
	// LPAmount is the ownership tokens paid out.
	LPAmount uint64
}

// Claim settles the caller's voucher after conversion, paying out ownership
// tokens priced at the frozen snapshot.
func (s *Service) Claim(ctx context.Context, callID id.CallID, destination id.AccountID) (result *ClaimResult, err error) {
	defer s.observe("claim", time.Now(), &err)

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	var emitted []events.Event
	err = s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		if err := call.CanClaim(); err != nil {
			return err
		}
		voucher, err := s.loadVoucher(ctx, st, call.ID, caller)
		if err != nil {
			return err
		}

		lpAmount, err := call.ToOwnershipTokens(voucher.Amount)
		if err != nil {
			return err
		}

		call.ApplySettlement(voucher.Amount)
		if err := st.UpdateCall(ctx, call); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update capital call")
		}
		if err := st.DeleteVoucher(ctx, voucher.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "close voucher")
		}

		if err := s.ledger.Apply(ctx,
			ledger.Transfer(call.TokenEscrow, destination, lpAmount, call.Authority()),
		); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "transfer ownership tokens from escrow")
		}

		emitted = append(emitted, events.Claim(call.Registry, call.ID, caller, voucher.Amount, lpAmount))
		result = &ClaimResult{Amount: voucher.Amount, LPAmount: lpAmount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, emitted)
	if s.metrics != nil {
		s.metrics.Claims.Inc()
	}
	s.logger.InfoContext(ctx, "claim settled",
		"capital_call", callID.String(),
		"depositor", caller.String(),
		"amount", result.Amount,
		"lp_amount", result.LPAmount,
	)
	return result, nil
}

// Close tears down a fully settled capital call: residual escrow funds are
// swept to destination, leftover ownership tokens (rounding dust) are burned,
// both escrow accounts are closed and the record is destroyed.
func (s *Service) Close(ctx context.Context, callID id.CallID, destination id.AccountID) (err error) {
	defer s.observe("close", time.Now(), &err)

	err = s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		reg, err := s.registries.Get(ctx, call.Registry)
		if err != nil {
			return err
		}
		if caller := requestcontext.Caller(ctx); caller != reg.Operator {
			return dErrors.New(dErrors.CodeUnauthorized, "only the operator may close capital calls")
		}
		if err := call.CanClose(requestcontext.Now(ctx)); err != nil {
			return err
		}

		// Sweep whatever is actually in escrow. Anyone can transfer straight
		// into the vault, so the residual is not necessarily zero even when
		// every voucher is settled.
		tokenEscrow, err := s.ledger.Account(ctx, call.TokenEscrow)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load token escrow")
		}

		if err := st.DeleteCall(ctx, call.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "destroy capital call")
		}

		authority := call.Authority()
		if err := s.ledger.Apply(ctx,
			ledger.Close(call.FundsEscrow, destination, authority),
			ledger.Burn(reg.LPMint, call.TokenEscrow, tokenEscrow.Balance, authority),
			ledger.Close(call.TokenEscrow, destination, authority),
		); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "close escrow accounts")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.CallsClosed.Inc()
	}
	s.logger.InfoContext(ctx, "capital call closed", "capital_call", callID.String())
	return nil
}

// CallView is the read model for one capital call.
type CallView struct {
	Call  *capitalcall.CapitalCall
	State capitalcall.State
}

// GetCall loads a capital call and its derived state.
func (s *Service) GetCall(ctx context.Context, callID id.CallID) (*CallView, error) {
	var view *CallView
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		view = &CallView{Call: call, State: call.StateAt(requestcontext.Now(ctx))}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GetVoucher loads the caller's open voucher for a capital call.
func (s *Service) GetVoucher(ctx context.Context, callID id.CallID) (*capitalcall.Voucher, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	var voucher *capitalcall.Voucher
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		voucher, err = s.loadVoucher(ctx, st, call.ID, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

// ListVouchers loads every open voucher for a capital call. Restricted to the
// registry operator; depositors read their own voucher through GetVoucher.
func (s *Service) ListVouchers(ctx context.Context, callID id.CallID) ([]*capitalcall.Voucher, error) {
	var vouchers []*capitalcall.Voucher
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		call, err := s.loadCall(ctx, st, callID)
		if err != nil {
			return err
		}
		reg, err := s.registries.Get(ctx, call.Registry)
		if err != nil {
			return err
		}
		if caller := requestcontext.Caller(ctx); caller != reg.Operator {
			return dErrors.New(dErrors.CodeUnauthorized, "only the operator may list vouchers")
		}
		vouchers, err = st.ListVouchers(ctx, call.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "list vouchers")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (s *Service) loadCall(ctx context.Context, st store.Store, callID id.CallID) (*capitalcall.CapitalCall, error) {
	call, err := st.GetCall(ctx, callID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "capital call not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load capital call")
	}
	return call, nil
}

func (s *Service) loadVoucher(ctx context.Context, st store.Store, callID id.CallID, caller id.PartyID) (*capitalcall.Voucher, error) {
	voucher, err := st.GetVoucher(ctx, id.DeriveVoucherID(callID, caller))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no open voucher for caller")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load voucher")
	}
	if err := voucher.Settleable(caller); err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *Service) publish(ctx context.Context, emitted []events.Event) {
	for _, event := range emitted {
		if err := s.events.Emit(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "emit event", "kind", string(event.Kind), "error", err)
		}
	}
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if *err != nil {
		s.metrics.RejectedOps.WithLabelValues(operation, string(dErrors.CodeOf(*err))).Inc()
	}
}
