package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"capcall/internal/capitalcall"
	"capcall/internal/capitalcall/store"
	"capcall/internal/events"
	"capcall/internal/ledger"
	"capcall/internal/registry"
	id "capcall/pkg/domain"
	dErrors "capcall/pkg/domain-errors"
	"capcall/pkg/requestcontext"
)

const (
	testCapacity  = uint64(1_000_000)
	testPoolFunds = uint64(2_000_000)
	testLPSupply  = uint64(4_000_000)
	testCredit    = uint64(500_000)
)

// testMintedLP is testCapacity * (testPoolFunds + testCredit) / testLPSupply.
const testMintedLP = uint64(625_000)

type ServiceSuite struct {
	suite.Suite
	ledger     *ledger.InMemory
	callStore  *store.InMemoryStore
	registries *registry.Service
	publisher  *events.InMemoryPublisher
	service    *Service

	operator  id.PartyID
	registry  *registry.Registry
	fundsAuth id.AuthorityID

	start time.Time
	end   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ledger = ledger.NewInMemory()
	s.callStore = store.NewInMemoryStore()
	s.publisher = events.NewInMemoryPublisher()
	s.operator = id.NewPartyID()
	s.start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.end = s.start.Add(24 * time.Hour)

	ctx := context.Background()

	// External funds token and its liquidity pool.
	s.fundsAuth = s.operator.Authority()
	fundsMint, err := s.ledger.CreateMint(ctx, s.fundsAuth)
	s.Require().NoError(err)
	pool, err := s.ledger.CreateAccount(ctx, fundsMint, s.fundsAuth)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.Apply(ctx, ledger.MintTo(fundsMint, pool, testPoolFunds, s.fundsAuth)))

	// Ownership token mint under the derived registry authority, with supply
	// bootstrapped outside the engine.
	registryID := id.NewRegistryID()
	salt := []byte("test-salt")
	mintAuth := id.DeriveMintAuthority(registryID, salt)
	lpMint, err := s.ledger.CreateMint(ctx, mintAuth)
	s.Require().NoError(err)
	bootstrap, err := s.ledger.CreateAccount(ctx, lpMint, s.fundsAuth)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.Apply(ctx, ledger.MintTo(lpMint, bootstrap, testLPSupply, mintAuth)))

	s.registries = registry.NewService(registry.NewInMemoryStore(), s.ledger, nil)
	s.registry, err = s.registries.Initialize(s.callerCtx(s.operator, s.start), registry.InitializeParams{
		ID:            registryID,
		FundsMint:     fundsMint,
		LiquidityPool: pool,
		LPMint:        lpMint,
		AuthoritySalt: salt,
	})
	s.Require().NoError(err)

	s.service, err = New(s.callStore, s.registries, s.ledger, s.publisher, nil, nil)
	s.Require().NoError(err)
}

// callerCtx builds a request context with a trusted time and caller identity,
// the way the auth and request-time middlewares would.
func (s *ServiceSuite) callerCtx(caller id.PartyID, now time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	return requestcontext.WithCaller(ctx, caller)
}

func (s *ServiceSuite) createCall() *capitalcall.CapitalCall {
	call, err := s.service.Create(s.callerCtx(s.operator, s.start.Add(-time.Hour)), CreateParams{
		Registry:          s.registry.ID,
		StartTime:         s.start,
		Duration:          24 * time.Hour,
		Capacity:          testCapacity,
		CreditOutstanding: testCredit,
	})
	s.Require().NoError(err)
	return call
}

// newDepositor provisions a party with a funded account for the funds mint.
func (s *ServiceSuite) newDepositor(balance uint64) (id.PartyID, id.AccountID) {
	ctx := context.Background()
	party := id.NewPartyID()
	account, err := s.ledger.CreateAccount(ctx, s.registry.FundsMint, party.Authority())
	s.Require().NoError(err)
	if balance > 0 {
		s.Require().NoError(s.ledger.Apply(ctx, ledger.MintTo(s.registry.FundsMint, account, balance, s.fundsAuth)))
	}
	return party, account
}

// newTokenAccount provisions an ownership-token account for a party.
func (s *ServiceSuite) newTokenAccount(party id.PartyID) id.AccountID {
	account, err := s.ledger.CreateAccount(context.Background(), s.registry.LPMint, party.Authority())
	s.Require().NoError(err)
	return account
}

func (s *ServiceSuite) balance(account id.AccountID) uint64 {
	acc, err := s.ledger.Account(context.Background(), account)
	s.Require().NoError(err)
	return acc.Balance
}

// =============================================================================
// Create
// =============================================================================

func (s *ServiceSuite) TestCreate() {
	s.Run("creates call with derived key and escrow accounts", func() {
		call := s.createCall()
		s.Equal(id.DeriveCallID(s.registry.ID, s.start.Unix(), testCapacity), call.ID)
		s.Equal(s.end, call.EndTime)
		s.Equal(uint64(0), call.Allocated)
		s.Equal(uint64(0), s.balance(call.FundsEscrow))
		s.Equal(uint64(0), s.balance(call.TokenEscrow))
	})

	s.Run("recreating the same round conflicts", func() {
		_, err := s.service.Create(s.callerCtx(s.operator, s.start.Add(-time.Hour)), CreateParams{
			Registry:  s.registry.ID,
			StartTime: s.start,
			Duration:  time.Hour,
			Capacity:  testCapacity,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("only the operator may create", func() {
		_, err := s.service.Create(s.callerCtx(id.NewPartyID(), s.start.Add(-time.Hour)), CreateParams{
			Registry:  s.registry.ID,
			StartTime: s.start,
			Duration:  time.Hour,
			Capacity:  1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects past start time", func() {
		_, err := s.service.Create(s.callerCtx(s.operator, s.start.Add(time.Hour)), CreateParams{
			Registry:  s.registry.ID,
			StartTime: s.start,
			Duration:  time.Hour,
			Capacity:  1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidWindow))
	})

	s.Run("rejects zero duration", func() {
		_, err := s.service.Create(s.callerCtx(s.operator, s.start.Add(-time.Hour)), CreateParams{
			Registry:  s.registry.ID,
			StartTime: s.start,
			Capacity:  1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidDuration))
	})

	s.Run("rejects zero capacity", func() {
		_, err := s.service.Create(s.callerCtx(s.operator, s.start.Add(-time.Hour)), CreateParams{
			Registry:  s.registry.ID,
			StartTime: s.start,
			Duration:  time.Hour,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCapacity))
	})
}

// =============================================================================
// Deposit
// =============================================================================

func (s *ServiceSuite) TestDeposit() {
	call := s.createCall()
	inWindow := s.start.Add(time.Hour)

	s.Run("moves funds into escrow and opens a voucher", func() {
		depositor, source := s.newDepositor(400_000)
		result, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, 400_000, source)
		s.Require().NoError(err)

		s.Equal(uint64(400_000), result.Accepted)
		s.False(result.FullyRaised)
		s.Equal(uint64(400_000), result.Voucher.Amount)
		s.Equal(depositor, result.Voucher.Depositor)
		s.Equal(uint64(400_000), s.balance(call.FundsEscrow))
		s.Equal(uint64(0), s.balance(source))

		deposits := s.publisher.OfKind(events.KindDeposit)
		s.Require().Len(deposits, 1)
		s.Equal(uint64(400_000), deposits[0].Amount)
	})

	s.Run("repeat deposit tops up the same voucher", func() {
		depositor, source := s.newDepositor(300_000)
		first, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, 100_000, source)
		s.Require().NoError(err)
		second, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, 200_000, source)
		s.Require().NoError(err)

		s.Equal(first.Voucher.ID, second.Voucher.ID)
		s.Equal(uint64(300_000), second.Voucher.Amount)
	})

	s.Run("overfilling deposit is clamped to remaining capacity", func() {
		// 700_000 already allocated by the two depositors above.
		depositor, source := s.newDepositor(1_500_000)
		result, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, 1_500_000, source)
		s.Require().NoError(err)

		s.Equal(uint64(300_000), result.Accepted)
		s.True(result.FullyRaised)
		s.Equal(uint64(1_200_000), s.balance(source), "only the accepted amount is charged")

		view, err := s.service.GetCall(s.callerCtx(depositor, inWindow), call.ID)
		s.Require().NoError(err)
		s.Equal(testCapacity, view.Call.Allocated)
		s.Equal(capitalcall.StateFilled, view.State)
		s.Require().Len(s.publisher.OfKind(events.KindFullyRaised), 1)
	})

	s.Run("rejects deposits once full", func() {
		depositor, source := s.newDepositor(100)
		_, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, 100, source)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFull))
	})
}

func (s *ServiceSuite) TestDepositPreconditions() {
	call := s.createCall()
	depositor, source := s.newDepositor(1_000)

	s.Run("before the window opens", func() {
		_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(-time.Minute)), call.ID, 100, source)
		s.True(dErrors.HasCode(err, dErrors.CodeNotStarted))
	})

	s.Run("after the window closes", func() {
		_, err := s.service.Deposit(s.callerCtx(depositor, s.end), call.ID, 100, source)
		s.True(dErrors.HasCode(err, dErrors.CodeWindowClosed))
	})

	s.Run("zero amount", func() {
		_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID, 0, source)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAmount))
	})

	s.Run("unknown call", func() {
		_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), id.DeriveCallID(s.registry.ID, 0, 1), 100, source)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("anonymous caller", func() {
		_, err := s.service.Deposit(requestcontext.WithTime(context.Background(), s.start.Add(time.Hour)), call.ID, 100, source)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestDepositInsufficientFundsLeavesNoTrace() {
	call := s.createCall()
	depositor, source := s.newDepositor(50)

	_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID, 100, source)
	s.Require().Error(err)

	// The failed ledger transfer aborted the whole operation.
	view, viewErr := s.service.GetCall(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID)
	s.Require().NoError(viewErr)
	s.Equal(uint64(0), view.Call.Allocated)
	_, voucherErr := s.service.GetVoucher(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID)
	s.True(dErrors.HasCode(voucherErr, dErrors.CodeNotFound))
	s.Equal(uint64(50), s.balance(source))
	s.Empty(s.publisher.Events())
}

// =============================================================================
// Refund
// =============================================================================

func (s *ServiceSuite) TestRefund() {
	call := s.createCall()
	inWindow := s.start.Add(time.Hour)
	afterEnd := s.end.Add(time.Minute)

	depositor, source := s.newDepositor(400_000)
	_, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, 400_000, source)
	s.Require().NoError(err)

	s.Run("rejected while the window is still open", func() {
		_, err := s.service.Refund(s.callerCtx(depositor, inWindow), call.ID, source)
		s.True(dErrors.HasCode(err, dErrors.CodeWindowStillOpen))
	})

	s.Run("returns the full contribution after expiry", func() {
		amount, err := s.service.Refund(s.callerCtx(depositor, afterEnd), call.ID, source)
		s.Require().NoError(err)
		s.Equal(uint64(400_000), amount)
		s.Equal(uint64(400_000), s.balance(source))
		s.Equal(uint64(0), s.balance(call.FundsEscrow))

		refunds := s.publisher.OfKind(events.KindRefund)
		s.Require().Len(refunds, 1)
		s.Equal(uint64(400_000), refunds[0].Amount)
	})

	s.Run("second refund finds no voucher", func() {
		_, err := s.service.Refund(s.callerCtx(depositor, afterEnd), call.ID, source)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("round becomes closeable once every voucher is settled", func() {
		view, err := s.service.GetCall(s.callerCtx(depositor, afterEnd), call.ID)
		s.Require().NoError(err)
		s.Equal(capitalcall.StateCloseable, view.State)
	})
}

func (s *ServiceSuite) TestRefundRejectedWhenFull() {
	call := s.createCall()
	depositor, source := s.newDepositor(testCapacity)
	_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID, testCapacity, source)
	s.Require().NoError(err)

	_, err = s.service.Refund(s.callerCtx(depositor, s.end.Add(time.Hour)), call.ID, source)
	s.True(dErrors.HasCode(err, dErrors.CodeStillFundraising))
}

func (s *ServiceSuite) TestRefundOtherDepositorsVoucherIsInvisible() {
	call := s.createCall()
	depositor, source := s.newDepositor(1_000)
	_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID, 1_000, source)
	s.Require().NoError(err)

	stranger, strangerAccount := s.newDepositor(0)
	_, err = s.service.Refund(s.callerCtx(stranger, s.end.Add(time.Hour)), call.ID, strangerAccount)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Convert
// =============================================================================

func (s *ServiceSuite) fillCall(call *capitalcall.CapitalCall) (id.PartyID, id.AccountID) {
	depositor, source := s.newDepositor(testCapacity)
	_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID, testCapacity, source)
	s.Require().NoError(err)
	return depositor, source
}

func (s *ServiceSuite) TestConvert() {
	call := s.createCall()
	s.fillCall(call)
	ctx := s.callerCtx(id.NewPartyID(), s.start.Add(2*time.Hour))

	result, err := s.service.Convert(ctx, call.ID)
	s.Require().NoError(err)
	s.True(result.Performed)
	s.Equal(testMintedLP, result.Minted)

	// Raised capital deployed to the pool, ownership tokens held in escrow.
	s.Equal(testPoolFunds+testCapacity, s.balance(s.registry.LiquidityPool))
	s.Equal(uint64(0), s.balance(call.FundsEscrow))
	s.Equal(testMintedLP, s.balance(call.TokenEscrow))

	view, err := s.service.GetCall(ctx, call.ID)
	s.Require().NoError(err)
	s.True(view.Call.Converted)
	s.Equal(testPoolFunds, view.Call.TokenLiquidity)
	s.Equal(testLPSupply, view.Call.LPSupply)
	s.Equal(capitalcall.StateConverted, view.State)

	converted := s.publisher.OfKind(events.KindConverted)
	s.Require().Len(converted, 1)
	s.Equal(testMintedLP, converted[0].Minted)

	s.Run("second convert is a successful no-op", func() {
		again, err := s.service.Convert(ctx, call.ID)
		s.Require().NoError(err)
		s.False(again.Performed)
		s.Equal(testMintedLP, s.balance(call.TokenEscrow), "no double mint")
	})
}

func (s *ServiceSuite) TestConvertNoOpWhileFundraising() {
	call := s.createCall()
	ctx := s.callerCtx(id.NewPartyID(), s.start.Add(time.Hour))

	result, err := s.service.Convert(ctx, call.ID)
	s.Require().NoError(err)
	s.False(result.Performed)
	s.Equal(uint64(0), result.Minted)
}

func (s *ServiceSuite) TestConvertValidatesSetupEvenWhenIneligible() {
	// A registry whose ownership token supply was never bootstrapped must
	// fail convert loudly rather than no-op forever, even though the round
	// is not fully raised yet.
	ctx := context.Background()
	registryID := id.NewRegistryID()
	salt := []byte("bare-salt")
	mintAuth := id.DeriveMintAuthority(registryID, salt)
	lpMint, err := s.ledger.CreateMint(ctx, mintAuth)
	s.Require().NoError(err)
	pool, err := s.ledger.CreateAccount(ctx, s.registry.FundsMint, s.fundsAuth)
	s.Require().NoError(err)

	bare, err := s.registries.Initialize(s.callerCtx(s.operator, s.start), registry.InitializeParams{
		ID:            registryID,
		FundsMint:     s.registry.FundsMint,
		LiquidityPool: pool,
		LPMint:        lpMint,
		AuthoritySalt: salt,
	})
	s.Require().NoError(err)

	call, err := s.service.Create(s.callerCtx(s.operator, s.start.Add(-time.Hour)), CreateParams{
		Registry:  bare.ID,
		StartTime: s.start,
		Duration:  24 * time.Hour,
		Capacity:  testCapacity,
	})
	s.Require().NoError(err)

	_, err = s.service.Convert(s.callerCtx(id.NewPartyID(), s.start.Add(time.Hour)), call.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeZeroSupply))
}

// =============================================================================
// Claim
// =============================================================================

func (s *ServiceSuite) TestClaim() {
	call := s.createCall()
	ctx := s.callerCtx(id.NewPartyID(), s.start.Add(2*time.Hour))

	depositorA, sourceA := s.newDepositor(600_000)
	depositorB, sourceB := s.newDepositor(400_000)
	_, err := s.service.Deposit(s.callerCtx(depositorA, s.start.Add(time.Hour)), call.ID, 600_000, sourceA)
	s.Require().NoError(err)
	_, err = s.service.Deposit(s.callerCtx(depositorB, s.start.Add(time.Hour)), call.ID, 400_000, sourceB)
	s.Require().NoError(err)

	s.Run("rejected before conversion", func() {
		dest := s.newTokenAccount(depositorA)
		_, err := s.service.Claim(s.callerCtx(depositorA, s.start.Add(time.Hour)), call.ID, dest)
		s.True(dErrors.HasCode(err, dErrors.CodeNotYetConverted))
	})

	result, err := s.service.Convert(ctx, call.ID)
	s.Require().NoError(err)
	s.Require().True(result.Performed)

	s.Run("pays out pro rata at the frozen price", func() {
		destA := s.newTokenAccount(depositorA)
		claimA, err := s.service.Claim(s.callerCtx(depositorA, s.end.Add(time.Hour)), call.ID, destA)
		s.Require().NoError(err)
		s.Equal(uint64(600_000), claimA.Amount)
		// 600_000 * 2_500_000 / 4_000_000
		s.Equal(uint64(375_000), claimA.LPAmount)
		s.Equal(uint64(375_000), s.balance(destA))

		destB := s.newTokenAccount(depositorB)
		claimB, err := s.service.Claim(s.callerCtx(depositorB, s.end.Add(time.Hour)), call.ID, destB)
		s.Require().NoError(err)
		s.Equal(uint64(250_000), claimB.LPAmount)

		s.Equal(result.Minted, claimA.LPAmount+claimB.LPAmount)
		s.Equal(uint64(0), s.balance(call.TokenEscrow))
	})

	s.Run("second claim finds no voucher", func() {
		dest := s.newTokenAccount(depositorA)
		_, err := s.service.Claim(s.callerCtx(depositorA, s.end.Add(time.Hour)), call.ID, dest)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("fully settled round is closeable", func() {
		view, err := s.service.GetCall(ctx, call.ID)
		s.Require().NoError(err)
		s.Equal(view.Call.Allocated, view.Call.Redeemed)
		s.Equal(capitalcall.StateCloseable, view.State)
	})
}

// =============================================================================
// Close
// =============================================================================

func (s *ServiceSuite) TestCloseConvertedRound() {
	call := s.createCall()
	depositor, _ := s.fillCall(call)
	ctx := s.callerCtx(s.operator, s.start.Add(2*time.Hour))

	_, err := s.service.Convert(ctx, call.ID)
	s.Require().NoError(err)

	s.Run("rejected before distribution completes", func() {
		dest := s.newTokenAccount(s.operator)
		err := s.service.Close(ctx, call.ID, dest)
		s.True(dErrors.HasCode(err, dErrors.CodeMustDistributeFirst))
	})

	dest := s.newTokenAccount(depositor)
	_, err = s.service.Claim(s.callerCtx(depositor, s.start.Add(3*time.Hour)), call.ID, dest)
	s.Require().NoError(err)

	s.Run("only the operator may close", func() {
		sweep := s.newTokenAccount(s.operator)
		err := s.service.Close(s.callerCtx(id.NewPartyID(), s.start.Add(3*time.Hour)), call.ID, sweep)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("destroys the record and both escrow accounts", func() {
		sweep := s.newTokenAccount(s.operator)
		s.Require().NoError(s.service.Close(ctx, call.ID, sweep))

		_, err := s.service.GetCall(ctx, call.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.ledger.Account(context.Background(), call.FundsEscrow)
		s.Error(err)
		_, err = s.ledger.Account(context.Background(), call.TokenEscrow)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestCloseExpiredRound() {
	call := s.createCall()
	depositor, source := s.newDepositor(100_000)
	_, err := s.service.Deposit(s.callerCtx(depositor, s.start.Add(time.Hour)), call.ID, 100_000, source)
	s.Require().NoError(err)

	afterEnd := s.end.Add(time.Minute)

	s.Run("rejected before every voucher is refunded", func() {
		err := s.service.Close(s.callerCtx(s.operator, afterEnd), call.ID, source)
		s.True(dErrors.HasCode(err, dErrors.CodeMustRefundFirst))
	})

	_, err = s.service.Refund(s.callerCtx(depositor, afterEnd), call.ID, source)
	s.Require().NoError(err)

	s.Run("rejected while the window is still open", func() {
		err := s.service.Close(s.callerCtx(s.operator, s.start.Add(time.Hour)), call.ID, source)
		s.True(dErrors.HasCode(err, dErrors.CodeWindowStillOpen))
	})

	s.Run("succeeds once refunds are settled", func() {
		s.Require().NoError(s.service.Close(s.callerCtx(s.operator, afterEnd), call.ID, source))
		_, err := s.service.GetCall(s.callerCtx(s.operator, afterEnd), call.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestCloseSweepsResidualFunds() {
	call := s.createCall()
	afterEnd := s.end.Add(time.Minute)

	// Someone transferred straight into the vault without depositing. No
	// voucher exists, so the round is closeable, but the escrow is not empty.
	stray, strayAccount := s.newDepositor(777)
	s.Require().NoError(s.ledger.Apply(context.Background(),
		ledger.Transfer(strayAccount, call.FundsEscrow, 777, stray.Authority()),
	))

	_, sweep := s.newDepositor(0)
	s.Require().NoError(s.service.Close(s.callerCtx(s.operator, afterEnd), call.ID, sweep))
	s.Equal(uint64(777), s.balance(sweep))
}

// =============================================================================
// Invariants across the lifecycle
// =============================================================================

func (s *ServiceSuite) TestAllocatedNeverExceedsCapacityAndVouchersSum() {
	call := s.createCall()
	inWindow := s.start.Add(time.Hour)

	amounts := []uint64{350_000, 350_000, 500_000}
	var vouchers uint64
	for _, amount := range amounts {
		depositor, source := s.newDepositor(amount)
		result, err := s.service.Deposit(s.callerCtx(depositor, inWindow), call.ID, amount, source)
		s.Require().NoError(err)
		vouchers += result.Voucher.Amount

		view, err := s.service.GetCall(s.callerCtx(depositor, inWindow), call.ID)
		s.Require().NoError(err)
		s.LessOrEqual(view.Call.Allocated, view.Call.Capacity)
		s.Equal(vouchers, view.Call.Allocated, "sum of open vouchers equals allocated")
		s.Equal(view.Call.Allocated, s.balance(call.FundsEscrow))
	}
	s.Equal(testCapacity, vouchers)
}

// =============================================================================
// Voucher reads
// =============================================================================

func (s *ServiceSuite) TestListVouchers() {
	call := s.createCall()
	inWindow := s.start.Add(time.Hour)

	first, firstSource := s.newDepositor(100_000)
	_, err := s.service.Deposit(s.callerCtx(first, inWindow), call.ID, 100_000, firstSource)
	s.Require().NoError(err)
	second, secondSource := s.newDepositor(40_000)
	_, err = s.service.Deposit(s.callerCtx(second, inWindow), call.ID, 40_000, secondSource)
	s.Require().NoError(err)

	s.Run("operator sees every open voucher", func() {
		vouchers, err := s.service.ListVouchers(s.callerCtx(s.operator, inWindow), call.ID)
		s.Require().NoError(err)
		s.Require().Len(vouchers, 2)
		byDepositor := map[id.PartyID]uint64{}
		for _, voucher := range vouchers {
			s.Equal(call.ID, voucher.Call)
			byDepositor[voucher.Depositor] = voucher.Amount
		}
		s.Equal(uint64(100_000), byDepositor[first])
		s.Equal(uint64(40_000), byDepositor[second])
	})

	s.Run("depositors may not list", func() {
		_, err := s.service.ListVouchers(s.callerCtx(first, inWindow), call.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown call", func() {
		_, err := s.service.ListVouchers(s.callerCtx(s.operator, inWindow), id.DeriveCallID(id.NewRegistryID(), 0, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("settled vouchers disappear", func() {
		_, err := s.service.Refund(s.callerCtx(first, s.end.Add(time.Hour)), call.ID, firstSource)
		s.Require().NoError(err)
		vouchers, err := s.service.ListVouchers(s.callerCtx(s.operator, s.end.Add(time.Hour)), call.ID)
		s.Require().NoError(err)
		s.Require().Len(vouchers, 1)
		s.Equal(second, vouchers[0].Depositor)
	})
}
