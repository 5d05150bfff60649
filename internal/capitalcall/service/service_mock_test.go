package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"capcall/internal/capitalcall"
	"capcall/internal/capitalcall/store"
	"capcall/internal/events"
	"capcall/internal/ledger"
	ledgermock "capcall/internal/ledger/mock"
	"capcall/internal/registry"
	id "capcall/pkg/domain"
	dErrors "capcall/pkg/domain-errors"
	"capcall/pkg/requestcontext"
)

// staticResolver serves one fixed registry record.
type staticResolver struct {
	record *registry.Registry
}

func (r *staticResolver) Get(_ context.Context, registryID id.RegistryID) (*registry.Registry, error) {
	if registryID != r.record.ID {
		return nil, dErrors.New(dErrors.CodeNotFound, "registry not found")
	}
	return r.record, nil
}

func mockFixture(t *testing.T, ledgerSvc ledger.Service) (*Service, *store.InMemoryStore, *registry.Registry) {
	t.Helper()

	record := &registry.Registry{
		ID:            id.NewRegistryID(),
		Operator:      id.NewPartyID(),
		FundsMint:     id.NewMintID(),
		LiquidityPool: id.NewAccountID(),
		LPMint:        id.NewMintID(),
	}
	record.MintAuthority = id.DeriveMintAuthority(record.ID, []byte("salt"))

	callStore := store.NewInMemoryStore()
	svc, err := New(callStore, &staticResolver{record: record}, ledgerSvc, events.NewInMemoryPublisher(), nil, nil)
	require.NoError(t, err)
	return svc, callStore, record
}

func seedCall(t *testing.T, callStore *store.InMemoryStore, record *registry.Registry, start time.Time, allocated uint64) *capitalcall.CapitalCall {
	t.Helper()

	call := &capitalcall.CapitalCall{
		ID:          id.DeriveCallID(record.ID, start.Unix(), 1_000),
		Registry:    record.ID,
		FundsEscrow: id.NewAccountID(),
		TokenEscrow: id.NewAccountID(),
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Capacity:    1_000,
		Allocated:   allocated,
	}
	err := callStore.RunInTx(context.Background(), func(st store.Store) error {
		return st.CreateCall(context.Background(), call)
	})
	require.NoError(t, err)
	return call
}

func TestConvertLedgerFailureLeavesCallUnconverted(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := ledgermock.NewMockService(ctrl)

	svc, callStore, record := mockFixture(t, ledgerSvc)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	call := seedCall(t, callStore, record, start, 1_000)

	ledgerSvc.EXPECT().MintInfo(gomock.Any(), record.LPMint).
		Return(ledger.Mint{ID: record.LPMint, Authority: record.MintAuthority, Supply: 4_000}, nil)
	ledgerSvc.EXPECT().Account(gomock.Any(), record.LiquidityPool).
		Return(ledger.Account{ID: record.LiquidityPool, Mint: record.FundsMint, Balance: 2_000}, nil)
	ledgerSvc.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("ledger unavailable"))

	ctx := requestcontext.WithTime(context.Background(), start.Add(30*time.Minute))
	_, err := svc.Convert(ctx, call.ID)
	require.Error(t, err)

	// The staged conversion never committed.
	view, err := svc.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.False(t, view.Call.Converted)
	assert.Equal(t, uint64(0), view.Call.LPSupply)
}

func TestConvertRejectsForeignMintAuthority(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := ledgermock.NewMockService(ctrl)

	svc, callStore, record := mockFixture(t, ledgerSvc)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	call := seedCall(t, callStore, record, start, 500)

	ledgerSvc.EXPECT().MintInfo(gomock.Any(), record.LPMint).
		Return(ledger.Mint{ID: record.LPMint, Authority: id.NewPartyID().Authority(), Supply: 4_000}, nil)

	ctx := requestcontext.WithTime(context.Background(), start.Add(30*time.Minute))
	_, err := svc.Convert(ctx, call.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidMintAuthority),
		"authority is validated before the eligibility no-op")
}

func TestCreateReleasesEscrowOnConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := ledgermock.NewMockService(ctrl)

	svc, callStore, record := mockFixture(t, ledgerSvc)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedCall(t, callStore, record, start, 0)

	fundsEscrow := id.NewAccountID()
	tokenEscrow := id.NewAccountID()
	ledgerSvc.EXPECT().CreateAccount(gomock.Any(), record.FundsMint, gomock.Any()).Return(fundsEscrow, nil)
	ledgerSvc.EXPECT().CreateAccount(gomock.Any(), record.LPMint, gomock.Any()).Return(tokenEscrow, nil)
	// The duplicate insert must release both freshly opened accounts.
	ledgerSvc.EXPECT().Apply(gomock.Any(),
		ledger.Close(fundsEscrow, fundsEscrow, id.DeriveCallAuthority(id.DeriveCallID(record.ID, start.Unix(), 1_000))),
		ledger.Close(tokenEscrow, tokenEscrow, id.DeriveCallAuthority(id.DeriveCallID(record.ID, start.Unix(), 1_000))),
	).Return(nil)

	ctx := requestcontext.WithCaller(requestcontext.WithTime(context.Background(), start.Add(-time.Hour)), record.Operator)
	_, err := svc.Create(ctx, CreateParams{
		Registry:  record.ID,
		StartTime: start,
		Duration:  time.Hour,
		Capacity:  1_000,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}
