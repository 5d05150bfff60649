package registry

import (
	"context"
	"errors"
	"log/slog"

	"capcall/internal/ledger"
	id "capcall/pkg/domain"
	dErrors "capcall/pkg/domain-errors"
	"capcall/pkg/platform/sentinel"
	"capcall/pkg/requestcontext"
)

// InitializeParams are the operator-supplied inputs for registry creation.
// ID is optional; pre-allocating it lets the operator derive the minting
// authority first and register the ownership-token mint under it before
// calling Initialize.
type InitializeParams struct {
	ID            id.RegistryID
	FundsMint     id.MintID
	LiquidityPool id.AccountID
	LPMint        id.MintID
	AuthoritySalt []byte
}

// Service creates and resolves registry records.
type Service struct {
	store  Store
	ledger ledger.Service
	logger *slog.Logger
}

// NewService constructs the registry service.
func NewService(store Store, ledgerSvc ledger.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ledger: ledgerSvc, logger: logger}
}

// Initialize creates the deployment's registry record. The caller becomes the
// operator. The external references are validated against the ledger: the
// liquidity pool must hold the funds mint, and the ownership-token mint must
// be controlled by the authority derived from (registry ID, salt).
func (s *Service) Initialize(ctx context.Context, params InitializeParams) (*Registry, error) {
	operator := requestcontext.Caller(ctx)
	if operator.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if len(params.AuthoritySalt) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authority salt is required")
	}

	registryID := params.ID
	if registryID.IsNil() {
		registryID = id.NewRegistryID()
	}

	pool, err := s.ledger.Account(ctx, params.LiquidityPool)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "liquidity pool account not found")
	}
	if pool.Mint != params.FundsMint {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "liquidity pool does not hold the funds mint")
	}
	if _, err := s.ledger.MintInfo(ctx, params.FundsMint); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "funds mint not found")
	}
	lpMint, err := s.ledger.MintInfo(ctx, params.LPMint)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "ownership token mint not found")
	}

	authority := id.DeriveMintAuthority(registryID, params.AuthoritySalt)
	if lpMint.Authority != authority {
		return nil, dErrors.New(dErrors.CodeInvalidMintAuthority, "ownership token mint is not controlled by the derived authority")
	}

	record := &Registry{
		ID:            registryID,
		Operator:      operator,
		FundsMint:     params.FundsMint,
		LiquidityPool: params.LiquidityPool,
		LPMint:        params.LPMint,
		MintAuthority: authority,
		AuthoritySalt: params.AuthoritySalt,
		CreatedAt:     requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "registry already initialized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist registry")
	}

	s.logger.InfoContext(ctx, "registry initialized",
		"registry", record.ID.String(),
		"operator", operator.String(),
	)
	return record, nil
}

// Get resolves a registry record.
func (s *Service) Get(ctx context.Context, registryID id.RegistryID) (*Registry, error) {
	record, err := s.store.Get(ctx, registryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "registry not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load registry")
	}
	return record, nil
}
