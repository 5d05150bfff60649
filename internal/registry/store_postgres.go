package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "capcall/pkg/domain"
	"capcall/pkg/platform/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS registries (
    id             UUID PRIMARY KEY,
    operator       UUID        NOT NULL,
    funds_mint     UUID        NOT NULL,
    liquidity_pool UUID        NOT NULL,
    lp_mint        UUID        NOT NULL,
    mint_authority UUID        NOT NULL,
    authority_salt BYTEA       NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the registry schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}

// PostgresStore persists registry records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed registry store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *Registry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registries (
			id, operator, funds_mint, liquidity_pool, lp_mint,
			mint_authority, authority_salt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID.String(), record.Operator.String(), record.FundsMint.String(),
		record.LiquidityPool.String(), record.LPMint.String(),
		record.MintAuthority.String(), record.AuthoritySalt, record.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("registry %s: %w", record.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, registryID id.RegistryID) (*Registry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operator, funds_mint, liquidity_pool, lp_mint,
		       mint_authority, authority_salt, created_at
		FROM registries WHERE id = $1`,
		registryID.String(),
	)
	var record Registry
	var rawID, rawOperator, rawFundsMint, rawPool, rawLPMint, rawAuthority string
	err := row.Scan(&rawID, &rawOperator, &rawFundsMint, &rawPool, &rawLPMint,
		&rawAuthority, &record.AuthoritySalt, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registry %s: %w", registryID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan registry: %w", err)
	}
	if record.ID, err = id.ParseRegistryID(rawID); err != nil {
		return nil, fmt.Errorf("scan registry id: %w", err)
	}
	if record.Operator, err = id.ParsePartyID(rawOperator); err != nil {
		return nil, fmt.Errorf("scan registry operator: %w", err)
	}
	if record.FundsMint, err = id.ParseMintID(rawFundsMint); err != nil {
		return nil, fmt.Errorf("scan registry funds mint: %w", err)
	}
	if record.LiquidityPool, err = id.ParseAccountID(rawPool); err != nil {
		return nil, fmt.Errorf("scan registry liquidity pool: %w", err)
	}
	if record.LPMint, err = id.ParseMintID(rawLPMint); err != nil {
		return nil, fmt.Errorf("scan registry lp mint: %w", err)
	}
	if record.MintAuthority, err = id.ParseAuthorityID(rawAuthority); err != nil {
		return nil, fmt.Errorf("scan registry mint authority: %w", err)
	}
	return &record, nil
}
