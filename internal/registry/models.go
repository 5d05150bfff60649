// Package registry holds the once-per-deployment configuration record every
// capital call is created against.
package registry

import (
	"time"

	id "capcall/pkg/domain"
)

// Registry is immutable after creation. Changing the operator key or the pool
// references is external governance and out of scope for the engine.
type Registry struct {
	ID       id.RegistryID
	Operator id.PartyID

	// FundsMint is the token depositors contribute and the pool holds.
	FundsMint id.MintID
	// LiquidityPool is the external pool account raised funds are deployed to.
	LiquidityPool id.AccountID
	// LPMint is the ownership-token mint; its registered authority must match
	// the derived MintAuthority below for conversion to mint.
	LPMint id.MintID

	// MintAuthority is derived from (ID, AuthoritySalt); the salt is stored so
	// the derivation can be replayed and verified.
	MintAuthority id.AuthorityID
	AuthoritySalt []byte

	CreatedAt time.Time
}
