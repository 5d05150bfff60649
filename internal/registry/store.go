package registry

import (
	"context"

	id "capcall/pkg/domain"
)

// Store persists registry records. Creation of an existing ID returns
// sentinel.ErrConflict; lookups of absent records return sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, record *Registry) error
	Get(ctx context.Context, registryID id.RegistryID) (*Registry, error)
}
