package repositories

import (
	"context"
)

// UnitOfWork defines the interface for atomic operations
type UnitOfWork interface {
	// Do executes the given function within a transaction scope.
	// A nested Do joins the transaction already carried by ctx.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	// WithLock marks ctx so that row reads inside the transaction take an exclusive lock
	WithLock(ctx context.Context) context.Context
}
