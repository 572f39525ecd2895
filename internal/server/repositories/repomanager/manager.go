// Package repomanager hides the chosen identity-store backend behind one
// interface so services can run multi-step writes atomically where the
// backend supports it.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophgate/internal/server/repositories/users"
)

type RepositoryManager interface {
	// RunMigrations prepares the backend schema. It is a no-op for
	// schemaless backends.
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	// InTx runs fn with a repository bound to a single transaction. Backends
	// without transactions run fn directly.
	InTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error
	Close() error
}
