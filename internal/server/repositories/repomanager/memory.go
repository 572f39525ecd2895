package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophgate/internal/server/repositories/users"
)

// MemoryRepositoryManager serves dev mode and tests. Data is lost on exit.
type MemoryRepositoryManager struct {
	repo *users.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repo: users.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Users() users.Repository {
	return m.repo
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error {
	return fn(ctx, m.repo)
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
