package auth

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// HashPool caps how many password hash/verify operations run at once.
// Callers block until a slot is free or their context is done.
type HashPool struct {
	sem    *semaphore.Weighted
	hasher *PasswordVerifier
}

func NewHashPool(hasher *PasswordVerifier, size int) *HashPool {
	if size < 1 {
		size = 1
	}
	return &HashPool{sem: semaphore.NewWeighted(int64(size)), hasher: hasher}
}

func (p *HashPool) Hash(ctx context.Context, secret string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(secret)
}

// Verify returns an error only when ctx ends before a slot is acquired.
func (p *HashPool) Verify(ctx context.Context, secret, encoded string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.hasher.Verify(secret, encoded), nil
}

// DummyHash proxies PasswordVerifier.DummyHash.
func (p *HashPool) DummyHash() string {
	return p.hasher.DummyHash()
}
