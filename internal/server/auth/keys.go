package auth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/gophgate/internal/common"
)

// MinKeyLength is the shortest accepted HS256 secret, in bytes.
const MinKeyLength = 32

type signingKey struct {
	secret  []byte
	version uint64
}

// KeyRing holds the single active signing key. Readers take a lock-free
// snapshot; Rotate publishes a new immutable key with one atomic store.
type KeyRing struct {
	mu      sync.Mutex
	current atomic.Pointer[signingKey]
}

func NewKeyRing(secret []byte) (*KeyRing, error) {
	r := &KeyRing{}
	if err := r.Rotate(secret); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the active secret. The slice must not be modified.
func (r *KeyRing) Current() []byte {
	return r.current.Load().secret
}

// Version starts at 1 and grows by one on every rotation.
func (r *KeyRing) Version() uint64 {
	return r.current.Load().version
}

// Rotate replaces the active key. All tokens signed with the previous key
// stop validating immediately.
func (r *KeyRing) Rotate(secret []byte) error {
	if len(secret) < MinKeyLength {
		return fmt.Errorf("%w: %d bytes, need %d", common.ErrKeyTooShort, len(secret), MinKeyLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var version uint64 = 1
	if prev := r.current.Load(); prev != nil {
		version = prev.version + 1
	}
	r.current.Store(&signingKey{secret: append([]byte(nil), secret...), version: version})
	return nil
}

// GenerateKey returns a random 64-character hex secret.
func GenerateKey() ([]byte, error) {
	s, err := common.MakeRandHexString(MinKeyLength)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
