package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and checks one kind of stored password hash.
type Hasher interface {
	Hash(secret string) (string, error)
	// Verify reports whether secret matches hash. A malformed hash is a
	// mismatch, never an error.
	Verify(secret, hash string) bool
}

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost < bcrypt.MinCost || h.Cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost())
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// bcryptMaxSecret is the number of secret bytes bcrypt actually reads.
const bcryptMaxSecret = 72

// Verify rejects secrets longer than bcrypt can tell apart; the comparison
// still runs so the cost is the same either way.
func (h BcryptHasher) Verify(secret, hash string) bool {
	ok := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
	return ok && len(secret) <= bcryptMaxSecret
}

// Argon2Hasher encodes argon2id hashes in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

func DefaultArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{Time: 3, Memory: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}
}

func (h Argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.Time, h.Memory, h.Threads, h.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify reads the cost parameters from hash, so hashes made with other
// settings still verify.
func (h Argon2Hasher) Verify(secret, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}

// PasswordVerifier hashes new secrets with bcrypt and verifies both bcrypt
// and argon2id hashes, picking the scheme by hash prefix.
type PasswordVerifier struct {
	bcrypt BcryptHasher
	argon  Argon2Hasher

	dummyOnce sync.Once
	dummy     string
}

func NewPasswordVerifier(bcryptCost int) *PasswordVerifier {
	return &PasswordVerifier{
		bcrypt: BcryptHasher{Cost: bcryptCost},
		argon:  DefaultArgon2Hasher(),
	}
}

func (v *PasswordVerifier) Hash(secret string) (string, error) {
	return v.bcrypt.Hash(secret)
}

func (v *PasswordVerifier) Verify(secret, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return v.argon.Verify(secret, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return v.bcrypt.Verify(secret, hash)
	default:
		return false
	}
}

// DummyHash is a valid hash of a random secret. Login verifies against it
// when the identifier is unknown so both failure paths cost one hash.
func (v *PasswordVerifier) DummyHash() string {
	v.dummyOnce.Do(func() {
		buf := make([]byte, 24)
		_, _ = rand.Read(buf)
		v.dummy, _ = v.bcrypt.Hash(base64.RawStdEncoding.EncodeToString(buf))
	})
	return v.dummy
}
