package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/sha3"
)

// RandomBytes generates n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("fatal crypto/rand error: %w", err)
	}

	// Sanity check: bytes should not be all zeros
	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, errors.New("fatal crypto/rand error: produced zero bytes")
	}

	return b, nil
}

// Argon2Params are the argon2id cost parameters recorded in a key file.
// Memory is expressed as a power of two in KiB so it fits in one byte.
type Argon2Params struct {
	Passes  uint8
	Threads uint8
	MemExp  uint8 // memory = 1 << MemExp KiB
}

// Key file parameter sets.
var (
	// NormalParams match the interactive cost used for folder keys.
	NormalParams = Argon2Params{Passes: 4, Threads: 4, MemExp: 20} // 1 GiB

	// ParanoidParams trade unlock latency for a higher attack cost.
	ParanoidParams = Argon2Params{Passes: 8, Threads: 8, MemExp: 20}

	// TestParams keep unit tests fast. Never use for real keys.
	TestParams = Argon2Params{Passes: 1, Threads: 1, MemExp: 10} // 1 MiB
)

// Output key size
const Argon2KeySize = 32

// Memory returns the memory cost in KiB.
func (p Argon2Params) Memory() uint32 {
	return 1 << p.MemExp
}

// Validate rejects parameters that argon2 would accept but that indicate a
// corrupt key file.
func (p Argon2Params) Validate() error {
	if p.Passes == 0 || p.Threads == 0 {
		return errors.New("argon2 passes and threads must be non-zero")
	}
	if p.MemExp < 3 || p.MemExp > 24 {
		return fmt.Errorf("argon2 memory exponent %d out of range", p.MemExp)
	}
	return nil
}

// DeriveKey derives a key from password and salt using Argon2id.
func DeriveKey(password, salt []byte, p Argon2Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key := argon2.IDKey(password, salt, uint32(p.Passes), p.Memory(), p.Threads, Argon2KeySize)

	// Sanity check: key should not be all zeros
	if bytes.Equal(key, make([]byte, Argon2KeySize)) {
		return nil, errors.New("fatal crypto/argon2 error: produced zero key")
	}

	return key, nil
}

// KeyHash returns SHA3-512 of a derived key. Key files store the hash so a
// password can be verified without storing the key.
func KeyHash(key []byte) []byte {
	h := sha3.Sum512(key)
	return h[:]
}

// VerifyKeyHash compares a derived key's hash against a stored hash in
// constant time.
func VerifyKeyHash(key, stored []byte) bool {
	return subtle.ConstantTimeCompare(KeyHash(key), stored) == 1
}
