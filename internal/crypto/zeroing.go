// Package crypto provides key derivation and secret handling for encrypted folders.
// This file contains memory zeroing utilities for password material.

package crypto

import (
	"crypto/subtle"
	"sync"
)

// SecureZero overwrites a byte slice with zeros to prevent sensitive data
// from persisting in memory.
//
// ⚠️ SECURITY NOTE: Due to Go's garbage collector and potential compiler
// optimizations, this function cannot guarantee complete erasure.
//
// The function uses subtle.ConstantTimeCopy to prevent the compiler from
// optimizing away the zeroing operation.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros multiple byte slices in a single call.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}

// Secret is a scoped buffer for password material. The bytes are
// overwritten on Close, and every holder of a password keeps it in a
// Secret for as long as it needs it and no longer.
//
// Example:
//
//	pw := NewSecret(input)
//	defer pw.Close()
//	// ... pass pw.Bytes() to the driver ...
type Secret struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewSecret copies s into a new Secret. The caller's string cannot be
// zeroed, so prefer NewSecretFromBytes when the input is already a slice.
func NewSecret(s string) *Secret {
	data := make([]byte, len(s))
	copy(data, s)
	return &Secret{data: data}
}

// NewSecretFromBytes copies b into a new Secret and zeros b.
func NewSecretFromBytes(b []byte) *Secret {
	data := make([]byte, len(b))
	copy(data, b)
	SecureZero(b)
	return &Secret{data: data}
}

// Bytes returns the underlying password bytes.
// Returns nil if the Secret has been closed. The slice must not be retained
// past Close.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.data
}

// Len returns the length of the secret.
func (s *Secret) Len() int {
	return len(s.Bytes())
}

// Empty reports whether the secret holds no bytes.
func (s *Secret) Empty() bool {
	return s.Len() == 0
}

// Clone returns an independent copy that must be closed separately.
func (s *Secret) Clone() *Secret {
	b := s.Bytes()
	data := make([]byte, len(b))
	copy(data, b)
	return &Secret{data: data}
}

// Close securely zeros the secret and marks it as closed.
// This method is idempotent - multiple calls are safe.
func (s *Secret) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	SecureZero(s.data)
	s.data = nil
	s.closed = true
}

// IsClosed returns whether the Secret has been closed.
func (s *Secret) IsClosed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// String never reveals the secret, so a Secret passed to a logger or
// fmt verb by mistake prints a placeholder.
func (s *Secret) String() string {
	return "[redacted]"
}
