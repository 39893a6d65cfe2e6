package crypto

import (
	"testing"
)

// BenchmarkDeriveKeyNormal measures unlocking a key file with the default
// parameters. This is intentionally slow.
func BenchmarkDeriveKeyNormal(b *testing.B) {
	password := []byte("test-password-123")
	salt := make([]byte, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DeriveKey(password, salt, NormalParams)
	}
}

func BenchmarkDeriveKeyTest(b *testing.B) {
	password := []byte("test-password-123")
	salt := make([]byte, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DeriveKey(password, salt, TestParams)
	}
}

func BenchmarkKeyHash(b *testing.B) {
	key := make([]byte, Argon2KeySize)
	stored := KeyHash(key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyKeyHash(key, stored)
	}
}

// BenchmarkSecureZero measures secure memory zeroing performance.
func BenchmarkSecureZero(b *testing.B) {
	data := make([]byte, 32) // Typical key size

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SecureZero(data)
	}
}

func BenchmarkSecretLifecycle(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := NewSecret("correct horse battery staple")
		_ = s.Bytes()
		s.Close()
	}
}
