// Package keyfile reads and writes the password-verifying key files used by
// the passthrough driver.
//
// Layout (259 bytes):
//
//	magic "CFK1"             4 bytes
//	RS5(params)             15 bytes  version, passes, threads, memExp, reserved
//	RS16(salt)              48 bytes  argon2id salt
//	RS64(SHA3-512(key))    192 bytes  hash of the derived key
//
// Every field after the magic is Reed-Solomon protected so that a few
// flipped bits do not lock the user out of a folder.
package keyfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"cryptfolder/internal/crypto"
	"cryptfolder/internal/encoding"
)

const (
	magic = "CFK1"

	// Size is the exact size of a key file on disk.
	Size = len(magic) + 15 + 48 + 192

	version  = 1
	saltSize = 16
)

var (
	// ErrBadPassword is returned by Verify when the password does not match.
	ErrBadPassword = errors.New("keyfile: wrong password")
	// ErrCorrupt is returned when the file is not a key file or cannot be repaired.
	ErrCorrupt = errors.New("keyfile: corrupt key file")
)

// Header is a parsed key file.
type Header struct {
	Params  crypto.Argon2Params
	Salt    []byte
	KeyHash []byte
}

// New derives a key from password with fresh salt and returns the header
// that verifies it.
func New(password []byte, params crypto.Argon2Params) (*Header, error) {
	salt, err := crypto.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZero(key)

	return &Header{Params: params, Salt: salt, KeyHash: crypto.KeyHash(key)}, nil
}

// Verify derives the key for password and compares it with the stored hash.
func (h *Header) Verify(password []byte) error {
	key, err := crypto.DeriveKey(password, h.Salt, h.Params)
	if err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}
	defer crypto.SecureZero(key)

	if !crypto.VerifyKeyHash(key, h.KeyHash) {
		return ErrBadPassword
	}
	return nil
}

// MarshalBinary encodes the header in the on-disk layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	codecs, err := encoding.NewCodecs()
	if err != nil {
		return nil, err
	}

	params := []byte{version, h.Params.Passes, h.Params.Threads, h.Params.MemExp, 0}
	p, err := encoding.Encode(codecs.RS5, params)
	if err != nil {
		return nil, err
	}
	s, err := encoding.Encode(codecs.RS16, h.Salt)
	if err != nil {
		return nil, err
	}
	k, err := encoding.Encode(codecs.RS64, h.KeyHash)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, Size)
	buf = append(buf, magic...)
	buf = append(buf, p...)
	buf = append(buf, s...)
	buf = append(buf, k...)
	return buf, nil
}

// UnmarshalBinary decodes and repairs a header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != Size || string(data[:len(magic)]) != magic {
		return ErrCorrupt
	}
	codecs, err := encoding.NewCodecs()
	if err != nil {
		return err
	}

	off := len(magic)
	params, err := encoding.Decode(codecs.RS5, data[off:off+15])
	if err != nil {
		return fmt.Errorf("%w: params: %v", ErrCorrupt, err)
	}
	off += 15
	salt, err := encoding.Decode(codecs.RS16, data[off:off+48])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrCorrupt, err)
	}
	off += 48
	hash, err := encoding.Decode(codecs.RS64, data[off:off+192])
	if err != nil {
		return fmt.Errorf("%w: key hash: %v", ErrCorrupt, err)
	}

	if params[0] != version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, params[0])
	}
	p := crypto.Argon2Params{Passes: params[1], Threads: params[2], MemExp: params[3]}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	h.Params = p
	h.Salt = append([]byte(nil), salt...)
	h.KeyHash = append([]byte(nil), hash...)
	return nil
}

// Write creates a new key file at path for password. The file is written,
// synced and closed before Write returns; an existing file is never
// overwritten.
func Write(path string, password []byte, params crypto.Argon2Params) error {
	h, err := New(password, params)
	if err != nil {
		return err
	}
	data, err := h.MarshalBinary()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Read parses the key file at path.
func Read(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// One extra byte detects oversized files.
	data, err := io.ReadAll(io.LimitReader(f, int64(Size)+1))
	if err != nil {
		return nil, err
	}

	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &h, nil
}
