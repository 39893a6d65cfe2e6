package util

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"cryptfolder/internal/crypto"
)

// PassgenOptions selects the length and alphabet of a generated password.
type PassgenOptions struct {
	Length  int
	Upper   bool
	Lower   bool
	Numbers bool
	Symbols bool
}

// DefaultPassgen is what "init --generate" uses.
var DefaultPassgen = PassgenOptions{Length: 24, Upper: true, Lower: true, Numbers: true}

func (o PassgenOptions) alphabet() string {
	chars := ""
	if o.Upper {
		chars += "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	}
	if o.Lower {
		chars += "abcdefghijklmnopqrstuvwxyz"
	}
	if o.Numbers {
		chars += "1234567890"
	}
	if o.Symbols {
		chars += "-=_+!@#$^&()?<>"
	}
	return chars
}

// GenPassword returns a uniformly random password drawn from crypto/rand.
// The result is a Secret so it is wiped once the caller is done with it.
func GenPassword(opts PassgenOptions) (*crypto.Secret, error) {
	chars := opts.alphabet()
	if chars == "" {
		return nil, errors.New("no character set selected")
	}
	if opts.Length <= 0 {
		return nil, errors.New("password length must be positive")
	}

	buf := make([]byte, opts.Length)
	limit := big.NewInt(int64(len(chars)))
	for i := range buf {
		j, err := rand.Int(rand.Reader, limit)
		if err != nil {
			crypto.SecureZero(buf)
			return nil, fmt.Errorf("fatal crypto/rand error: %w", err)
		}
		buf[i] = chars[j.Int64()]
	}
	return crypto.NewSecretFromBytes(buf), nil
}
