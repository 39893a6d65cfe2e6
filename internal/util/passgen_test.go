package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenPassword(t *testing.T) {
	a, err := GenPassword(DefaultPassgen)
	if err != nil {
		t.Fatalf("GenPassword: %v", err)
	}
	defer a.Close()
	if a.Len() != DefaultPassgen.Length {
		t.Errorf("length = %d; want %d", a.Len(), DefaultPassgen.Length)
	}

	b, err := GenPassword(DefaultPassgen)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two generated passwords are identical")
	}
}

func TestGenPasswordCharacterSets(t *testing.T) {
	tests := []struct {
		name  string
		opts  PassgenOptions
		valid string
	}{
		{"upper", PassgenOptions{Length: 100, Upper: true}, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"},
		{"lower", PassgenOptions{Length: 100, Lower: true}, "abcdefghijklmnopqrstuvwxyz"},
		{"numbers", PassgenOptions{Length: 100, Numbers: true}, "0123456789"},
		{"symbols", PassgenOptions{Length: 100, Symbols: true}, "-=_+!@#$^&()?<>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pw, err := GenPassword(tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			defer pw.Close()
			for _, c := range pw.Bytes() {
				if !strings.ContainsRune(tt.valid, rune(c)) {
					t.Errorf("invalid char %q", c)
				}
			}
		})
	}
}

func TestGenPasswordInvalidOptions(t *testing.T) {
	if _, err := GenPassword(PassgenOptions{Length: 32}); err == nil {
		t.Error("no character set should fail")
	}
	if _, err := GenPassword(PassgenOptions{Upper: true}); err == nil {
		t.Error("zero length should fail")
	}
}
