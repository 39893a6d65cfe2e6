package cli

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/Picocrypt/zxcvbn-go"
	"golang.org/x/term"

	"cryptfolder/internal/crypto"
	cferrors "cryptfolder/internal/errors"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordEmpty    = errors.New("password cannot be empty")
)

// weakScore is the zxcvbn score below which init warns.
const weakScore = 2

// passwordReader reads passwords from a terminal without echo, or line by
// line from piped input.
type passwordReader struct {
	in       *bufio.Reader
	prompts  io.Writer
	terminal func() bool
	hidden   func() ([]byte, error)
}

func newPasswordReader(fromStdin bool) *passwordReader {
	fd := int(syscall.Stdin)
	return &passwordReader{
		in:      bufio.NewReader(os.Stdin),
		prompts: os.Stderr,
		terminal: func() bool {
			return !fromStdin && term.IsTerminal(fd)
		},
		hidden: func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

// read prompts once and returns what was typed. EOF on piped input is
// reported as io.EOF.
func (p *passwordReader) read(prompt string) (*crypto.Secret, error) {
	if !p.terminal() {
		line, err := p.in.ReadString('\n')
		switch {
		case errors.Is(err, io.EOF) && line == "":
			return nil, io.EOF
		case err != nil && !errors.Is(err, io.EOF):
			return nil, fmt.Errorf("reading password: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		return crypto.NewSecret(line), nil
	}

	fmt.Fprint(p.prompts, prompt)
	pw, err := p.hidden()
	fmt.Fprintln(p.prompts) // newline after hidden input
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return crypto.NewSecretFromBytes(pw), nil
}

// ReadNew reads a password for a new key, asking twice on a terminal.
func (p *passwordReader) ReadNew() (*crypto.Secret, error) {
	pw, err := p.read("New password: ")
	if err != nil {
		return nil, err
	}
	if pw.Empty() {
		pw.Close()
		return nil, ErrPasswordEmpty
	}
	if !p.terminal() {
		return pw, nil
	}

	confirm, err := p.read("Confirm password: ")
	if err != nil {
		pw.Close()
		return nil, err
	}
	defer confirm.Close()
	if !secretsEqual(pw, confirm) {
		pw.Close()
		return nil, ErrPasswordMismatch
	}
	return pw, nil
}

// Prompt implements folder.Prompt. An empty answer or end of input cancels.
func (p *passwordReader) Prompt(ctx context.Context, path string, attempt int) (*crypto.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, cferrors.Kind(cferrors.ErrPromptCancelled, err)
	}
	if attempt > 1 {
		fmt.Fprintln(p.prompts, "Invalid password or mount error, try again (empty input cancels).")
	}
	pw, err := p.read(fmt.Sprintf("Password for %s: ", path))
	if errors.Is(err, io.EOF) {
		return nil, cferrors.ErrPromptCancelled
	}
	if err != nil {
		return nil, err
	}
	if pw.Empty() {
		pw.Close()
		return nil, cferrors.ErrPromptCancelled
	}
	return pw, nil
}

func secretsEqual(a, b *crypto.Secret) bool {
	return subtle.ConstantTimeCompare(a.Bytes(), b.Bytes()) == 1
}

// passwordStrength is the zxcvbn score, 0 (weakest) to 4.
func passwordStrength(pw *crypto.Secret) int {
	return zxcvbn.PasswordStrength(string(pw.Bytes()), nil).Score
}
