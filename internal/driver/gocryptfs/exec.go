//go:build linux || darwin

package gocryptfs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"cryptfolder/internal/mountpath"
)

// runner runs a short-lived command to completion.
type runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) error
}

// mountProcess is a running foreground mount.
type mountProcess interface {
	// Wait yields the exit error once the process has ended.
	Wait() <-chan error
	Signal(sig os.Signal) error
	Kill() error
	Pid() int
}

// mountLauncher starts a long-lived mount process.
type mountLauncher interface {
	Launch(ctx context.Context, name string, args []string, stdin []byte) (mountProcess, error)
}

// waiter blocks until path shows up as a mount point or ctx ends.
type waiter func(ctx context.Context, path string) error

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, stdin []byte) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return &exitError{err: err, output: msg}
		}
		return err
	}
	return nil
}

type execLauncher struct{}

func (execLauncher) Launch(_ context.Context, name string, args []string, stdin []byte) (mountProcess, error) {
	// The process outlives Launch, so it is not bound to the context.
	cmd := exec.Command(name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	// Own process group: a Ctrl+C on the terminal must reach cryptfolder
	// only, which then unmounts in order.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p := &execProcess{cmd: cmd, done: make(chan error, 1)}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go func() {
		err := cmd.Wait()
		if err != nil {
			if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
				err = &exitError{err: err, output: msg}
			}
		}
		p.done <- err
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr lockedBuffer
	done   chan error
}

func (p *execProcess) Wait() <-chan error        { return p.done }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }
func (p *execProcess) Pid() int                   { return p.cmd.Process.Pid }

// lockedBuffer collects stderr written by exec's copy goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 4096 {
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// exitError keeps the tool's own message next to its exit status.
type exitError struct {
	err    error
	output string
}

func (e *exitError) Error() string { return fmt.Sprintf("%v: %s", e.err, e.output) }
func (e *exitError) Unwrap() error { return e.err }

const pollInterval = 50 * time.Millisecond

// pollMountTable waits for path to appear in the system mount table.
func pollMountTable(ctx context.Context, path string) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if ok, err := mountpath.IsMounted(path); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s did not appear as a mount: %w", path, ctx.Err())
		case <-t.C:
		}
	}
}
