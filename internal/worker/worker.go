// Package worker runs the blocking service loop of one mount on its own
// goroutine.
//
// State machine:
//
//	NotStarted -> Starting -> Running | StoppedClean
//	Running    -> StoppedClean | StoppedForced
//
// StoppedClean and StoppedForced are terminal. A Worker is never reused.
//
// Goroutines cannot be killed. A forced stop runs a caller-supplied action
// that makes the loop return (killing the filesystem process, a lazy
// unmount) and then stops waiting for it.
package worker

import (
	"fmt"
	"sync"
	"time"

	"cryptfolder/internal/log"
)

// State is the lifecycle state of a Worker.
type State int

const (
	NotStarted State = iota
	Starting
	Running
	StoppedClean
	StoppedForced
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case StoppedClean:
		return "stopped"
	case StoppedForced:
		return "stopped-forced"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StoppedClean || s == StoppedForced
}

// Worker owns one service loop goroutine.
type Worker struct {
	name string
	loop func() error

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

// New returns a worker for loop. name appears in logs.
func New(name string, loop func() error) *Worker {
	return &Worker{name: name, loop: loop, done: make(chan struct{})}
}

// Start launches the loop and returns immediately.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != NotStarted {
		return fmt.Errorf("worker %s: already started (state %s)", w.name, w.state)
	}
	w.state = Starting
	go w.run()
	return nil
}

func (w *Worker) run() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s: loop panicked: %v", w.name, r)
		}
		w.mu.Lock()
		w.err = err
		if !w.state.Terminal() {
			w.state = StoppedClean
		}
		w.mu.Unlock()
		close(w.done)
		log.Debug("mount loop returned", log.String("worker", w.name), log.Err(err))
	}()
	err = w.loop()
}

// ConfirmStartedWithin waits up to d and reports whether the loop is still
// alive. It returns false as soon as the loop exits.
func (w *Worker) ConfirmStartedWithin(d time.Duration) bool {
	w.mu.Lock()
	if w.state == NotStarted {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.done:
		return false
	case <-timer.C:
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Starting {
		w.state = Running
	}
	return w.state == Running
}

// IsRunning reports whether the loop goroutine is alive and not detached.
// Safe for concurrent use.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == Starting || w.state == Running
}

// Stop waits up to timeout for the loop to return on its own. The caller
// must already have asked the mount to end. If the loop is still alive
// after timeout, force is called (if non-nil), the worker is marked
// StoppedForced and the goroutine is abandoned after a further grace of
// timeout.
func (w *Worker) Stop(timeout time.Duration, force func() error) State {
	w.mu.Lock()
	st := w.state
	w.mu.Unlock()
	if st == NotStarted || st.Terminal() {
		return st
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return w.State()
	case <-timer.C:
	}

	w.mu.Lock()
	if w.state.Terminal() {
		st = w.state
		w.mu.Unlock()
		return st
	}
	w.state = StoppedForced
	w.mu.Unlock()

	log.Warn("mount loop did not stop in time, forcing", log.String("worker", w.name), log.Duration("timeout", timeout))
	if force != nil {
		if err := force(); err != nil {
			log.Warn("forced stop failed", log.String("worker", w.name), log.Err(err))
		}
	}

	grace := time.NewTimer(timeout)
	defer grace.Stop()
	select {
	case <-w.done:
	case <-grace.C:
		log.Error("mount loop abandoned", log.String("worker", w.name))
	}
	return StoppedForced
}

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err returns what the loop returned. It is nil until the loop exits.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed when the loop returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
