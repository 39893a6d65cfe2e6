package session

import "fmt"

// State is the lifecycle state of a Session.
//
//	Idle -> KeyChecked -> MountPrepared -> Mounted -> Looping -> Running
//	any construction state -> Failed
//	Running -> Unmounting -> Cleaned -> Closed
type State int

const (
	Idle State = iota
	KeyChecked
	MountPrepared
	Mounted
	Looping
	Running
	Failed
	Unmounting
	Cleaned
	Closed
)

var stateNames = [...]string{
	Idle:          "idle",
	KeyChecked:    "key-checked",
	MountPrepared: "mount-prepared",
	Mounted:       "mounted",
	Looping:       "looping",
	Running:       "running",
	Failed:        "failed",
	Unmounting:    "unmounting",
	Cleaned:       "cleaned",
	Closed:        "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Error is a construction failure. Stage is the state that could not be
// reached; it is meant for logs; callers branch on the wrapped sentinel.
type Error struct {
	Stage State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("opening session (%s): %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
