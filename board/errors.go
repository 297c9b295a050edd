package board

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Board operation matches exactly one
// of these with errors.Is.
var (
	ErrFetch  = errors.New("board: fetch failed")
	ErrCreate = errors.New("board: create failed")
	ErrMove   = errors.New("board: move failed")
	ErrEdit   = errors.New("board: edit failed")
	ErrDelete = errors.New("board: delete failed")
)

// Causes raised by the board itself, before any store call.
var (
	ErrNoSession    = errors.New("board: no active session")
	ErrClosed       = errors.New("board: closed")
	ErrTaskNotFound = errors.New("board: task not found")
	ErrTaskPending  = errors.New("board: task is not saved yet")
	ErrWrongSource  = errors.New("board: task is not in the source category")
)

// OpError wraps the cause of a failed board operation with its kind.
type OpError struct {
	Kind   error
	TaskID string
	Err    error
}

func (e *OpError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: task %s: %v", e.Kind, e.TaskID, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func opError(kind error, taskID string, err error) *OpError {
	return &OpError{Kind: kind, TaskID: taskID, Err: err}
}
