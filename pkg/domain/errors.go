package domain

import "errors"

// ErrRunNotFound is returned when a run id cannot be found in the snapshot store.
var ErrRunNotFound = errors.New("run not found")

// ErrNotResumable is returned when resume is attempted on a completed or failed snapshot.
var ErrNotResumable = errors.New("run is not resumable")

// ErrBranchTurnOutOfRange is returned when a branch targets a turn the source run never reached.
var ErrBranchTurnOutOfRange = errors.New("branch turn out of range")

// ErrInvalidTransition is returned when a status change violates the run state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUnknownModel is the fail-closed pricing error: a cost can never be
// recorded for a model the price table does not know.
var ErrUnknownModel = errors.New("unknown model identifier")
