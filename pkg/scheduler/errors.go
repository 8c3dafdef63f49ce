package scheduler

import "errors"

var (
	ErrAlreadyStarted      = errors.New("scheduler: start already called")
	ErrNotStarted          = errors.New("scheduler: start(n) has not been called yet")
	ErrKeyOutOfRange       = errors.New("scheduler: strategy key out of range")
	ErrAlreadyMinted       = errors.New("scheduler: strategy already minted")
	ErrBatchManagerSet     = errors.New("scheduler: batch manager already set for this strategy")
	ErrTimersAlreadyActive = errors.New("scheduler: start_timers already called")
)
