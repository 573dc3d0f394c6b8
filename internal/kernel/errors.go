package kernel

import "errors"

var (
	ErrStateReentered = errors.New("kernel: scheduler state re-entered")
	ErrBadSVC         = errors.New("kernel: unknown supervisor call")
	ErrSpuriousYield  = errors.New("kernel: completion without a posted request")
	ErrStackTooSmall  = errors.New("kernel: task stack smaller than a context frame")
	ErrBadTCB         = errors.New("kernel: entry argument is not a task control block")
	ErrInit           = errors.New("kernel: task init failed")
)
