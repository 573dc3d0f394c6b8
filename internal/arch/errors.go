package arch

import (
	"errors"
	"fmt"
)

var (
	ErrBusFault       = errors.New("arch: bus fault")
	ErrUnaligned      = errors.New("arch: unaligned access")
	ErrTooManyRegions = errors.New("arch: no free memory region")
	ErrEmptyRegion    = errors.New("arch: empty memory region")
	ErrCodeFull       = errors.New("arch: code table full")
	ErrExcReturn      = errors.New("arch: invalid EXC_RETURN")
	ErrFrameCorrupt   = errors.New("arch: corrupt context frame")
	ErrBadPC          = errors.New("arch: return address is not a continuation")
	ErrNoHandler      = errors.New("arch: no handler installed")
	ErrThreadReturned = errors.New("arch: thread returned from its entry function")
	ErrThreadPanic    = errors.New("arch: thread panicked")
	ErrNoWakeSource   = errors.New("arch: wait for interrupt with no wake source")
	ErrNotHandlerMode = errors.New("arch: operation requires handler mode")
	ErrBadReload      = errors.New("arch: systick reload out of range")
	ErrSVCMasked      = errors.New("arch: supervisor call while SVCall is masked")
	ErrNesting        = errors.New("arch: exception nesting too deep")
)

// FaultError is returned by Core.Run once the core has taken a hard fault.
type FaultError struct {
	Cycle uint64
	PC    uint32
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("hard fault at cycle %d (pc=0x%08x): %v", e.Cycle, e.PC, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
