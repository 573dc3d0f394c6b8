package arch

import (
	"context"
	"fmt"
	"sync"
)

// Code addresses handed out by Link.
const (
	CodeBase   uint32 = 0x08000000
	codeStride uint32 = 0x100
	MaxCode           = 16
)

// Handler is an exception handler. It runs on the caller of Run in handler
// mode and may call Boundary to let more urgent exceptions nest.
type Handler func(c *Core)

// ThreadFunc is the body of linked thread-mode code.
type ThreadFunc func(t *Thread)

// trap carries a hard fault up to Run.
type trap struct{ err error }

// Core is a single-core ARMv7-M processor reduced to what a preemptive kernel
// touches: registers, a process stack in mapped RAM, the NVIC, SysTick,
// exception entry/return and linked thread code.
//
// Thread code runs on its own goroutine but only while the core hands it the
// baton for one instruction; everything else, handlers included, runs on the
// goroutine that called Run. At most one of them is ever executing.
type Core struct {
	bus     *Bus
	nvic    NVIC
	systick Timer

	regs   Regs
	psr    uint32
	psp    uint32
	mode   Mode
	cycles uint64

	vectors [NumExceptions]Handler
	code    [MaxCode]ThreadFunc
	ncode   int

	threads [MaxRegions]*gthread
	cur     int // region whose context is live in thread mode, -1 when idle
	yield   chan event
	done    chan struct{}
	close   sync.Once

	svc    uint8
	fault  error
	halted bool
}

func NewCore(bus *Bus) *Core {
	return &Core{
		bus:   bus,
		psr:   PSRThumb,
		cur:   -1,
		yield: make(chan event),
		done:  make(chan struct{}),
	}
}

func (c *Core) Bus() *Bus { return c.bus }

func (c *Core) NVIC() *NVIC { return &c.nvic }

func (c *Core) SysTick() *Timer { return &c.systick }

func (c *Core) Cycles() uint64 { return c.cycles }

func (c *Core) Mode() Mode { return c.mode }

func (c *Core) LR() uint32 { return c.regs[LR] }

// SetLR sets the link register; in a handler this selects the exception return.
func (c *Core) SetLR(v uint32) { c.regs[LR] = v }

func (c *Core) Reg(r int) uint32 {
	if r == SP {
		return c.psp
	}
	return c.regs[r]
}

// SVCNumber is the immediate of the supervisor call being handled.
func (c *Core) SVCNumber() uint8 { return c.svc }

// SetVector installs h for exception e.
func (c *Core) SetVector(e Exception, h Handler) { c.vectors[e] = h }

// SetPending pends exception e.
func (c *Core) SetPending(e Exception) { c.nvic.SetPending(e) }

// SetBASEPRI sets the masking level and returns the previous one.
func (c *Core) SetBASEPRI(p Priority) Priority {
	prev := c.nvic.basepri
	c.nvic.basepri = p
	return prev
}

// Link places fn in the code table and returns its entry address.
func (c *Core) Link(fn ThreadFunc) (uint32, error) {
	if c.ncode == MaxCode {
		return 0, ErrCodeFull
	}
	c.code[c.ncode] = fn
	addr := CodeBase + uint32(c.ncode)*codeStride
	c.ncode++
	return addr, nil
}

func (c *Core) codeAt(pc uint32) (ThreadFunc, bool) {
	if pc < CodeBase || (pc-CodeBase)%codeStride != 0 {
		return nil, false
	}
	i := int((pc - CodeBase) / codeStride)
	if i >= c.ncode {
		return nil, false
	}
	return c.code[i], true
}

// Halted returns the fault that stopped the core, or nil.
func (c *Core) Halted() error {
	if !c.halted {
		return nil
	}
	return c.fault
}

// Fault takes a hard fault: the HardFault vector runs once, the core halts
// and Run returns a *FaultError wrapping err. It does not return.
func (c *Core) Fault(err error) {
	if c.halted {
		panic(trap{c.fault})
	}
	c.fault = &FaultError{Cycle: c.cycles, PC: c.regs[PC], Err: err}
	c.halted = true
	if h := c.vectors[HardFault]; h != nil {
		h(c)
	}
	panic(trap{c.fault})
}

func (c *Core) load(addr uint32) uint32 {
	v, err := c.bus.Load(addr)
	if err != nil {
		c.Fault(err)
	}
	return v
}

func (c *Core) store(addr, v uint32) {
	if err := c.bus.Store(addr, v); err != nil {
		c.Fault(err)
	}
}

// Run executes until until reports true, ctx is done, or the core faults.
// until is evaluated at every instruction boundary in thread mode and after
// every exception return, so a handler can stop it before the core idles.
// Run can be called again to continue from where it stopped.
func (c *Core) Run(ctx context.Context, until func() bool) (err error) {
	if c.halted {
		return c.fault
	}

	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			err = t.err
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if until != nil && until() {
			return nil
		}

		c.takeExceptions()
		if until != nil && until() {
			return nil
		}
		if c.cur < 0 {
			if err := c.sleep(); err != nil {
				return err
			}
			continue
		}
		c.execute()
		c.advance(1)
	}
}

// Close releases the goroutines backing parked threads. The core cannot run
// afterwards.
func (c *Core) Close() {
	c.close.Do(func() {
		close(c.done)
		c.halted = true
		if c.fault == nil {
			c.fault = context.Canceled
		}
	})
}

// Boundary is an instruction boundary inside a handler: one cycle passes and
// any pending exception more urgent than the current execution priority is
// taken before the handler continues.
func (c *Core) Boundary() {
	if c.mode != ModeHandler {
		c.Fault(ErrNotHandlerMode)
	}
	c.advance(1)
	for {
		e, ok := c.nvic.next()
		if !ok {
			return
		}
		lr := c.regs[LR]
		c.regs[LR] = ExcReturnHandler
		c.activate(e)
		if c.regs[LR] != ExcReturnHandler {
			c.Fault(fmt.Errorf("%w: nested %s returned with 0x%08x", ErrExcReturn, e, c.regs[LR]))
		}
		c.regs[LR] = lr
	}
}

func (c *Core) advance(n uint64) {
	c.cycles += n
	if c.systick.advance(n) > 0 {
		c.nvic.SetPending(SysTick)
	}
}

// sleep is WFI: with nothing to run the core skips straight to the next
// SysTick wrap.
func (c *Core) sleep() error {
	if !c.systick.enabled {
		return ErrNoWakeSource
	}
	c.advance(c.systick.untilWrap())
	return nil
}

// takeExceptions enters handler mode for every pending exception that can
// preempt thread mode, tail-chaining them, then performs the exception return
// selected by LR.
func (c *Core) takeExceptions() {
	for {
		e, ok := c.nvic.next()
		if !ok {
			break
		}
		if c.mode == ModeThread {
			if c.cur >= 0 {
				c.stackFrame()
				c.regs[LR] = ExcReturnThreadPSP
			} else {
				c.regs[LR] = ExcReturnThreadMSP
			}
			c.mode = ModeHandler
		}
		c.activate(e)
	}
	if c.mode == ModeHandler {
		c.exceptionReturn()
	}
}

func (c *Core) activate(e Exception) {
	c.nvic.ClearPending(e)
	if !c.nvic.push(e) {
		c.Fault(ErrNesting)
	}
	h := c.vectors[e]
	if h == nil {
		c.Fault(fmt.Errorf("%w: %s", ErrNoHandler, e))
	}
	h(c)
	c.nvic.pop()
}

func (c *Core) exceptionReturn() {
	switch lr := c.regs[LR]; lr {
	case ExcReturnThreadPSP:
		r, ok := c.bus.Region(c.psp)
		if !ok {
			c.Fault(fmt.Errorf("%w: process stack 0x%08x", ErrBusFault, c.psp))
		}
		c.unstackFrame()
		c.mode = ModeThread
		c.cur = r
		c.bind(r)
	case ExcReturnThreadMSP:
		c.mode = ModeThread
		c.cur = -1
	default:
		c.Fault(fmt.Errorf("%w: 0x%08x", ErrExcReturn, lr))
	}
}
