package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"rmkernel/internal/arch"
	"rmkernel/internal/sched"
)

// Task control block addresses handed to the entry trampoline in R0.
const (
	TCBBase   uint32 = 0x10000000
	tcbStride uint32 = 0x40
)

// SVCYield is the supervisor call a task issues to end its period.
const SVCYield uint8 = 0

// Stats are per-slot counters kept by the handlers.
type Stats struct {
	Releases    uint64
	Dispatches  uint64
	Completions uint64
	Preemptions uint64
	Overruns    uint64
}

// state is everything the handlers share. Only guard.With hands it out.
type state struct {
	table         *sched.Table
	now           uint64 // scheduler ticks
	cycles        uint64 // core cycles accounted into now
	cyclesPerTick uint64
	tickless      bool
	live          int // slot whose context is on the CPU, -1 if none
	stats         [sched.MaxTasks]Stats
}

// Kernel is the rate-monotonic kernel booted on a simulated core.
type Kernel struct {
	cfg   sched.Config
	core  *arch.Core
	guard guard
	st    state

	slots [sched.MaxTasks]sched.Task
	tops  [sched.MaxTasks]uint32
	entry uint32

	// completion mailbox, one flag per slot, written by the task and
	// consumed by the SVCall handler
	yield [sched.MaxTasks]atomic.Bool

	events  chan sched.StatusEvent
	dropped atomic.Uint64
	closed  sync.Once
}

// New boots the kernel: it builds the task table in rate-monotonic order,
// maps every task stack, manufactures each initial frame, installs the
// exception vectors and starts SysTick. The first dispatch happens on the
// first Run.
func New(cfg sched.Config, tasks ...sched.Task) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracker, err := cfg.NewTracker()
	if err != nil {
		return nil, err
	}
	table, err := sched.NewTable(tracker, tasks...)
	if err != nil {
		return nil, err
	}

	bus := arch.NewBus()
	core := arch.NewCore(bus)
	k := &Kernel{
		cfg:    cfg,
		core:   core,
		events: make(chan sched.StatusEvent, cfg.EventBuffer),
	}
	k.st = state{
		table:         table,
		cyclesPerTick: uint64(cfg.CyclesPerTick),
		tickless:      cfg.TickMode == sched.TickTickless,
		live:          -1,
	}
	k.guard = guard{st: &k.st, ceiling: arch.Priority(cfg.Priorities.SysTick)}

	nvic := core.NVIC()
	nvic.SetPriority(arch.SysTick, arch.Priority(cfg.Priorities.SysTick))
	nvic.SetPriority(arch.SVCall, arch.Priority(cfg.Priorities.SVCall))
	nvic.SetPriority(arch.PendSV, arch.Priority(cfg.Priorities.PendSV))
	core.SetVector(arch.SysTick, k.sysTick)
	core.SetVector(arch.PendSV, k.pendSV)
	core.SetVector(arch.SVCall, k.svcall)
	core.SetVector(arch.HardFault, k.hardFault)

	if k.entry, err = core.Link(k.trampoline); err != nil {
		return nil, err
	}

	for i := 0; i < table.Len(); i++ {
		task, _ := table.Get(sched.ID(i))
		stack := task.Stack()
		if len(stack) < arch.FrameWords {
			return nil, fmt.Errorf("%w: %s has %d words", ErrStackTooSmall, task.Name(), len(stack))
		}
		r, err := bus.Map(stack)
		if err != nil {
			return nil, err
		}
		k.slots[i] = task
		k.tops[i] = r + uint32(len(stack))*4

		if err := task.Init(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInit, task.Name(), err)
		}
		sp, err := k.initialFrame(i)
		if err != nil {
			return nil, err
		}
		task.SetStackPointer(sp)
		task.SetState(sched.Ready)
	}

	table.Start(0)
	for i := 0; i < table.Len(); i++ {
		k.st.stats[i].Releases++
		k.emit(&k.st, sched.StatusRelease, i)
	}

	if err := core.SysTick().Configure(uint32(cfg.CyclesPerTick)); err != nil {
		return nil, err
	}
	core.SetPending(arch.PendSV)
	return k, nil
}

func tcbAddr(slot int) uint32 { return TCBBase + uint32(slot)*tcbStride }

func (k *Kernel) slotOf(addr uint32) (int, bool) {
	if addr < TCBBase || (addr-TCBBase)%tcbStride != 0 {
		return -1, false
	}
	i := int((addr - TCBBase) / tcbStride)
	if i >= k.st.table.Len() {
		return -1, false
	}
	return i, true
}

func (k *Kernel) initialFrame(slot int) (uint32, error) {
	return arch.BuildInitialFrame(k.core.Bus(), k.tops[slot], arch.InitialFrame{
		Self:  tcbAddr(slot),
		Entry: k.entry,
		Exit:  arch.ExitTrap,
	})
}

// Run runs the board until ctx is done or the core faults.
func (k *Kernel) Run(ctx context.Context) error {
	return k.core.Run(ctx, nil)
}

// RunTicks runs until at least n more scheduler ticks have elapsed. In
// tickless mode the tick count advances in steps and may overshoot.
func (k *Kernel) RunTicks(ctx context.Context, n uint64) error {
	target := k.st.now + n
	return k.core.Run(ctx, func() bool { return k.st.now >= target })
}

// RunUntil runs until pred reports true. pred is evaluated at every
// instruction boundary in thread mode and after each exception return, with
// the core stopped.
func (k *Kernel) RunUntil(ctx context.Context, pred func() bool) error {
	return k.core.Run(ctx, pred)
}

// Close stops the core for good and closes the event stream. Call it after
// Run has returned.
func (k *Kernel) Close() {
	k.closed.Do(func() {
		k.core.Close()
		close(k.events)
	})
}

// Events is the status event stream. Events are dropped, and counted in
// Dropped, when the buffer is full.
func (k *Kernel) Events() <-chan sched.StatusEvent { return k.events }

func (k *Kernel) Dropped() uint64 { return k.dropped.Load() }

// Core exposes the simulated processor.
func (k *Kernel) Core() *arch.Core { return k.core }

// Now is the scheduler tick count.
func (k *Kernel) Now() uint64 { return k.st.now }

// Len is the number of task slots.
func (k *Kernel) Len() int { return k.st.table.Len() }

// Task returns the task in slot i.
func (k *Kernel) Task(i int) (sched.Task, bool) { return k.st.table.Get(sched.ID(i)) }

// Stats returns the counters of slot i.
func (k *Kernel) Stats(i int) Stats {
	if i < 0 || i >= k.st.table.Len() {
		return Stats{}
	}
	return k.st.stats[i]
}

// Names lists task names in slot order.
func (k *Kernel) Names() []string {
	out := make([]string, k.st.table.Len())
	for i := range out {
		out[i] = k.slots[i].Name()
	}
	return out
}

// Running returns how many slots are Running.
func (k *Kernel) Running() int { return k.st.table.Count(sched.Running) }

func (k *Kernel) emit(s *state, kind sched.StatusKind, slot int) {
	k.emitSkipped(s, kind, slot, 0)
}

func (k *Kernel) emitSkipped(s *state, kind sched.StatusKind, slot int, skipped uint64) {
	ev := sched.StatusEvent{
		Tick:    s.now,
		Cycle:   k.core.Cycles(),
		Kind:    kind,
		Slot:    slot,
		Skipped: skipped,
	}
	if slot >= 0 {
		ev.Period = k.slots[slot].Period()
		ev.State = k.slots[slot].State()
	}
	select {
	case k.events <- ev:
	default:
		k.dropped.Add(1)
	}
}
