package kernel

import (
	"fmt"

	"rmkernel/internal/arch"
	"rmkernel/internal/sched"
)

// taskContext is the sched.Context a task body runs with.
type taskContext struct {
	k    *Kernel
	t    *arch.Thread
	slot int
}

func (x *taskContext) Step() { x.t.Step() }

func (x *taskContext) Spin(n int) { x.t.Steps(n) }

func (x *taskContext) Reg(r int) uint32 { return x.t.Reg(r) }

func (x *taskContext) SetReg(r int, v uint32) { x.t.SetReg(r, v) }

func (x *taskContext) Now() uint64 { return x.k.st.now }

// Complete posts the completion request for this slot and traps into the
// kernel with SVC #0.
func (x *taskContext) Complete() {
	x.k.yield[x.slot].Store(true)
	x.t.SVC(SVCYield)
}

// trampoline is the entry every initial frame points at. It finds its task
// from the control block address in R0 and runs it period after period.
func (k *Kernel) trampoline(t *arch.Thread) {
	slot, ok := k.slotOf(t.Reg(arch.R0))
	if !ok {
		panic(fmt.Errorf("%w: r0=0x%08x", ErrBadTCB, t.Reg(arch.R0)))
	}
	task := k.slots[slot]
	ctx := &taskContext{k: k, t: t, slot: slot}
	for {
		task.Run(ctx)
		ctx.Complete()
	}
}

var _ sched.Context = (*taskContext)(nil)
