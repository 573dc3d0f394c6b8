package job

import "rmkernel/internal/sched"

// SpinWork returns a task body that retires n instructions per period.
// A preempted body picks up where it stopped, so the n instructions are
// spread across however many slices the scheduler gives it. done, if not
// nil, counts finished periods.
func SpinWork(n int, done *uint64) func(sched.Context) {
	return func(ctx sched.Context) {
		ctx.Spin(n)
		if done != nil {
			*done++
		}
	}
}

// LoopWork is the cooperative form of SpinWork for continue-mode tasks: it
// never returns and calls Complete after each period's n instructions.
func LoopWork(n int, done *uint64) func(sched.Context) {
	return func(ctx sched.Context) {
		for {
			ctx.Spin(n)
			if done != nil {
				*done++
			}
			ctx.Complete()
		}
	}
}

// CountWork keeps a running count in R4 across periods and preemptions and
// mirrors it into out after every increment. It is a continue-mode body.
func CountWork(steps int, out *uint32) func(sched.Context) {
	return func(ctx sched.Context) {
		for {
			for i := 0; i < steps; i++ {
				ctx.SetReg(4, ctx.Reg(4)+1)
				*out = ctx.Reg(4)
				ctx.Step()
			}
			ctx.Complete()
		}
	}
}
