package kernel

import (
	"fmt"

	"rmkernel/internal/arch"
	"rmkernel/internal/sched"
)

// advanceClock folds the cycles SysTick counted since the last read into
// the tick count and returns how many ticks that added.
func (s *state) advanceClock(c *arch.Core) uint64 {
	s.cycles += c.SysTick().Elapsed()
	now := s.cycles / s.cyclesPerTick
	delta := now - s.now
	s.now = now
	return delta
}

// sysTick is the periodic tick. It advances the release tracker and asks for
// a switch when a released task outranks the running one. It never touches a
// task's registers.
func (k *Kernel) sysTick(c *arch.Core) {
	var preempt bool
	k.guard.With(c, func(s *state) {
		delta := s.advanceClock(c)
		released := s.table.Releases().Advance(s.now, delta)
		k.emit(s, sched.StatusTick, -1)
		k.released(c, s, released)
		preempt = s.table.Preempts(released)
		k.reprogram(c, s)
	})
	if preempt {
		c.SetPending(arch.PendSV)
	}
}

// pendSV performs the context switch: the outgoing context is pushed onto
// its own stack, the first Ready or Suspended slot is restored from its own,
// and the exception return resumes it. With nothing to run the core returns
// to the idle loop.
func (k *Kernel) pendSV(c *arch.Core) {
	c.Boundary()
	k.guard.With(c, func(s *state) {
		if s.live >= 0 && c.LR() == arch.ExcReturnThreadPSP {
			if k.slots[s.live].State() == sched.Running {
				// still the most urgent: nothing to switch
				if next, ok := s.table.NextToRun(); !ok || next > s.live {
					return
				}
			}
			k.save(c, s)
		}
		c.Boundary()

		next, ok := s.table.NextToRun()
		if !ok {
			c.SetLR(arch.ExcReturnThreadMSP)
			k.emit(s, sched.StatusIdle, -1)
			return
		}
		task := k.slots[next]
		kind := sched.StatusResume
		if task.State() == sched.Ready {
			kind = sched.StatusDispatch
			s.stats[next].Dispatches++
		}
		task.SetState(sched.Running)
		arch.RestoreContext(c, task.StackPointer())
		s.live = next
		k.emit(s, kind, next)
	})
}

// save stores the live context. A restart-mode task that is no longer
// Running has nothing worth keeping: its next period starts from a fresh
// frame.
func (k *Kernel) save(c *arch.Core, s *state) {
	i := s.live
	task := k.slots[i]
	s.live = -1

	running := task.State() == sched.Running
	if !running && task.Resume() == sched.Restart {
		return
	}
	task.SetStackPointer(arch.SaveContext(c))
	if running {
		task.SetState(sched.Suspended)
		s.stats[i].Preemptions++
		k.emit(s, sched.StatusPreempt, i)
	}
}

// svcall handles SVC #0: the calling task has posted its completion and
// yields the CPU until its next release.
func (k *Kernel) svcall(c *arch.Core) {
	if n := c.SVCNumber(); n != SVCYield {
		c.Fault(fmt.Errorf("%w: svc #%d", ErrBadSVC, n))
	}
	k.guard.With(c, func(s *state) {
		i, ok := s.table.Current()
		if !ok || !k.yield[i].CompareAndSwap(true, false) {
			c.Fault(ErrSpuriousYield)
		}
		s.table.SetState(sched.ID(i), sched.Done)
		s.stats[i].Completions++
		k.emit(s, sched.StatusDone, i)

		delta := s.advanceClock(c)
		releases := s.table.Releases()
		if skipped := releases.Complete(i, s.now); skipped > 0 {
			s.stats[i].Overruns += skipped
			k.emitSkipped(s, sched.StatusOverrun, i, skipped)
		}
		k.released(c, s, releases.Advance(s.now, delta))
		k.reprogram(c, s)
	})
	c.SetPending(arch.PendSV)
}

// hardFault is the trap handler. The scheduler state may be taken, so it
// only reports.
func (k *Kernel) hardFault(c *arch.Core) {
	k.emit(&k.st, sched.StatusFault, k.st.live)
}

// released books newly Ready slots and gives restart-mode tasks a fresh
// initial frame.
func (k *Kernel) released(c *arch.Core, s *state, m sched.Mask) {
	for i := 0; i < s.table.Len(); i++ {
		if !m.Has(i) {
			continue
		}
		task := k.slots[i]
		if task.Resume() == sched.Restart {
			sp, err := k.initialFrame(i)
			if err != nil {
				c.Fault(err)
			}
			task.SetStackPointer(sp)
		}
		s.stats[i].Releases++
		k.emit(s, sched.StatusRelease, i)
	}
}

// reprogram sets the next SysTick deadline in tickless mode: the earliest
// pending release, or the longest period the counter allows.
func (k *Kernel) reprogram(c *arch.Core, s *state) {
	if !s.tickless {
		return
	}
	st := c.SysTick()
	s.cycles += st.Elapsed()

	wait := uint64(arch.MaxReload)
	if at, ok := s.table.Releases().NextReleaseTime(); ok {
		deadline := at * s.cyclesPerTick
		switch {
		case deadline <= s.cycles:
			wait = 1
		case deadline-s.cycles < wait:
			wait = deadline - s.cycles
		}
	}
	if err := st.Configure(uint32(wait)); err != nil {
		c.Fault(err)
	}
}
