package arch

import (
	"fmt"
	"runtime"
)

type eventKind uint8

const (
	evStep eventKind = iota
	evSVC
	evReturn
	evPanic
)

type event struct {
	kind eventKind
	imm  uint8
	val  any
}

// gthread is the goroutine standing in for one continuation on a stack.
type gthread struct {
	fn      ThreadFunc
	pc      uint32 // PC at which the continuation is parked
	started bool
	killed  bool
	resume  chan struct{}
}

// Thread is the handle thread code uses to drive the core.
type Thread struct {
	c *Core
	g *gthread
}

// Step retires one instruction. Exceptions are taken between steps.
func (t *Thread) Step() {
	t.c.regs[PC] += 2
	t.send(event{kind: evStep})
	t.wait()
}

// Steps retires n instructions.
func (t *Thread) Steps(n int) {
	for i := 0; i < n; i++ {
		t.Step()
	}
}

// SVC executes a supervisor call. It returns once the thread is dispatched
// again.
func (t *Thread) SVC(imm uint8) {
	t.c.regs[PC] += 2
	t.send(event{kind: evSVC, imm: imm})
	t.wait()
}

// Reg reads register r.
func (t *Thread) Reg(r int) uint32 { return t.c.Reg(r) }

// SetReg writes a general purpose register. SP and PC are not writable from
// thread code.
func (t *Thread) SetReg(r int, v uint32) {
	if r == SP || r == PC {
		return
	}
	t.c.regs[r] = v
}

// Cycles returns the core cycle counter.
func (t *Thread) Cycles() uint64 { return t.c.cycles }

func (t *Thread) send(ev event) {
	if !t.c.post(ev) {
		runtime.Goexit()
	}
}

func (t *Thread) wait() {
	select {
	case <-t.g.resume:
		if t.g.killed {
			runtime.Goexit()
		}
	case <-t.c.done:
		runtime.Goexit()
	}
}

func (g *gthread) kill() {
	if !g.started {
		return
	}
	g.killed = true
	g.resume <- struct{}{}
}

// bind attaches the continuation found at PC to stack region r. A parked
// continuation at exactly that PC resumes; a linked entry address starts a
// fresh one and retires whatever was parked on the stack before.
func (c *Core) bind(r int) {
	pc := c.regs[PC]
	if g := c.threads[r]; g != nil && g.pc == pc {
		return
	}
	fn, ok := c.codeAt(pc)
	if !ok {
		c.Fault(fmt.Errorf("%w: 0x%08x", ErrBadPC, pc))
	}
	if g := c.threads[r]; g != nil {
		g.kill()
	}
	c.threads[r] = &gthread{fn: fn, pc: pc, resume: make(chan struct{})}
}

// execute hands the baton to the live thread for one instruction.
func (c *Core) execute() {
	g := c.threads[c.cur]
	if !g.started {
		g.started = true
		go c.threadMain(g)
	} else {
		g.resume <- struct{}{}
	}

	ev := <-c.yield
	g.pc = c.regs[PC]
	switch ev.kind {
	case evSVC:
		if int(c.nvic.prio[SVCall]) >= c.nvic.ExecutionPriority() {
			c.Fault(ErrSVCMasked)
		}
		c.svc = ev.imm
		c.nvic.SetPending(SVCall)
	case evReturn:
		c.regs[PC] = c.regs[LR]
		c.Fault(fmt.Errorf("%w: lr=0x%08x", ErrThreadReturned, c.regs[LR]))
	case evPanic:
		c.Fault(fmt.Errorf("%w: %v", ErrThreadPanic, ev.val))
	}
}

func (c *Core) threadMain(g *gthread) {
	t := &Thread{c: c, g: g}
	defer func() {
		if g.killed {
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		if r := recover(); r != nil {
			c.post(event{kind: evPanic, val: r})
			return
		}
		c.post(event{kind: evReturn})
	}()
	g.fn(t)
}

func (c *Core) post(ev event) bool {
	select {
	case c.yield <- ev:
		return true
	case <-c.done:
		return false
	}
}
