package sched

import "fmt"

// State is the scheduling state of a task slot.
type State uint8

const (
	PreInit   State = iota // not initialised; never eligible
	Ready                  // eligible; starts at its entry point
	Running                // owns the CPU
	Suspended              // preempted; has a saved continuation
	Done                   // finished this period; waits for its next release
)

func (s State) String() string {
	switch s {
	case PreInit:
		return "PreInit"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// ResumeMode says where a task continues after its next release.
type ResumeMode uint8

const (
	// Restart runs every period from the entry point on a fresh frame. Run
	// returns at the end of each period.
	Restart ResumeMode = iota
	// Continue resumes just past the completion call. Run loops forever and
	// calls Context.Complete once per period.
	Continue
)

// StackWords is the size of every task's private stack.
const StackWords = 128

// Context is what a task body sees of the processor while it runs.
type Context interface {
	// Step retires one instruction; the task may be preempted after it.
	Step()
	// Spin retires n instructions of busy work.
	Spin(n int)
	// Reg and SetReg access the task's register file, which is saved and
	// restored with the task across preemptions.
	Reg(r int) uint32
	SetReg(r int, v uint32)
	// Complete announces the end of this period's work. It returns when the
	// task is dispatched again after its next release.
	Complete()
	// Now is the scheduler tick count.
	Now() uint64
}

// Task is the capability every schedulable unit implements. Concrete tasks
// embed TCB for the bookkeeping half.
type Task interface {
	Name() string
	Run(ctx Context)
	Init() error
	Stack() []uint32
	Resume() ResumeMode

	StackPointer() uint32
	SetStackPointer(sp uint32)
	State() State
	SetState(s State)
	Period() uint32
}

// TCB is the per-task control block embedded by task implementations.
type TCB struct {
	name   string
	period uint32
	mode   ResumeMode
	state  State
	sp     uint32
}

// NewTCB returns a control block in PreInit.
func NewTCB(name string, period uint32, mode ResumeMode) TCB {
	return TCB{name: name, period: period, mode: mode}
}

func (t *TCB) Name() string              { return t.name }
func (t *TCB) Period() uint32            { return t.period }
func (t *TCB) Resume() ResumeMode        { return t.mode }
func (t *TCB) State() State              { return t.state }
func (t *TCB) SetState(s State)          { t.state = s }
func (t *TCB) StackPointer() uint32      { return t.sp }
func (t *TCB) SetStackPointer(sp uint32) { t.sp = sp }

func (t *TCB) String() string {
	return fmt.Sprintf("%s(period=%d, %s)", t.name, t.period, t.state)
}

// FuncTask is a task whose body is a plain function.
type FuncTask struct {
	TCB
	stack [StackWords]uint32
	work  func(ctx Context)
}

// NewTask creates a restart-mode task running work once per period.
func NewTask(name string, period uint32, work func(ctx Context)) *FuncTask {
	return &FuncTask{
		TCB:  NewTCB(name, period, Restart),
		work: work,
	}
}

// NewLoopTask creates a continue-mode task; work must loop forever and call
// ctx.Complete once per period.
func NewLoopTask(name string, period uint32, work func(ctx Context)) *FuncTask {
	return &FuncTask{
		TCB:  NewTCB(name, period, Continue),
		work: work,
	}
}

func (t *FuncTask) Run(ctx Context) { t.work(ctx) }
func (t *FuncTask) Init() error     { return nil }
func (t *FuncTask) Stack() []uint32 { return t.stack[:] }
