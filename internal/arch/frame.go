package arch

import "fmt"

// FrameLayoutVersion identifies the stacked context layout below. The initial
// frame builder, SaveContext/RestoreContext and the core's exception
// entry/return all index frames through these constants and nothing else.
//
//	low address  sp+0x00  R4 .. R11      software frame (PendSV)
//	             sp+0x20  EXC_RETURN
//	             sp+0x24  R0 R1 R2 R3    hardware frame (exception entry)
//	             sp+0x34  R12 LR PC xPSR
//	high address sp+0x44  (previous stack contents)
const FrameLayoutVersion = 1

// Software frame slots, pushed by the pend-switch handler.
const (
	SwR4 = iota
	SwR5
	SwR6
	SwR7
	SwR8
	SwR9
	SwR10
	SwR11
	SwExcReturn
	SWFrameWords
)

// Hardware frame slots, pushed by the core on exception entry.
const (
	HwR0 = iota
	HwR1
	HwR2
	HwR3
	HwR12
	HwLR
	HwPC
	HwPSR
	HWFrameWords
)

const (
	FrameWords = SWFrameWords + HWFrameWords
	FrameBytes = FrameWords * 4
)

// hwFrameRegs lists the register stored in each hardware slot up to HwPC.
var hwFrameRegs = [HwPSR]int{R0, R1, R2, R3, R12, LR, PC}

// Frame is a decoded copy of a stacked context.
type Frame struct {
	SP        uint32
	R         [13]uint32 // R0..R12
	LR        uint32
	PC        uint32
	PSR       uint32
	ExcReturn uint32
}

// InitialFrame describes the first continuation of a task.
type InitialFrame struct {
	Self  uint32 // R0: handed to the entry function to find its task
	Entry uint32 // PC
	Exit  uint32 // LR: where the entry function would return to
}

// BuildInitialFrame manufactures a full frame just below top so that the first
// dispatch of a task restores exactly like a task that was suspended before.
// The hardware half is kept 8-byte aligned. It returns the saved stack
// pointer to record in the task's control block.
func BuildInitialFrame(mem Memory, top uint32, f InitialFrame) (uint32, error) {
	hw := (top - HWFrameWords*4) &^ 7
	sp := hw - SWFrameWords*4

	var words [FrameWords]uint32
	words[SwExcReturn] = ExcReturnThreadPSP
	words[SWFrameWords+HwR0] = f.Self
	words[SWFrameWords+HwLR] = f.Exit
	words[SWFrameWords+HwPC] = f.Entry &^ 1
	words[SWFrameWords+HwPSR] = PSRThumb

	for i, w := range words {
		if err := mem.Store(sp+uint32(i)*4, w); err != nil {
			return 0, fmt.Errorf("initial frame: %w", err)
		}
	}
	return sp, nil
}

// ReadFrame decodes the full frame saved at sp.
func ReadFrame(mem Memory, sp uint32) (Frame, error) {
	var words [FrameWords]uint32
	for i := range words {
		w, err := mem.Load(sp + uint32(i)*4)
		if err != nil {
			return Frame{}, err
		}
		words[i] = w
	}

	f := Frame{SP: sp, ExcReturn: words[SwExcReturn]}
	for i := 0; i < SwExcReturn; i++ {
		f.R[R4+i] = words[SwR4+i]
	}
	hw := words[SWFrameWords:]
	f.R[R0], f.R[R1], f.R[R2], f.R[R3] = hw[HwR0], hw[HwR1], hw[HwR2], hw[HwR3]
	f.R[R12] = hw[HwR12]
	f.LR = hw[HwLR]
	f.PC = hw[HwPC]
	f.PSR = hw[HwPSR]
	return f, nil
}

// SaveContext pushes the software half of the outgoing context below the
// hardware frame on the process stack and returns the resulting stack pointer.
// It must run in handler mode after an exception taken from a task.
func SaveContext(c *Core) uint32 {
	if c.mode != ModeHandler {
		c.Fault(ErrNotHandlerMode)
	}
	sp := c.psp - SWFrameWords*4
	for i := 0; i < SwExcReturn; i++ {
		c.store(sp+uint32(SwR4+i)*4, c.regs[R4+i])
	}
	c.store(sp+SwExcReturn*4, c.regs[LR])
	c.psp = sp
	return sp
}

// RestoreContext pops the software half saved at sp into the register file
// and leaves the process stack pointing at the hardware frame, ready for the
// exception return. A frame whose EXC_RETURN slot is not a thread-mode
// process-stack marker is corrupt and traps.
func RestoreContext(c *Core, sp uint32) {
	if c.mode != ModeHandler {
		c.Fault(ErrNotHandlerMode)
	}
	exc := c.load(sp + SwExcReturn*4)
	if exc != ExcReturnThreadPSP {
		c.Fault(fmt.Errorf("%w: EXC_RETURN 0x%08x at 0x%08x", ErrFrameCorrupt, exc, sp))
	}
	for i := 0; i < SwExcReturn; i++ {
		c.regs[R4+i] = c.load(sp + uint32(SwR4+i)*4)
	}
	c.regs[LR] = exc
	c.psp = sp + SWFrameWords*4
}

// stackFrame is the hardware half of exception entry from a task.
func (c *Core) stackFrame() {
	sp := c.psp - HWFrameWords*4
	for i, r := range hwFrameRegs {
		c.store(sp+uint32(i)*4, c.regs[r])
	}
	c.store(sp+HwPSR*4, c.psr)
	c.psp = sp
}

// unstackFrame is the hardware half of exception return to a task.
func (c *Core) unstackFrame() {
	sp := c.psp
	for i, r := range hwFrameRegs {
		c.regs[r] = c.load(sp + uint32(i)*4)
	}
	c.psr = c.load(sp + HwPSR*4)
	if c.psr&PSRThumb == 0 {
		c.Fault(fmt.Errorf("%w: xPSR 0x%08x without Thumb bit", ErrFrameCorrupt, c.psr))
	}
	c.psp = sp + HWFrameWords*4
}
