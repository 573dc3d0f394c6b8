package arch

// Register indices into the live register file.
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
	NumRegs
)

// Regs is the live register file. SP is not kept here: the core tracks the
// process stack pointer separately and reports it through Reg(SP).
type Regs [NumRegs]uint32

// EXC_RETURN values understood by the exception return logic.
const (
	ExcReturnHandler   uint32 = 0xFFFFFFF1 // back to handler mode, main stack
	ExcReturnThreadMSP uint32 = 0xFFFFFFF9 // back to thread mode, main stack (idle)
	ExcReturnThreadPSP uint32 = 0xFFFFFFFD // back to thread mode, process stack (task)
)

// PSRThumb is the T bit of xPSR. It must be set in every stacked frame.
const PSRThumb uint32 = 0x01000000

// ExitTrap is the link register value given to a fresh task. Task entry
// functions never return; reaching it is a hard fault.
const ExitTrap uint32 = 0x080FFF00

// Mode is the processor execution mode.
type Mode uint8

const (
	ModeThread Mode = iota
	ModeHandler
)

func (m Mode) String() string {
	switch m {
	case ModeThread:
		return "Thread"
	case ModeHandler:
		return "Handler"
	default:
		return "Unknown"
	}
}
