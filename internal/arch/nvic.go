package arch

// Exception numbers as laid out in the ARMv7-M vector table.
type Exception uint8

const (
	Reset     Exception = 1
	NMI       Exception = 2
	HardFault Exception = 3
	SVCall    Exception = 11
	PendSV    Exception = 14
	SysTick   Exception = 15

	NumExceptions = 16
)

func (e Exception) String() string {
	switch e {
	case Reset:
		return "Reset"
	case NMI:
		return "NMI"
	case HardFault:
		return "HardFault"
	case SVCall:
		return "SVCall"
	case PendSV:
		return "PendSV"
	case SysTick:
		return "SysTick"
	default:
		return "Exception"
	}
}

// Priority follows the ARMv7-M convention: numerically lower is more urgent.
// Zero in BASEPRI means "no masking".
type Priority uint8

// MaxNesting bounds the active exception stack.
const MaxNesting = 8

// threadPriority is the execution priority of thread mode with nothing
// active or masked; it is below every configurable priority.
const threadPriority = 256

// NVIC keeps exception priorities, the pending set, the active stack and
// BASEPRI. Only the system exceptions the kernel uses are modelled.
type NVIC struct {
	prio    [NumExceptions]Priority
	pending uint32
	active  [MaxNesting]Exception
	depth   int
	basepri Priority
}

func (n *NVIC) SetPriority(e Exception, p Priority) { n.prio[e] = p }

func (n *NVIC) Priority(e Exception) Priority { return n.prio[e] }

// SetPending marks e pending, like writing ICSR.PENDSVSET for PendSV.
func (n *NVIC) SetPending(e Exception) { n.pending |= 1 << e }

func (n *NVIC) ClearPending(e Exception) { n.pending &^= 1 << e }

func (n *NVIC) IsPending(e Exception) bool { return n.pending&(1<<e) != 0 }

// Depth is the number of nested active exceptions.
func (n *NVIC) Depth() int { return n.depth }

// BASEPRI returns the current masking level.
func (n *NVIC) BASEPRI() Priority { return n.basepri }

// ExecutionPriority is the boosted priority the core currently runs at.
func (n *NVIC) ExecutionPriority() int {
	p := threadPriority
	for i := 0; i < n.depth; i++ {
		if q := int(n.prio[n.active[i]]); q < p {
			p = q
		}
	}
	if n.basepri != 0 && int(n.basepri) < p {
		p = int(n.basepri)
	}
	return p
}

// next picks the pending exception that may preempt the current execution
// priority. Equal priorities resolve to the lower exception number.
func (n *NVIC) next() (Exception, bool) {
	if n.pending == 0 {
		return 0, false
	}
	best, found := Exception(0), false
	bestPrio := n.ExecutionPriority()
	for e := Exception(0); e < NumExceptions; e++ {
		if !n.IsPending(e) {
			continue
		}
		if p := int(n.prio[e]); p < bestPrio {
			best, bestPrio, found = e, p, true
		}
	}
	return best, found
}

func (n *NVIC) push(e Exception) bool {
	if n.depth == MaxNesting {
		return false
	}
	n.active[n.depth] = e
	n.depth++
	return true
}

func (n *NVIC) pop() {
	if n.depth > 0 {
		n.depth--
	}
}
