// internal/sched/schedulerEvent.go

package sched

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusRelease
	StatusDispatch
	StatusResume
	StatusPreempt
	StatusDone
	StatusTick
	StatusOverrun
	StatusFault
)

// StatusEvent is emitted from exception context on every scheduling action.
// It carries no pointers so emitting one never allocates.
type StatusEvent struct {
	Tick    uint64
	Cycle   uint64
	Kind    StatusKind
	Slot    int // -1 when no task is involved
	Period  uint32
	State   State
	Skipped uint64 // periods skipped, for StatusOverrun
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusRelease:
		return "Release"
	case StatusDispatch:
		return "Dispatch"
	case StatusResume:
		return "Resume"
	case StatusPreempt:
		return "Preempt"
	case StatusDone:
		return "Done"
	case StatusTick:
		return "Tick"
	case StatusOverrun:
		return "Overrun"
	case StatusFault:
		return "Fault"
	default:
		return "Unknown"
	}
}
