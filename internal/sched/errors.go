package sched

import "errors"

var (
	ErrNoTasks       = errors.New("sched: no tasks")
	ErrTooManyTasks  = errors.New("sched: task table full")
	ErrNilTask       = errors.New("sched: nil task")
	ErrZeroPeriod    = errors.New("sched: task period must be positive")
	ErrBadConfig     = errors.New("sched: invalid config")
	ErrPriorityOrder = errors.New("sched: SysTick must be more urgent than SVCall and PendSV")
)
