package sched

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// MaxTasks is the size of the task table.
const MaxTasks = 8

type selKind uint8

const (
	selID selKind = iota
	selCurrent
	selNextRelease
	selNext
)

// TaskID selects a slot of the task table, either by index or by role.
type TaskID struct {
	kind selKind
	idx  int
}

var (
	// Current is the slot in Running.
	Current = TaskID{kind: selCurrent}
	// NextRelease is the waiting slot with the earliest pending release.
	NextRelease = TaskID{kind: selNextRelease}
	// Next is the slot NextToRun would dispatch.
	Next = TaskID{kind: selNext}
)

// ID selects slot i.
func ID(i int) TaskID { return TaskID{kind: selID, idx: i} }

func (id TaskID) String() string {
	switch id.kind {
	case selCurrent:
		return "Current"
	case selNextRelease:
		return "NextRelease"
	case selNext:
		return "Next"
	default:
		return fmt.Sprintf("ID(%d)", id.idx)
	}
}

// Mask is a set of slots.
type Mask uint32

func (m Mask) Has(i int) bool { return m&(1<<uint(i)) != 0 }

func (m *Mask) Set(i int) { *m |= 1 << uint(i) }

// Table is the fixed task table. Slot order is fixed at construction:
// ascending period, ties in registration order, so a lower slot index always
// means a higher rate-monotonic priority.
type Table struct {
	slots    [MaxTasks]Task
	n        int
	releases ReleaseTracker
}

// NewTable builds the table in rate-monotonic order. Tasks stay in PreInit
// until the kernel initialises them.
func NewTable(releases ReleaseTracker, tasks ...Task) (*Table, error) {
	switch {
	case len(tasks) == 0:
		return nil, ErrNoTasks
	case len(tasks) > MaxTasks:
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyTasks, len(tasks), MaxTasks)
	}

	t := &Table{releases: releases}
	for _, task := range tasks {
		if task == nil {
			return nil, ErrNilTask
		}
		if task.Period() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrZeroPeriod, task.Name())
		}
		t.slots[t.n] = task
		t.n++
	}
	// stable: equal periods keep registration order
	slices.SortStableFunc(t.slots[:t.n], func(a, b Task) bool {
		return a.Period() < b.Period()
	})
	return t, nil
}

// Start hands the table to its release tracker with every slot released at now.
func (t *Table) Start(now uint64) {
	t.releases.Start(t, now)
}

func (t *Table) Len() int { return t.n }

func (t *Table) Releases() ReleaseTracker { return t.releases }

// StateOf returns the state of slot i, PreInit for an invalid index.
func (t *Table) StateOf(i int) State {
	if i < 0 || i >= t.n {
		return PreInit
	}
	return t.slots[i].State()
}

// Count returns how many slots are in state s.
func (t *Table) Count(s State) int {
	n := 0
	for _, task := range t.slots[:t.n] {
		if task.State() == s {
			n++
		}
	}
	return n
}

func (t *Table) find(states ...State) (int, bool) {
	i := slices.IndexFunc(t.slots[:t.n], func(task Task) bool {
		return slices.Contains(states, task.State())
	})
	return i, i >= 0
}

func (t *Table) resolve(id TaskID) (int, bool) {
	switch id.kind {
	case selCurrent:
		return t.Current()
	case selNext:
		return t.NextToRun()
	case selNextRelease:
		return t.releases.NextToRelease()
	default:
		if id.idx < 0 || id.idx >= t.n {
			return -1, false
		}
		return id.idx, true
	}
}

// Slot resolves id to a slot index.
func (t *Table) Slot(id TaskID) (int, bool) { return t.resolve(id) }

// Get returns the selected task.
func (t *Table) Get(id TaskID) (Task, bool) {
	i, ok := t.resolve(id)
	if !ok {
		return nil, false
	}
	return t.slots[i], true
}

// Pri returns the selected task's period, its rate-monotonic priority key:
// smaller is more urgent.
func (t *Table) Pri(id TaskID) (uint32, bool) {
	i, ok := t.resolve(id)
	if !ok {
		return 0, false
	}
	return t.slots[i].Period(), true
}

// SetState moves the selected task to s. It reports false and changes
// nothing when the selector resolves to no slot.
func (t *Table) SetState(id TaskID, s State) bool {
	i, ok := t.resolve(id)
	if !ok {
		return false
	}
	t.slots[i].SetState(s)
	return true
}

// SetNextRelease schedules the selected slot's next release at
// now + period*ticksPerUnit.
func (t *Table) SetNextRelease(id TaskID, now uint64) bool {
	return t.releases.SetNextRelease(id, now)
}
