package sched

import "github.com/emirpasic/gods/trees/redblacktree"

// ReleaseStruct is the release bookkeeping of one slot. Released is false
// while the slot waits for the tick counter to reach Time.
type ReleaseStruct struct {
	Released bool
	Time     uint64
}

// OverrunPolicy decides what happens to releases that were missed because a
// task finished after its next release time had already passed.
type OverrunPolicy uint8

const (
	// OverrunQueue keeps every missed release; the task catches up back to back.
	OverrunQueue OverrunPolicy = iota
	// OverrunDrop skips all but the latest missed release.
	OverrunDrop
)

func (p OverrunPolicy) String() string {
	if p == OverrunDrop {
		return "drop"
	}
	return "queue"
}

// ReleaseTracker owns the mapping from scheduler ticks to the slots that
// become Ready. Every task starts released at boot.
type ReleaseTracker interface {
	// Start binds the tracker to t with every slot released at now.
	Start(t *Table, now uint64)
	// Advance moves the tracker to now, delta ticks after the previous call,
	// and makes every due slot Ready.
	Advance(now, delta uint64) Mask
	// SetNextRelease schedules the selected slot at now + period*ticksPerUnit.
	SetNextRelease(id TaskID, now uint64) bool
	// Complete is called when slot i finished its period at now and returns
	// how many periods were skipped. Trackers that reschedule on completion
	// do it here; the countdown reloads in Advance instead.
	Complete(i int, now uint64) uint64
	// NextToRelease is the waiting slot with the earliest release.
	NextToRelease() (int, bool)
	// NextReleaseTime is the earliest pending release, in ticks.
	NextReleaseTime() (uint64, bool)
}

// releaseKey orders the pending queue by time, then slot.
type releaseKey struct {
	time uint64
	slot int
}

func releaseCmp(a, b any) int {
	ka, kb := a.(releaseKey), b.(releaseKey)
	switch {
	case ka.time < kb.time:
		return -1
	case ka.time > kb.time:
		return 1
	case ka.slot < kb.slot:
		return -1
	case ka.slot > kb.slot:
		return 1
	default:
		return 0
	}
}

// ReleaseQueue is the discrete release queue: one ReleaseStruct per slot and
// a red-black tree of the unreleased ones ordered by release time. Each
// release is anchored to the previous release time, so periods do not drift
// with completion jitter.
type ReleaseQueue struct {
	table        *Table
	releases     [MaxTasks]ReleaseStruct
	pending      *redblacktree.Tree
	ticksPerUnit uint64
	overrun      OverrunPolicy
}

func NewReleaseQueue(ticksPerUnit uint32, overrun OverrunPolicy) *ReleaseQueue {
	if ticksPerUnit == 0 {
		ticksPerUnit = 1
	}
	return &ReleaseQueue{
		pending:      redblacktree.NewWith(releaseCmp),
		ticksPerUnit: uint64(ticksPerUnit),
		overrun:      overrun,
	}
}

func (q *ReleaseQueue) Start(t *Table, now uint64) {
	q.table = t
	q.pending.Clear()
	for i := range q.releases {
		q.releases[i] = ReleaseStruct{Released: true, Time: now}
	}
}

// Release returns the bookkeeping of slot i.
func (q *ReleaseQueue) Release(i int) (ReleaseStruct, bool) {
	if i < 0 || i >= q.table.n {
		return ReleaseStruct{}, false
	}
	return q.releases[i], true
}

func (q *ReleaseQueue) SetNextRelease(id TaskID, now uint64) bool {
	i, ok := q.table.resolve(id)
	if !ok {
		return false
	}
	r := &q.releases[i]
	if !r.Released {
		q.pending.Remove(releaseKey{r.Time, i})
	}
	r.Time = now + uint64(q.table.slots[i].Period())*q.ticksPerUnit
	r.Released = false
	q.pending.Put(releaseKey{r.Time, i}, i)
	return true
}

func (q *ReleaseQueue) NextToRelease() (int, bool) {
	node := q.pending.Left()
	if node == nil {
		return -1, false
	}
	return node.Value.(int), true
}

func (q *ReleaseQueue) NextReleaseTime() (uint64, bool) {
	node := q.pending.Left()
	if node == nil {
		return 0, false
	}
	return node.Key.(releaseKey).time, true
}

// ReleaseNext releases the earliest waiting slot, whatever its time.
func (q *ReleaseQueue) ReleaseNext() (int, bool) {
	i, ok := q.NextToRelease()
	if !ok {
		return -1, false
	}
	r := &q.releases[i]
	q.pending.Remove(releaseKey{r.Time, i})
	r.Released = true
	q.table.slots[i].SetState(Ready)
	return i, true
}

// Advance releases every slot whose time has been reached, earliest first.
func (q *ReleaseQueue) Advance(now, _ uint64) Mask {
	var m Mask
	for {
		at, ok := q.NextReleaseTime()
		if !ok || at > now {
			return m
		}
		i, _ := q.ReleaseNext()
		m.Set(i)
	}
}

func (q *ReleaseQueue) Complete(i int, now uint64) uint64 {
	if i < 0 || i >= q.table.n {
		return 0
	}
	period := uint64(q.table.slots[i].Period()) * q.ticksPerUnit
	anchor := q.releases[i].Time

	var skipped uint64
	if q.overrun == OverrunDrop && anchor+period < now {
		// boundaries anchor+period*k for k=1..missed have all passed; keep the last
		missed := (now - anchor) / period
		skipped = missed - 1
		anchor += period * skipped
	}
	q.SetNextRelease(ID(i), anchor)
	return skipped
}

// Countdown is the countdown-vector tracker: one signed countdown per slot,
// decreased by the elapsed ticks. A slot whose countdown has run out is
// released once it is observed Done, and its countdown restarts from a full
// period at that moment.
type Countdown struct {
	table        *Table
	left         [MaxTasks]int64
	ticksPerUnit int64
	now          uint64
}

func NewCountdown(ticksPerUnit uint32) *Countdown {
	if ticksPerUnit == 0 {
		ticksPerUnit = 1
	}
	return &Countdown{ticksPerUnit: int64(ticksPerUnit)}
}

func (c *Countdown) period(i int) int64 {
	return int64(c.table.slots[i].Period()) * c.ticksPerUnit
}

func (c *Countdown) Start(t *Table, now uint64) {
	c.table = t
	c.now = now
	for i := 0; i < t.n; i++ {
		c.left[i] = c.period(i)
	}
}

// Left returns the countdown of slot i.
func (c *Countdown) Left(i int) int64 { return c.left[i] }

func (c *Countdown) Advance(now, delta uint64) Mask {
	c.now = now
	var m Mask
	for i := 0; i < c.table.n; i++ {
		c.left[i] -= int64(delta)
		if c.left[i] <= 0 && c.table.slots[i].State() == Done {
			c.left[i] = c.period(i)
			c.table.slots[i].SetState(Ready)
			m.Set(i)
		}
	}
	return m
}

func (c *Countdown) SetNextRelease(id TaskID, now uint64) bool {
	i, ok := c.table.resolve(id)
	if !ok {
		return false
	}
	c.left[i] = int64(now) + c.period(i) - int64(c.now)
	return true
}

func (c *Countdown) Complete(i int, _ uint64) uint64 {
	if i < 0 || i >= c.table.n || c.left[i] >= 0 {
		return 0
	}
	return uint64(-c.left[i] / c.period(i))
}

func (c *Countdown) NextToRelease() (int, bool) {
	best := -1
	for i := 0; i < c.table.n; i++ {
		if c.table.slots[i].State() != Done {
			continue
		}
		if best < 0 || c.left[i] < c.left[best] {
			best = i
		}
	}
	return best, best >= 0
}

func (c *Countdown) NextReleaseTime() (uint64, bool) {
	i, ok := c.NextToRelease()
	if !ok {
		return 0, false
	}
	if c.left[i] <= 0 {
		return c.now, true
	}
	return c.now + uint64(c.left[i]), true
}
