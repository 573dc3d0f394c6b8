package sched

// Current returns the slot in Running.
func (t *Table) Current() (int, bool) {
	return t.find(Running)
}

// NextToRun returns the first slot, in priority order, that is Ready or
// Suspended.
func (t *Table) NextToRun() (int, bool) {
	return t.find(Ready, Suspended)
}

// Preempts reports whether a context switch should be requested after the
// slots in released became Ready: a released task has a strictly shorter
// period than the running one, or nothing is running.
func (t *Table) Preempts(released Mask) bool {
	best, found := uint32(0), false
	for i := 0; i < t.n; i++ {
		if !released.Has(i) || t.slots[i].State() != Ready {
			continue
		}
		if p := t.slots[i].Period(); !found || p < best {
			best, found = p, true
		}
	}
	if !found {
		return false
	}

	cur, ok := t.Pri(Current)
	if !ok {
		return true
	}
	return best < cur
}
