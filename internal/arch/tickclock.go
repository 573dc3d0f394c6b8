package arch

import "sync/atomic"

// MaxReload is the largest period the 24-bit SysTick counter can hold.
const MaxReload = 1<<24 - 1

// Timer is the core's SysTick down-counter. It is clocked by the core cycle
// counter rather than wall time so every run is deterministic. Reload is the
// full period in cycles.
type Timer struct {
	enabled   bool
	reload    uint32
	current   uint32
	elapsed   uint64
	countFlag bool
	count     atomic.Uint64
}

// Configure (re)starts the counter with a period of reload cycles. The
// running count restarts; cycles already accumulated for Elapsed are kept.
func (s *Timer) Configure(reload uint32) error {
	if reload == 0 || reload > MaxReload {
		return ErrBadReload
	}
	s.reload = reload
	s.current = reload
	s.countFlag = false
	s.enabled = true
	return nil
}

func (s *Timer) Enabled() bool { return s.enabled }

func (s *Timer) Reload() uint32 { return s.reload }

// Current returns the cycles left before the next wrap.
func (s *Timer) Current() uint32 { return s.current }

// Elapsed returns the cycles counted since the previous call.
func (s *Timer) Elapsed() uint64 {
	e := s.elapsed
	s.elapsed = 0
	return e
}

// CountFlag reports whether the counter wrapped since the last read, and
// clears the flag like a read of SYST_CSR does.
func (s *Timer) CountFlag() bool {
	f := s.countFlag
	s.countFlag = false
	return f
}

// Count returns the number of wraps since boot.
func (s *Timer) Count() uint64 {
	return s.count.Load()
}

func (s *Timer) untilWrap() uint64 {
	return uint64(s.current)
}

// advance runs the counter for n cycles and returns how many times it wrapped.
func (s *Timer) advance(n uint64) uint64 {
	if !s.enabled || n == 0 {
		return 0
	}
	s.elapsed += n
	if uint64(s.current) > n {
		s.current -= uint32(n)
		return 0
	}

	n -= uint64(s.current)
	wraps := 1 + n/uint64(s.reload)
	s.current = s.reload - uint32(n%uint64(s.reload))
	s.countFlag = true
	s.count.Add(wraps)
	return wraps
}
