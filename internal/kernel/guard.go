package kernel

import "rmkernel/internal/arch"

// guard is the single owner of the scheduler state. Every handler reaches the
// state through With, which raises BASEPRI to the ceiling (the SysTick
// priority) for the duration, so no handler that touches the state can nest
// into another one that holds it. Finding the state already taken means the
// ceiling is wrong; the core traps rather than continue.
type guard struct {
	st      *state
	ceiling arch.Priority
	taken   bool
}

func (g *guard) With(c *arch.Core, fn func(s *state)) {
	prev := c.NVIC().BASEPRI()
	p := g.ceiling
	if prev != 0 && prev < p {
		p = prev
	}
	c.SetBASEPRI(p)

	if g.taken {
		c.Fault(ErrStateReentered)
	}
	g.taken = true
	fn(g.st)
	g.taken = false

	c.SetBASEPRI(prev)
}
