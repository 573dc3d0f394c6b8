// Package tasks holds the board's application tasks: two sensor samplers and
// an LED strobe. Each owns its stack and its peripheral; the kernel sees only
// sched.Task.
package tasks

import (
	"errors"

	"rmkernel/internal/sched"
)

// Vec3 is one three-axis sample.
type Vec3 struct {
	X, Y, Z int16
}

// Accelerometer is the sampler's view of its sensor.
type Accelerometer interface {
	Accel() (Vec3, error)
}

// Gyroscope is the sampler's view of its sensor.
type Gyroscope interface {
	Gyro() (Vec3, error)
}

// LED is a single output pin.
type LED interface {
	High()
	Low()
}

var ErrNoDevice = errors.New("tasks: peripheral not attached")

const (
	AccelPeriod = 11
	AccelBufCap = 16
	GyroPeriod  = 5
	GyroBufCap  = 8
	LedPeriod   = 21
	LedCount    = 8
	LedDelay    = 10 // instructions between strobe steps

	readCost = 4 // instructions per sensor transfer
)

// ring is a fixed ring of samples over a caller-owned array.
type ring struct {
	buf  []Vec3
	head int
	n    int
}

func (r *ring) push(v Vec3) {
	r.buf[r.head] = v
	r.head++
	if r.head >= len(r.buf) {
		r.head = 0
	}
	if r.n < len(r.buf) {
		r.n++
	}
}

// latest returns the most recent sample.
func (r *ring) latest() (Vec3, bool) {
	if r.n == 0 {
		return Vec3{}, false
	}
	i := r.head - 1
	if i < 0 {
		i = len(r.buf) - 1
	}
	return r.buf[i], true
}

// Accel samples the accelerometer once per period into a 16-entry ring.
type Accel struct {
	sched.TCB
	stack [sched.StackWords]uint32
	dev   Accelerometer
	buf   [AccelBufCap]Vec3
	ring  ring
	reads uint64
	errs  uint64
}

func NewAccel(period uint32, dev Accelerometer) *Accel {
	a := &Accel{TCB: sched.NewTCB("accel", period, sched.Restart), dev: dev}
	a.ring.buf = a.buf[:]
	return a
}

func (a *Accel) Init() error {
	if a.dev == nil {
		return ErrNoDevice
	}
	return nil
}

func (a *Accel) Stack() []uint32 { return a.stack[:] }

func (a *Accel) Run(ctx sched.Context) {
	ctx.Spin(readCost)
	v, err := a.dev.Accel()
	if err != nil {
		a.errs++
		return
	}
	a.ring.push(v)
	a.reads++
}

// Latest returns the newest buffered sample.
func (a *Accel) Latest() (Vec3, bool) { return a.ring.latest() }

// Reads and Errors count successful and failed transfers.
func (a *Accel) Reads() uint64  { return a.reads }
func (a *Accel) Errors() uint64 { return a.errs }

// Gyro samples the gyroscope once per period into an 8-entry ring.
type Gyro struct {
	sched.TCB
	stack [sched.StackWords]uint32
	dev   Gyroscope
	buf   [GyroBufCap]Vec3
	ring  ring
	reads uint64
	errs  uint64
}

func NewGyro(period uint32, dev Gyroscope) *Gyro {
	g := &Gyro{TCB: sched.NewTCB("gyro", period, sched.Restart), dev: dev}
	g.ring.buf = g.buf[:]
	return g
}

func (g *Gyro) Init() error {
	if g.dev == nil {
		return ErrNoDevice
	}
	return nil
}

func (g *Gyro) Stack() []uint32 { return g.stack[:] }

func (g *Gyro) Run(ctx sched.Context) {
	ctx.Spin(readCost)
	v, err := g.dev.Gyro()
	if err != nil {
		g.errs++
		return
	}
	g.ring.push(v)
	g.reads++
}

func (g *Gyro) Latest() (Vec3, bool) { return g.ring.latest() }

func (g *Gyro) Reads() uint64  { return g.reads }
func (g *Gyro) Errors() uint64 { return g.errs }

// Led lights its LEDs in order and clears them in reverse, once per period.
// It is cooperative: Run never returns and completes each sweep itself.
type Led struct {
	sched.TCB
	stack  [sched.StackWords]uint32
	leds   [LedCount]LED
	delay  int
	sweeps uint64
}

func NewLed(period uint32, leds [LedCount]LED) *Led {
	return &Led{
		TCB:   sched.NewTCB("leds", period, sched.Continue),
		leds:  leds,
		delay: LedDelay,
	}
}

func (l *Led) Init() error {
	for _, p := range l.leds {
		if p == nil {
			return ErrNoDevice
		}
		p.Low()
	}
	return nil
}

func (l *Led) Stack() []uint32 { return l.stack[:] }

func (l *Led) Run(ctx sched.Context) {
	for {
		for _, p := range l.leds {
			p.High()
			ctx.Spin(l.delay)
		}
		for i := len(l.leds) - 1; i >= 0; i-- {
			l.leds[i].Low()
			ctx.Spin(l.delay)
		}
		l.sweeps++
		ctx.Complete()
	}
}

// Sweeps counts completed strobe sweeps.
func (l *Led) Sweeps() uint64 { return l.sweeps }
