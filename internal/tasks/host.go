package tasks

import (
	"errors"
	"math"
)

var ErrSensor = errors.New("tasks: sensor transfer failed")

// SimAccel is a host accelerometer that reports a slow tilt.
type SimAccel struct {
	n uint32
	// FailEvery makes every n-th transfer fail; 0 never fails.
	FailEvery uint32
}

func (s *SimAccel) Accel() (Vec3, error) {
	s.n++
	if s.FailEvery != 0 && s.n%s.FailEvery == 0 {
		return Vec3{}, ErrSensor
	}
	a := float64(s.n) * 0.05
	return Vec3{
		X: int16(1000 * math.Sin(a)),
		Y: int16(1000 * math.Cos(a)),
		Z: 1000,
	}, nil
}

// SimGyro is a host gyroscope that reports a constant yaw rate.
type SimGyro struct {
	n         uint32
	FailEvery uint32
}

func (s *SimGyro) Gyro() (Vec3, error) {
	s.n++
	if s.FailEvery != 0 && s.n%s.FailEvery == 0 {
		return Vec3{}, ErrSensor
	}
	return Vec3{Z: int16(s.n % 360)}, nil
}

// Pin is a host LED that remembers its level and counts edges.
type Pin struct {
	high  bool
	edges uint64
}

func (p *Pin) High() {
	if !p.high {
		p.edges++
	}
	p.high = true
}

func (p *Pin) Low() {
	if p.high {
		p.edges++
	}
	p.high = false
}

func (p *Pin) IsHigh() bool  { return p.high }
func (p *Pin) Edges() uint64 { return p.edges }

// Bank is the board's row of LEDs.
type Bank [LedCount]Pin

// LEDs returns the bank as strobe outputs.
func (b *Bank) LEDs() [LedCount]LED {
	var out [LedCount]LED
	for i := range b {
		out[i] = &b[i]
	}
	return out
}

// Lit counts LEDs currently high.
func (b *Bank) Lit() int {
	n := 0
	for i := range b {
		if b[i].high {
			n++
		}
	}
	return n
}
