package tasks

import (
	"errors"
	"fmt"

	"rmkernel/internal/job"
	"rmkernel/internal/sched"
)

// Task kinds accepted in a TaskConfig.
const (
	KindAccel = "accel"
	KindGyro  = "gyro"
	KindLed   = "led"
	KindBusy  = "busy"
)

var ErrUnknownKind = errors.New("tasks: unknown kind")

// Board is the simulated peripheral set the tasks run against.
type Board struct {
	Accel SimAccel
	Gyro  SimGyro
	Leds  Bank
}

// Build instantiates one task per config entry, in config order.
func (b *Board) Build(cfgs []sched.TaskConfig) ([]sched.Task, error) {
	out := make([]sched.Task, 0, len(cfgs))
	for _, tc := range cfgs {
		t, err := b.task(tc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *Board) task(tc sched.TaskConfig) (sched.Task, error) {
	switch tc.Kind {
	case KindAccel:
		return NewAccel(tc.Period, &b.Accel), nil
	case KindGyro:
		return NewGyro(tc.Period, &b.Gyro), nil
	case KindLed:
		return NewLed(tc.Period, b.Leds.LEDs()), nil
	case KindBusy:
		name := tc.Name
		if name == "" {
			name = KindBusy
		}
		return sched.NewTask(name, tc.Period, job.SpinWork(tc.Work, nil)), nil
	default:
		return nil, fmt.Errorf("%w %q (task %q)", ErrUnknownKind, tc.Kind, tc.Name)
	}
}
