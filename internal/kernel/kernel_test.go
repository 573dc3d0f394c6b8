package kernel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rmkernel/internal/arch"
	"rmkernel/internal/job"
	"rmkernel/internal/sched"
)

func testConfig(tickMode, release string) sched.Config {
	cfg := sched.DefaultConfig()
	cfg.CyclesPerTick = 100
	cfg.TickMode = tickMode
	cfg.Release = release
	cfg.EventBuffer = 8192
	cfg.Tasks = nil
	return cfg
}

type scenario struct {
	k    *Kernel
	done [3]uint64 // a, b, c
}

// newScenario boots three busy tasks with periods 5, 7 and 13, registered
// out of priority order.
func newScenario(t *testing.T, cfg sched.Config) *scenario {
	t.Helper()
	s := &scenario{}
	c := sched.NewTask("c", 13, job.SpinWork(200, &s.done[2]))
	a := sched.NewTask("a", 5, job.SpinWork(100, &s.done[0]))
	b := sched.NewTask("b", 7, job.SpinWork(100, &s.done[1]))
	k, err := New(cfg, c, a, b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.k = k
	t.Cleanup(k.Close)
	return s
}

func modes() []struct{ tick, release string } {
	var out []struct{ tick, release string }
	for _, tick := range []string{sched.TickFixed, sched.TickTickless} {
		for _, rel := range []string{sched.ReleaseQueueName, sched.ReleaseCountdownName} {
			out = append(out, struct{ tick, release string }{tick, rel})
		}
	}
	return out
}

func TestRateMonotonicSchedule(t *testing.T) {
	for _, m := range modes() {
		t.Run(fmt.Sprintf("%s/%s", m.tick, m.release), func(t *testing.T) {
			s := newScenario(t, testConfig(m.tick, m.release))
			k := s.k

			if names := k.Names(); names[0] != "a" || names[1] != "b" || names[2] != "c" {
				t.Fatalf("slot order %v, want [a b c]", names)
			}
			if err := k.RunTicks(context.Background(), 35); err != nil {
				t.Fatalf("RunTicks: %v", err)
			}
			if k.Now() != 35 {
				t.Errorf("stopped at tick %d, want 35", k.Now())
			}

			wantReleases := [3]uint64{8, 6, 3}
			wantDone := [3]uint64{7, 5, 3}
			for i := 0; i < 3; i++ {
				st := k.Stats(i)
				if st.Releases != wantReleases[i] {
					t.Errorf("%s released %d times, want %d", k.Names()[i], st.Releases, wantReleases[i])
				}
				if st.Completions != wantDone[i] || s.done[i] != wantDone[i] {
					t.Errorf("%s completed %d (body %d), want %d", k.Names()[i], st.Completions, s.done[i], wantDone[i])
				}
				if st.Overruns != 0 {
					t.Errorf("%s overran %d times", k.Names()[i], st.Overruns)
				}
			}
			if k.Stats(2).Preemptions == 0 {
				t.Error("c was never preempted")
			}
			if k.Stats(0).Preemptions != 0 {
				t.Errorf("a was preempted %d times", k.Stats(0).Preemptions)
			}

			// a was released at 35 and outranks everything
			if task, _ := k.Task(0); task.State() != sched.Running {
				t.Errorf("a is %s at tick 35", task.State())
			}
		})
	}
}

func TestHighestRateRunsFirst(t *testing.T) {
	s := newScenario(t, testConfig(sched.TickFixed, sched.ReleaseQueueName))
	k := s.k
	if err := k.RunTicks(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	// a finished first, b has the CPU, c waits
	if s.done[0] != 1 || s.done[1] != 0 || s.done[2] != 0 {
		t.Fatalf("completions after two ticks %v", s.done)
	}
	if b, _ := k.Task(1); b.State() != sched.Running {
		t.Fatalf("b is %s at tick 2", b.State())
	}
	if err := k.RunTicks(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	a, _ := k.Task(0)
	if a.State() != sched.Running && s.done[0] < 2 {
		t.Errorf("a is %s with %d completions at tick 5", a.State(), s.done[0])
	}
	if s.done[1] != 1 || s.done[2] != 1 {
		t.Errorf("completions at tick 5 %v", s.done)
	}
}

func TestAtMostOneRunning(t *testing.T) {
	s := newScenario(t, testConfig(sched.TickFixed, sched.ReleaseQueueName))
	k := s.k
	worst := 0
	err := k.RunUntil(context.Background(), func() bool {
		if n := k.Running(); n > worst {
			worst = n
		}
		return k.Now() >= 91
	})
	if err != nil {
		t.Fatal(err)
	}
	if worst != 1 {
		t.Errorf("up to %d tasks Running at once", worst)
	}
}

func TestEventStreamFollowsStateCycle(t *testing.T) {
	s := newScenario(t, testConfig(sched.TickTickless, sched.ReleaseQueueName))
	k := s.k
	if err := k.RunTicks(context.Background(), 91); err != nil {
		t.Fatal(err)
	}
	k.Close()
	if k.Dropped() != 0 {
		t.Fatalf("%d events dropped", k.Dropped())
	}

	allowed := map[sched.StatusKind][]sched.StatusKind{
		sched.StatusRelease:  {sched.StatusDone},
		sched.StatusDispatch: {sched.StatusRelease},
		sched.StatusPreempt:  {sched.StatusDispatch, sched.StatusResume},
		sched.StatusResume:   {sched.StatusPreempt},
		sched.StatusDone:     {sched.StatusDispatch, sched.StatusResume},
	}
	var last [3]sched.StatusKind
	var seen [3]bool
	var released [3]uint64
	var lastTick uint64
	for ev := range k.Events() {
		if ev.Tick < lastTick {
			t.Fatalf("tick went back from %d to %d", lastTick, ev.Tick)
		}
		lastTick = ev.Tick
		if ev.Slot < 0 || ev.Kind == sched.StatusOverrun {
			continue
		}
		i := ev.Slot
		if ev.Kind == sched.StatusRelease && seen[i] {
			if gap := ev.Tick - released[i]; gap < uint64(ev.Period) {
				t.Fatalf("slot %d released %d ticks after its previous release", i, gap)
			}
			released[i] = ev.Tick
		}
		if !seen[i] {
			if ev.Kind != sched.StatusRelease {
				t.Fatalf("slot %d starts with %s", i, ev.Kind)
			}
			seen[i], last[i] = true, ev.Kind
			continue
		}
		ok := false
		for _, prev := range allowed[ev.Kind] {
			ok = ok || prev == last[i]
		}
		if !ok {
			t.Fatalf("slot %d: %s after %s at tick %d", i, ev.Kind, last[i], ev.Tick)
		}
		last[i] = ev.Kind
	}
}

func TestContextSurvivesPreemption(t *testing.T) {
	const steps = 300
	var count uint32
	var clobbers uint64
	counter := sched.NewLoopTask("counter", 10, job.CountWork(steps, &count))
	clobber := sched.NewTask("clobber", 2, func(ctx sched.Context) {
		for i := 0; i < 50; i++ {
			ctx.SetReg(arch.R4, 0xDEAD)
			ctx.Step()
		}
		clobbers++
	})
	k, err := New(testConfig(sched.TickFixed, sched.ReleaseQueueName), counter, clobber)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	if err := k.RunTicks(context.Background(), 100); err != nil {
		t.Fatal(err)
	}
	done := k.Stats(1).Completions
	if done < 9 {
		t.Fatalf("counter completed %d periods", done)
	}
	if k.Stats(1).Preemptions == 0 {
		t.Fatal("counter was never preempted")
	}
	if clobbers < 40 {
		t.Errorf("clobber ran %d times", clobbers)
	}
	if uint64(count) < done*steps || uint64(count) >= (done+1)*steps {
		t.Errorf("R4 counter %d after %d periods of %d steps", count, done, steps)
	}
}

func TestOverrunPolicies(t *testing.T) {
	for _, policy := range []string{"drop", "queue"} {
		t.Run(policy, func(t *testing.T) {
			cfg := testConfig(sched.TickFixed, sched.ReleaseQueueName)
			cfg.Overrun = policy
			var n uint64
			slow := sched.NewTask("slow", 2, job.SpinWork(500, &n))
			k, err := New(cfg, slow)
			if err != nil {
				t.Fatal(err)
			}
			defer k.Close()
			if err := k.RunTicks(context.Background(), 60); err != nil {
				t.Fatal(err)
			}

			st := k.Stats(0)
			if n < 10 {
				t.Fatalf("slow completed %d periods", n)
			}
			if policy == "drop" && st.Overruns == 0 {
				t.Error("no overruns counted")
			}
			if policy == "queue" && st.Overruns != 0 {
				t.Errorf("queue policy counted %d overruns", st.Overruns)
			}
			// queued releases never outnumber completions by more than the backlog
			if policy == "queue" && st.Releases < st.Completions {
				t.Errorf("releases %d < completions %d", st.Releases, st.Completions)
			}
		})
	}
}

type tinyTask struct {
	sched.TCB
	stack [arch.FrameWords - 1]uint32
}

func (t *tinyTask) Run(sched.Context) {}
func (t *tinyTask) Init() error       { return nil }
func (t *tinyTask) Stack() []uint32   { return t.stack[:] }

type brokenTask struct{ tinyTask }

func (t *brokenTask) Init() error     { return errors.New("no sensor") }
func (t *brokenTask) Stack() []uint32 { return make([]uint32, 64) }

func TestNewRejects(t *testing.T) {
	cfg := testConfig(sched.TickFixed, sched.ReleaseQueueName)
	tests := []struct {
		name  string
		cfg   sched.Config
		tasks []sched.Task
		want  error
	}{
		{"no tasks", cfg, nil, sched.ErrNoTasks},
		{"small stack", cfg, []sched.Task{&tinyTask{TCB: sched.NewTCB("tiny", 3, sched.Restart)}}, ErrStackTooSmall},
		{"init fails", cfg, []sched.Task{&brokenTask{tinyTask{TCB: sched.NewTCB("broken", 3, sched.Restart)}}}, ErrInit},
		{"bad priorities", func() sched.Config {
			c := cfg
			c.Priorities.PendSV = 0x20
			return c
		}(), []sched.Task{sched.NewTask("x", 1, func(sched.Context) {})}, sched.ErrPriorityOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := New(tt.cfg, tt.tasks...)
			if k != nil {
				k.Close()
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBootState(t *testing.T) {
	s := newScenario(t, testConfig(sched.TickFixed, sched.ReleaseQueueName))
	k := s.k
	for i := 0; i < k.Len(); i++ {
		task, _ := k.Task(i)
		if task.State() != sched.Ready {
			t.Errorf("slot %d is %s after boot", i, task.State())
		}
		f, err := arch.ReadFrame(k.Core().Bus(), task.StackPointer())
		if err != nil {
			t.Fatal(err)
		}
		if f.R[arch.R0] != tcbAddr(i) || f.LR != arch.ExitTrap || f.ExcReturn != arch.ExcReturnThreadPSP {
			t.Errorf("slot %d initial frame %+v", i, f)
		}
	}
	if !k.Core().NVIC().IsPending(arch.PendSV) {
		t.Error("first dispatch not pended")
	}
	if k.Core().SysTick().Reload() != 100 {
		t.Errorf("systick reload %d", k.Core().SysTick().Reload())
	}
}
