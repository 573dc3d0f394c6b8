package sched

import "testing"

func TestTCB(t *testing.T) {
	task := NewLoopTask("leds", 21, noop)
	if task.State() != PreInit {
		t.Errorf("new task in %s, want PreInit", task.State())
	}
	if task.Resume() != Continue {
		t.Error("loop task is not continue-mode")
	}
	if len(task.Stack()) != StackWords {
		t.Errorf("stack %d words, want %d", len(task.Stack()), StackWords)
	}
	task.SetStackPointer(0x20000100)
	task.SetState(Suspended)
	if task.StackPointer() != 0x20000100 || task.State() != Suspended {
		t.Errorf("TCB = %s sp=%#x", &task.TCB, task.StackPointer())
	}
	if got := task.TCB.String(); got != "leds(period=21, Suspended)" {
		t.Errorf("String = %q", got)
	}
	if NewTask("x", 1, noop).Resume() != Restart {
		t.Error("NewTask is not restart-mode")
	}
}

func TestStateStrings(t *testing.T) {
	for s, want := range map[State]string{
		PreInit: "PreInit", Ready: "Ready", Running: "Running",
		Suspended: "Suspended", Done: "Done", State(9): "Unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if StatusOverrun.String() != "Overrun" || StatusKind(99).String() != "Unknown" {
		t.Error("StatusKind strings")
	}
}
