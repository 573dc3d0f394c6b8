package tasks

import (
	"context"
	"errors"
	"testing"

	"rmkernel/internal/kernel"
	"rmkernel/internal/sched"
)

func TestBoardRunsDefaultTasks(t *testing.T) {
	cfg := sched.DefaultConfig()
	cfg.CyclesPerTick = 200
	board := &Board{}
	board.Accel.FailEvery = 4

	ts, err := board.Build(cfg.Tasks)
	if err != nil {
		t.Fatal(err)
	}
	k, err := kernel.New(cfg, ts...)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	if err := k.RunTicks(context.Background(), 105); err != nil {
		t.Fatal(err)
	}

	gyro, accel, leds := ts[0].(*Gyro), ts[1].(*Accel), ts[2].(*Led)
	if gyro.Reads() < 20 {
		t.Errorf("gyro read %d samples", gyro.Reads())
	}
	if got := accel.Reads() + accel.Errors(); got < 9 {
		t.Errorf("accel made %d transfers", got)
	}
	if accel.Errors() == 0 {
		t.Error("accel errors not counted")
	}
	if _, ok := accel.Latest(); !ok {
		t.Error("accel buffer empty")
	}
	if leds.Sweeps() < 5 {
		t.Errorf("led strobe swept %d times", leds.Sweeps())
	}
	for i := range board.Leds {
		if board.Leds[i].Edges() < 2*leds.Sweeps() {
			t.Errorf("led %d toggled %d times in %d sweeps", i, board.Leds[i].Edges(), leds.Sweeps())
		}
	}
}

func TestRingKeepsNewest(t *testing.T) {
	g := NewGyro(GyroPeriod, &SimGyro{})
	if _, ok := g.Latest(); ok {
		t.Fatal("sample in empty ring")
	}
	for i := 1; i <= GyroBufCap+3; i++ {
		g.ring.push(Vec3{X: int16(i)})
	}
	if g.ring.n != GyroBufCap {
		t.Errorf("ring holds %d, want %d", g.ring.n, GyroBufCap)
	}
	if v, _ := g.Latest(); v.X != GyroBufCap+3 {
		t.Errorf("latest = %+v", v)
	}
}

func TestBuildRejects(t *testing.T) {
	b := &Board{}
	_, err := b.Build([]sched.TaskConfig{{Name: "radio", Kind: "radio", Period: 3}})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}

	busy, err := b.Build([]sched.TaskConfig{{Kind: KindBusy, Period: 3, Work: 10}})
	if err != nil || busy[0].Name() != KindBusy || busy[0].Resume() != sched.Restart {
		t.Fatalf("busy task = %v, %v", busy, err)
	}

	if err := NewAccel(AccelPeriod, nil).Init(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("accel Init err = %v", err)
	}
	var leds [LedCount]LED
	if err := NewLed(LedPeriod, leds).Init(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("led Init err = %v", err)
	}
}

func TestLedInitClearsBank(t *testing.T) {
	var bank Bank
	for i := range bank {
		bank[i].High()
	}
	l := NewLed(LedPeriod, bank.LEDs())
	if err := l.Init(); err != nil {
		t.Fatal(err)
	}
	if bank.Lit() != 0 {
		t.Errorf("%d leds lit after Init", bank.Lit())
	}
	if l.Resume() != sched.Continue {
		t.Error("strobe is not cooperative")
	}
}
