package job

import "testing"

// fakeContext counts instructions and completions without a core.
type fakeContext struct {
	steps    int
	complete int
	regs     [16]uint32
	limit    int
}

func (f *fakeContext) Step() {
	f.steps++
	if f.limit > 0 && f.complete >= f.limit {
		panic(stop{})
	}
}

func (f *fakeContext) Spin(n int) {
	for i := 0; i < n; i++ {
		f.Step()
	}
}

func (f *fakeContext) Reg(r int) uint32       { return f.regs[r] }
func (f *fakeContext) SetReg(r int, v uint32) { f.regs[r] = v }
func (f *fakeContext) Now() uint64            { return 0 }

func (f *fakeContext) Complete() {
	f.complete++
	if f.limit > 0 && f.complete >= f.limit {
		panic(stop{})
	}
}

type stop struct{}

func runUntilStopped(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stop); !ok {
				panic(r)
			}
		}
	}()
	fn()
}

func TestSpinWork(t *testing.T) {
	var done uint64
	ctx := &fakeContext{}
	work := SpinWork(25, &done)
	work(ctx)
	work(ctx)
	if ctx.steps != 50 || done != 2 {
		t.Errorf("steps=%d done=%d", ctx.steps, done)
	}
	SpinWork(3, nil)(ctx)
	if ctx.complete != 0 {
		t.Error("SpinWork completed on its own")
	}
}

func TestLoopWork(t *testing.T) {
	var done uint64
	ctx := &fakeContext{limit: 3}
	runUntilStopped(func() { LoopWork(10, &done)(ctx) })
	if ctx.complete != 3 || done != 3 || ctx.steps != 30 {
		t.Errorf("complete=%d done=%d steps=%d", ctx.complete, done, ctx.steps)
	}
}

func TestCountWork(t *testing.T) {
	var out uint32
	ctx := &fakeContext{limit: 2}
	runUntilStopped(func() { CountWork(7, &out)(ctx) })
	if out != 14 || ctx.regs[4] != 14 {
		t.Errorf("out=%d r4=%d", out, ctx.regs[4])
	}
}
