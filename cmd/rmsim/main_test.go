package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rmkernel/internal/sched"
)

func TestRunPrintsSummary(t *testing.T) {
	runOpts.ticks = 50
	runOpts.quiet = true
	runOpts.csv = filepath.Join(t.TempDir(), "events.csv")
	defer func() { runOpts.ticks, runOpts.quiet, runOpts.csv = 100, false, "" }()

	var out bytes.Buffer
	if err := run(context.Background(), &out, sched.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"50 ticks", "gyro", "accel", "leds", "leds lit"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "Dispatch") {
		t.Error("quiet run printed events")
	}
	if data, err := os.ReadFile(runOpts.csv); err != nil || !strings.Contains(string(data), "Dispatch") {
		t.Errorf("csv log: %v", err)
	}
}

func TestRunReadsConfig(t *testing.T) {
	runOpts.ticks = 10
	runOpts.quiet = true
	defer func() {
		runOpts.ticks, runOpts.quiet = 100, false
		configPath = ""
		rootCmd.SetArgs(nil)
	}()

	path := filepath.Join(t.TempDir(), "board.yml")
	if err := os.WriteFile(path, []byte("tick_mode: tickless\ntasks:\n  - {name: spin, kind: busy, period: 4, work: 30}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", "--config", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if s := out.String(); !strings.Contains(s, "spin") || !strings.Contains(s, "10 ticks") {
		t.Errorf("run ignored --config:\n%s", s)
	}

	rootCmd.SetArgs([]string{"run", "--config", filepath.Join(t.TempDir(), "nope.yml")})
	if err := rootCmd.Execute(); !errors.Is(err, sched.ErrBadConfig) {
		t.Errorf("missing config: err = %v, want ErrBadConfig", err)
	}
}

func TestLayoutCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"layout"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if !strings.Contains(s, "frame layout v1, 17 words") || !strings.Contains(s, "exc_return 0xfffffffd") {
		t.Errorf("layout output:\n%s", s)
	}
	if !strings.Contains(s, "xpsr       0x01000000") {
		t.Errorf("xpsr line missing:\n%s", s)
	}
}
