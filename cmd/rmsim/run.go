package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rmkernel/internal/kernel"
	"rmkernel/internal/sched"
	"rmkernel/internal/tasks"
	"rmkernel/internal/trace"
)

var (
	runOpts = struct {
		ticks     uint64
		csv       string
		quiet     bool
		showTicks bool
	}{}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Boot the board and run it",
		Long:  "Boot the board described by --config and run it for --ticks scheduler ticks, or until interrupted when --ticks is 0.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sched.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), cfg)
		},
	}
)

func init() {
	runCmd.Flags().Uint64VarP(&runOpts.ticks, "ticks", "n", 100, "scheduler ticks to run, 0 runs until interrupted")
	runCmd.Flags().StringVar(&runOpts.csv, "csv", "", "also log every event to this CSV file")
	runCmd.Flags().BoolVarP(&runOpts.quiet, "quiet", "q", false, "print only the summary")
	runCmd.Flags().BoolVar(&runOpts.showTicks, "show-ticks", false, "print tick events too")
}

func run(ctx context.Context, out io.Writer, cfg sched.Config) error {
	board := &tasks.Board{}
	ts, err := board.Build(cfg.Tasks)
	if err != nil {
		return err
	}
	k, err := kernel.New(cfg, ts...)
	if err != nil {
		return err
	}

	events := out
	if runOpts.quiet {
		events = io.Discard
	}
	p := trace.NewPrinter(events, k.Names())
	p.ShowTicks(runOpts.showTicks)
	if runOpts.csv != "" {
		if err := p.EnableCSVLogging(runOpts.csv); err != nil {
			return err
		}
	}
	drained := make(chan error, 1)
	go func() { drained <- p.Drain(k.Events()) }()

	if runOpts.ticks > 0 {
		err = k.RunTicks(ctx, runOpts.ticks)
	} else {
		err = k.Run(ctx)
	}
	k.Close()
	if derr := <-drained; derr != nil {
		fmt.Fprintf(os.Stderr, "csv log: %v\n", derr)
	}

	rows := make([]trace.Row, k.Len())
	for i := range rows {
		t, _ := k.Task(i)
		st := k.Stats(i)
		rows[i] = trace.Row{
			Name:        t.Name(),
			Period:      t.Period(),
			Releases:    st.Releases,
			Dispatches:  st.Dispatches,
			Completions: st.Completions,
			Preemptions: st.Preemptions,
			Overruns:    st.Overruns,
		}
	}
	fmt.Fprintln(out)
	trace.WriteSummary(out, k.Now(), k.Core().Cycles(), rows)
	if n := k.Dropped(); n > 0 {
		fmt.Fprintf(out, "%d events dropped\n", n)
	}
	fmt.Fprintf(out, "leds lit: %d, accel errors: %d, gyro errors: %d\n",
		board.Leds.Lit(), sensorErrors(ts, tasks.KindAccel), sensorErrors(ts, tasks.KindGyro))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func sensorErrors(ts []sched.Task, kind string) uint64 {
	var n uint64
	for _, t := range ts {
		switch t := t.(type) {
		case *tasks.Accel:
			if kind == tasks.KindAccel {
				n += t.Errors()
			}
		case *tasks.Gyro:
			if kind == tasks.KindGyro {
				n += t.Errors()
			}
		}
	}
	return n
}
