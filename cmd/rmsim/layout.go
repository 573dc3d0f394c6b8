package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rmkernel/internal/arch"
	"rmkernel/internal/kernel"
	"rmkernel/internal/sched"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the saved-context frame layout",
	Long:  "Manufacture an initial frame on a scratch stack and print it word by word, lowest address first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stack [sched.StackWords]uint32
		bus := arch.NewBus()
		base, err := bus.Map(stack[:])
		if err != nil {
			return err
		}
		top := base + uint32(len(stack))*4
		const entry = arch.CodeBase
		sp, err := arch.BuildInitialFrame(bus, top, arch.InitialFrame{
			Self:  kernel.TCBBase,
			Entry: entry,
			Exit:  arch.ExitTrap,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "frame layout v%d, %d words, stack top 0x%08x, sp 0x%08x\n",
			arch.FrameLayoutVersion, arch.FrameWords, top, sp)
		names := []string{"r4", "r5", "r6", "r7", "r8", "r9", "r10", "r11", "exc_return",
			"r0", "r1", "r2", "r3", "r12", "lr", "pc", "xpsr"}
		for i, name := range names {
			addr := sp + uint32(i)*4
			w, err := bus.Load(addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  0x%08x  %-10s 0x%08x\n", addr, name, w)
		}
		return nil
	},
}
