package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beyonddream/angr/internal/boundary"
	"github.com/beyonddream/angr/internal/ui/colorize"
)

func newRunCmd() *cobra.Command {
	var maxSteps uint64
	var entry uint64
	var stops []uint

	cmd := &cobra.Command{
		Use:   "run <binary>",
		Short: "Load a binary and run it to completion or the first stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(args[0], archName)
			if err != nil {
				return err
			}
			defer sess.Close()

			pc := entry
			if pc == 0 {
				pc = sess.img.Entry
			}
			if len(stops) > 0 {
				stopAddrs := make([]uint64, len(stops))
				for i, s := range stops {
					stopAddrs[i] = uint64(s)
				}
				sess.bound.SetStops(stopAddrs)
			}

			details := sess.bound.Start(pc, maxSteps)
			printStopDetails(cmd, details)

			blocks := sess.bound.GetDetailsOfBlocksWithSymbolicInstrs()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s (%d)\n",
				colorize.Header("blocks with symbolic instructions"), len(blocks))
			for _, b := range blocks {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s size=%d symbolic_instrs=%d\n",
					colorize.Address(b.BlockAddr), b.BlockSize, len(b.SymbolicInstrs))
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "maximum basic blocks to execute (0 = unbounded)")
	cmd.Flags().Uint64Var(&entry, "entry", 0, "start address (default: the image's entry point)")
	cmd.Flags().UintSliceVar(&stops, "stop", nil, "address to hard-stop at; repeatable")
	return cmd
}

func printStopDetails(cmd *cobra.Command, d boundary.StopDetails) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s at %s (%d bytes)\n",
		colorize.Detail("halted:"), d.Reason, colorize.Address(d.BlockAddr), d.BlockSize)
}
