package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/beyonddream/angr/internal/boundary"
	"github.com/beyonddream/angr/internal/ui/colorize"
)

func newReplaySliceCmd() *cobra.Command {
	var blockAddr uint64
	var save string
	var load string

	cmd := &cobra.Command{
		Use:   "replay-slice <binary>",
		Short: "Run a binary, then marshal/unmarshal one symbolic block's slice to verify the wire format",
		Long: `replay-slice drives a run exactly like "run", then takes the
BlockSummary for --block (the first symbolic block if unset), round-trips
it through MarshalWire/UnmarshalWire, and reports whether the two copies
match. --save writes the encoded bytes to a file instead; --load reads
them back from a previously saved file and prints the decoded summary
without running anything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if load != "" {
				data, err := os.ReadFile(load)
				if err != nil {
					return fmt.Errorf("read %s: %w", load, err)
				}
				summary, err := boundary.UnmarshalWire(data)
				if err != nil {
					return fmt.Errorf("unmarshal %s: %w", load, err)
				}
				printBlockSummary(cmd, summary)
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("replay-slice: a binary path is required unless --load is given")
			}

			sess, err := openSession(args[0], archName)
			if err != nil {
				return err
			}
			defer sess.Close()

			sess.bound.Start(sess.img.Entry, 0)
			blocks := sess.bound.GetDetailsOfBlocksWithSymbolicInstrs()
			if len(blocks) == 0 {
				return fmt.Errorf("replay-slice: run produced no symbolic blocks")
			}

			summary := blocks[0]
			if blockAddr != 0 {
				found := false
				for _, b := range blocks {
					if b.BlockAddr == blockAddr {
						summary = b
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("replay-slice: block 0x%x has no recorded symbolic instructions", blockAddr)
				}
			}

			encoded := summary.MarshalWire()
			if save != "" {
				if err := os.WriteFile(save, encoded, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", save, err)
				}
			}

			decoded, err := boundary.UnmarshalWire(encoded)
			if err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}

			printBlockSummary(cmd, decoded)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes\n", colorize.Detail("encoded size:"), len(encoded))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&blockAddr, "block", 0, "block address to replay (default: the first symbolic block)")
	cmd.Flags().StringVar(&save, "save", "", "write the encoded slice to this path")
	cmd.Flags().StringVar(&load, "load", "", "decode a previously saved slice instead of running a binary")
	return cmd
}

func printBlockSummary(cmd *cobra.Command, b boundary.BlockSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s size=%d\n", colorize.Header("block:"), colorize.Address(b.BlockAddr), b.BlockSize)
	for _, instr := range b.SymbolicInstrs {
		fmt.Fprintf(out, "  %s %s\n", colorize.Symbolic("symbolic"), colorize.Address(instr.InstrAddr))
	}
	fmt.Fprintf(out, "%s %d\n", colorize.Detail("register values captured:"), len(b.RegisterValues))
}
