package main

import (
	"github.com/spf13/cobra"

	"github.com/beyonddream/angr/internal/ui/watch"
)

func newWatchCmd() *cobra.Command {
	var maxSteps uint64
	var entry uint64

	cmd := &cobra.Command{
		Use:   "watch <binary>",
		Short: "Run a binary under a live TUI showing block/symbolic-register progress",
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

			return watch.Run(sess.bound.Controller(), func() {
				sess.bound.Start(pc, maxSteps)
			})
		},
	}

	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "maximum basic blocks to execute (0 = unbounded)")
	cmd.Flags().Uint64Var(&entry, "entry", 0, "start address (default: the image's entry point)")
	return cmd
}
