package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beyonddream/angr/internal/ui/colorize"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <binary>",
		Short: "Load a binary and print its image layout without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(args[0], archName)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", colorize.Header("path:"), sess.img.Path)
			fmt.Fprintf(out, "%s %s\n", colorize.Header("machine:"), sess.img.Machine)
			fmt.Fprintf(out, "%s %s\n", colorize.Header("entry:"), colorize.Address(sess.img.Entry))
			fmt.Fprintf(out, "%s %s - %s\n", colorize.Header("range:"),
				colorize.Address(sess.img.BaseAddr), colorize.Address(sess.img.EndAddr))
			fmt.Fprintf(out, "%s %d\n", colorize.Header("segments:"), len(sess.img.Segments))
			for _, seg := range sess.img.Segments {
				fmt.Fprintf(out, "  %s size=0x%x memsz=0x%x flags=%s\n",
					colorize.Address(seg.VAddr), seg.Size, seg.MemSz, seg.Flags)
			}
			fmt.Fprintf(out, "%s %d\n", colorize.Header("symbols:"), len(sess.img.Symbols))
			return nil
		},
	}
	return cmd
}
