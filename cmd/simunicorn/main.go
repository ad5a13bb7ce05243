package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	glog "github.com/beyonddream/angr/internal/log"
)

var (
	verbose  bool
	archName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simunicorn",
		Short: "Drive a hybrid concrete/symbolic execution accelerator over ARM64 binaries",
		Long: `simunicorn loads an ELF binary into a page-cache-backed controller and
runs it under Unicorn, classifying which instructions and registers end up
symbolic without ever evaluating a symbolic expression itself — that part
stays the host's job. It exists to exercise internal/controller end to end:
the core accelerator is a library, this is one way to drive it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	rootCmd.PersistentFlags().StringVar(&archName, "arch", "arm64", "architecture profile name")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newReplaySliceCmd())
	rootCmd.AddCommand(newBatchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
