package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beyonddream/angr/internal/ui/colorize"
)

// batchResult is one binary's outcome, collected under a mutex since
// each goroutine in the errgroup writes its own slot concurrently.
type batchResult struct {
	path   string
	stop   string
	blocks int
	err    error
}

func newBatchCmd() *cobra.Command {
	var concurrency int
	var maxSteps uint64

	cmd := &cobra.Command{
		Use:   "batch <binary>...",
		Short: "Run several binaries concurrently and summarize each run",
		Long: `batch is the one place in this CLI that runs more than one
session at once: every other subcommand drives a single controller on the
calling goroutine, matching the accelerator's single-threaded-per-session
contract, but nothing prevents a host process from holding several
independent sessions (distinct session keys, distinct page caches) live
at the same time. batch exercises exactly that by fanning out one
openSession per binary under a bounded errgroup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency <= 0 {
				concurrency = len(args)
			}

			results := make([]batchResult, len(args))
			var mu sync.Mutex
			g := new(errgroup.Group)
			g.SetLimit(concurrency)

			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					res := runOneBatchEntry(path, maxSteps)
					mu.Lock()
					results[i] = res
					mu.Unlock()
					return nil
				})
			}
			// Errors are per-binary, not fatal to the batch: each is
			// reported below instead of aborting the whole run.
			_ = g.Wait()

			out := cmd.OutOrStdout()
			for _, res := range results {
				if res.err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", colorize.Error("failed:"), res.path, res.err)
					continue
				}
				fmt.Fprintf(out, "%s %s %s symbolic_blocks=%d\n",
					colorize.Header("done:"), res.path, colorize.Detail(res.stop), res.blocks)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max concurrent runs (default: one per binary)")
	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "maximum basic blocks per run (0 = unbounded)")
	return cmd
}

func runOneBatchEntry(path string, maxSteps uint64) batchResult {
	sess, err := openSession(path, archName)
	if err != nil {
		return batchResult{path: path, err: err}
	}
	defer sess.Close()

	details := sess.bound.Start(sess.img.Entry, maxSteps)
	blocks := sess.bound.GetDetailsOfBlocksWithSymbolicInstrs()
	return batchResult{path: path, stop: details.Reason.String(), blocks: len(blocks)}
}
