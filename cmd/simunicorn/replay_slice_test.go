package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/beyonddream/angr/internal/boundary"
	"github.com/beyonddream/angr/internal/taint"
)

func TestReplaySliceLoadRoundTripsASavedSlice(t *testing.T) {
	summary := boundary.BlockSummary{
		BlockAddr: 0x1000,
		BlockSize: 16,
		SymbolicInstrs: []taint.InstrDetails{
			{InstrAddr: 0x1004},
		},
		RegisterValues: []taint.RegisterValue{
			{Offset: 16},
		},
	}
	encoded := summary.MarshalWire()

	dir := t.TempDir()
	path := dir + "/slice.bin"
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cmd := newReplaySliceCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--load", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected the decoded block summary to be printed")
	}
}

func TestReplaySliceRequiresABinaryWithoutLoad(t *testing.T) {
	cmd := newReplaySliceCmd()
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an error when neither a binary nor --load is given")
	}
}
