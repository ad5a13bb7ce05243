package boundary

import (
	"reflect"
	"testing"

	"github.com/beyonddream/angr/internal/taint"
)

func TestBlockSummaryWireRoundTrip(t *testing.T) {
	want := BlockSummary{
		BlockAddr: 0x4000,
		BlockSize: 16,
		SymbolicInstrs: []taint.InstrDetails{
			{InstrAddr: 0x4008, HasMemoryDep: false},
			{
				InstrAddr:    0x400c,
				HasMemoryDep: true,
				MemoryValue: taint.MemoryValue{
					Address: 0x8000,
					Value:   [taint.MaxMemAccessBytes]byte{1, 2, 3, 4, 5, 6, 7, 8},
					Size:    8,
				},
			},
		},
		RegisterValues: []taint.RegisterValue{
			{Offset: 16, Value: func() [taint.MaxRegisterBytes]byte {
				var v [taint.MaxRegisterBytes]byte
				v[0] = 0x05
				return v
			}()},
		},
	}

	encoded := want.MarshalWire()
	got, err := UnmarshalWire(encoded)
	if err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestBlockSummaryWireEmpty(t *testing.T) {
	want := BlockSummary{BlockAddr: 1, BlockSize: 2}
	encoded := want.MarshalWire()
	got, err := UnmarshalWire(encoded)
	if err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}
	if got.BlockAddr != want.BlockAddr || got.BlockSize != want.BlockSize {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.SymbolicInstrs) != 0 || len(got.RegisterValues) != 0 {
		t.Fatalf("expected empty slices, got %+v", got)
	}
}

func TestBlockSummaryWireSkipsUnknownFields(t *testing.T) {
	want := BlockSummary{BlockAddr: 7}
	encoded := want.MarshalWire()
	// Append a well-formed but unrecognized field (number 99, varint
	// type) to simulate forward compatibility with a future schema.
	encoded = append(encoded, 0x98, 0x06, 0x2a)
	got, err := UnmarshalWire(encoded)
	if err != nil {
		t.Fatalf("UnmarshalWire with trailing unknown field: %v", err)
	}
	if got.BlockAddr != 7 {
		t.Fatalf("got %+v", got)
	}
}
