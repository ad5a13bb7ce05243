package boundary

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/beyonddream/angr/internal/taint"
)

// Field numbers for BlockSummary and its nested messages. Chosen to
// be protobuf-wire-compatible without a .proto: a real .proto message
// with these same field numbers and types would round-trip against
// this encoding.
const (
	fieldBlockAddr      = 1
	fieldBlockSize      = 2
	fieldSymbolicInstrs = 3
	fieldRegisterValues = 4

	fieldInstrAddr     = 1
	fieldHasMemoryDep  = 2
	fieldMemoryValue   = 3
	fieldMemValAddress = 1
	fieldMemValBytes   = 2
	fieldMemValSize    = 3

	fieldRegOffset = 1
	fieldRegValue  = 2
)

// MarshalWire encodes b as a protobuf-wire-compatible byte stream,
// used by the CLI's replay-slice subcommand to persist a captured
// slice without needing a .proto-generated schema.
func (b BlockSummary) MarshalWire() []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldBlockAddr, protowire.VarintType)
	out = protowire.AppendVarint(out, b.BlockAddr)
	out = protowire.AppendTag(out, fieldBlockSize, protowire.VarintType)
	out = protowire.AppendVarint(out, b.BlockSize)
	for _, instr := range b.SymbolicInstrs {
		out = protowire.AppendTag(out, fieldSymbolicInstrs, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalInstrDetails(instr))
	}
	for _, rv := range b.RegisterValues {
		out = protowire.AppendTag(out, fieldRegisterValues, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalRegisterValue(rv))
	}
	return out
}

func marshalInstrDetails(d taint.InstrDetails) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldInstrAddr, protowire.VarintType)
	out = protowire.AppendVarint(out, d.InstrAddr)
	if d.HasMemoryDep {
		out = protowire.AppendTag(out, fieldHasMemoryDep, protowire.VarintType)
		out = protowire.AppendVarint(out, 1)
		out = protowire.AppendTag(out, fieldMemoryValue, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalMemoryValue(d.MemoryValue))
	}
	return out
}

func marshalMemoryValue(v taint.MemoryValue) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldMemValAddress, protowire.VarintType)
	out = protowire.AppendVarint(out, v.Address)
	out = protowire.AppendTag(out, fieldMemValBytes, protowire.BytesType)
	out = protowire.AppendBytes(out, v.Value[:])
	out = protowire.AppendTag(out, fieldMemValSize, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(v.Size))
	return out
}

func marshalRegisterValue(v taint.RegisterValue) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldRegOffset, protowire.VarintType)
	out = protowire.AppendVarint(out, v.Offset)
	out = protowire.AppendTag(out, fieldRegValue, protowire.BytesType)
	out = protowire.AppendBytes(out, v.Value[:])
	return out
}

// UnmarshalWire decodes bytes produced by MarshalWire back into a
// BlockSummary.
func UnmarshalWire(data []byte) (BlockSummary, error) {
	var out BlockSummary
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return out, fmt.Errorf("boundary: invalid tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldBlockAddr:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid block_addr: %v", protowire.ParseError(n))
			}
			out.BlockAddr = v
			data = data[n:]
		case fieldBlockSize:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid block_size: %v", protowire.ParseError(n))
			}
			out.BlockSize = v
			data = data[n:]
		case fieldSymbolicInstrs:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid symbolic_instrs: %v", protowire.ParseError(n))
			}
			instr, err := unmarshalInstrDetails(v)
			if err != nil {
				return out, err
			}
			out.SymbolicInstrs = append(out.SymbolicInstrs, instr)
			data = data[n:]
		case fieldRegisterValues:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid register_values: %v", protowire.ParseError(n))
			}
			rv, err := unmarshalRegisterValue(v)
			if err != nil {
				return out, err
			}
			out.RegisterValues = append(out.RegisterValues, rv)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return out, nil
}

func unmarshalInstrDetails(data []byte) (taint.InstrDetails, error) {
	var out taint.InstrDetails
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return out, fmt.Errorf("boundary: invalid instr_details tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldInstrAddr:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid instr_addr: %v", protowire.ParseError(n))
			}
			out.InstrAddr = v
			data = data[n:]
		case fieldHasMemoryDep:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid has_memory_dep: %v", protowire.ParseError(n))
			}
			out.HasMemoryDep = v != 0
			data = data[n:]
		case fieldMemoryValue:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid memory_value: %v", protowire.ParseError(n))
			}
			mv, err := unmarshalMemoryValue(v)
			if err != nil {
				return out, err
			}
			out.MemoryValue = mv
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return out, nil
}

func unmarshalMemoryValue(data []byte) (taint.MemoryValue, error) {
	var out taint.MemoryValue
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return out, fmt.Errorf("boundary: invalid memory_value tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldMemValAddress:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid memory_value address: %v", protowire.ParseError(n))
			}
			out.Address = v
			data = data[n:]
		case fieldMemValBytes:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid memory_value bytes: %v", protowire.ParseError(n))
			}
			copy(out.Value[:], v)
			data = data[n:]
		case fieldMemValSize:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid memory_value size: %v", protowire.ParseError(n))
			}
			out.Size = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return out, nil
}

func unmarshalRegisterValue(data []byte) (taint.RegisterValue, error) {
	var out taint.RegisterValue
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return out, fmt.Errorf("boundary: invalid register_value tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldRegOffset:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid register_value offset: %v", protowire.ParseError(n))
			}
			out.Offset = v
			data = data[n:]
		case fieldRegValue:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid register_value value: %v", protowire.ParseError(n))
			}
			copy(out.Value[:], v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return out, fmt.Errorf("boundary: invalid field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return out, nil
}
