// Package taint defines the taint-tracking data model shared by the
// block analyzer, propagation engine, and slice builder: taint bytes,
// taint entities, and the per-instruction/per-block taint records they
// compose into.
package taint

import (
	"fmt"
	"strings"
)

// Byte is the per-shadow-byte taint label.
type Byte uint8

const (
	// None marks a byte with no taint tracking obligation.
	None Byte = iota
	// Dirty marks a concrete byte whose prior value was saved for
	// possible rollback (a write pending commit).
	Dirty
	// Symbolic marks a byte whose value is symbolic.
	Symbolic
)

func (b Byte) String() string {
	switch b {
	case None:
		return "none"
	case Dirty:
		return "dirty"
	case Symbolic:
		return "symbolic"
	default:
		return "unknown"
	}
}

// Status is the outcome of resolving a taint sink against its sources.
type Status uint8

const (
	// Concrete means every source resolved to a known concrete value.
	Concrete Status = iota
	// DependsOnReadFromSymbolicAddr means a Mem source's address is
	// symbolic but the data read from it is not (yet) known to be.
	DependsOnReadFromSymbolicAddr
	// StatusSymbolic means at least one source is symbolic.
	StatusSymbolic
)

// Kind discriminates the Entity variant.
type Kind uint8

const (
	KindReg Kind = iota
	KindTmp
	KindMem
	KindNone
)

// Entity is the Reg/Tmp/Mem/None variant of spec.md's TaintEntity.
// Mem carries an owned, ordered list of sub-entities (the address-
// computing Reg/Tmp leaves of a memory reference) rather than a
// pointer graph, so equality and hashing are purely structural.
type Entity struct {
	Kind      Kind
	RegOffset uint64
	TempID    uint64
	MemRefs   []Entity
	// InstrAddr is metadata: the instruction the entity is used in for
	// a taint sink, ignored for sources. Excluded from Key/Equal.
	InstrAddr uint64
}

// Reg builds a register entity.
func Reg(offset uint64) Entity { return Entity{Kind: KindReg, RegOffset: offset} }

// Tmp builds a temporary entity.
func Tmp(id uint64) Entity { return Entity{Kind: KindTmp, TempID: id} }

// Mem builds a memory-reference entity from its address-computing
// sub-entities, in order.
func Mem(refs ...Entity) Entity { return Entity{Kind: KindMem, MemRefs: refs} }

// NoneEntity is the empty entity.
func NoneEntity() Entity { return Entity{Kind: KindNone} }

// WithInstr returns a copy of e tagged with the instruction address it
// is used in as a taint sink.
func (e Entity) WithInstr(addr uint64) Entity {
	e.InstrAddr = addr
	return e
}

// Key returns a string uniquely identifying e by variant payload only
// (never by InstrAddr), suitable as a map key for entity sets.
func (e Entity) Key() string {
	switch e.Kind {
	case KindReg:
		return fmt.Sprintf("R%d", e.RegOffset)
	case KindTmp:
		return fmt.Sprintf("T%d", e.TempID)
	case KindMem:
		var b strings.Builder
		b.WriteString("M(")
		for i, sub := range e.MemRefs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(sub.Key())
		}
		b.WriteByte(')')
		return b.String()
	default:
		return "N"
	}
}

// Equal compares two entities structurally, ignoring InstrAddr.
func (e Entity) Equal(other Entity) bool {
	return e.Key() == other.Key()
}

func (e Entity) String() string {
	switch e.Kind {
	case KindReg:
		return fmt.Sprintf("reg(0x%x)", e.RegOffset)
	case KindTmp:
		return fmt.Sprintf("t%d", e.TempID)
	case KindMem:
		parts := make([]string, len(e.MemRefs))
		for i, sub := range e.MemRefs {
			parts[i] = sub.String()
		}
		return "mem[" + strings.Join(parts, ",") + "]"
	default:
		return "none"
	}
}

// Set is an entity set keyed by structural identity.
type Set map[string]Entity

// NewSet builds a Set from the given entities.
func NewSet(entities ...Entity) Set {
	s := make(Set, len(entities))
	for _, e := range entities {
		s.Add(e)
	}
	return s
}

// Add inserts e into the set.
func (s Set) Add(e Entity) { s[e.Key()] = e }

// Has reports whether e is in the set.
func (s Set) Has(e Entity) bool {
	_, ok := s[e.Key()]
	return ok
}

// Union returns a new set containing every entity in s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Slice returns the set's entities in unspecified order.
func (s Set) Slice() []Entity {
	out := make([]Entity, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	return out
}

// Equal reports whether s and other contain exactly the same entities.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}
