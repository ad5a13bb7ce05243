// Package regstate implements the register/temp taint state (C4): a
// persistent symbolic-registers set plus block-scoped symbolic/
// concrete register sets and a block-scoped symbolic temp set.
// Sub-register writes are canonicalized to their parent register via
// an injected alias map before any mark/query, per the "canonicalize
// at the API edge" design note.
package regstate

// State tracks which registers and temporaries currently carry
// symbolic data.
type State struct {
	// SubRegMap maps a sub-register's VEX offset to its full parent
	// register's offset. Registers absent from the map are already
	// canonical (whole registers, or architectures with no aliasing).
	SubRegMap map[uint64]uint64

	// Artificial and Blacklisted hold register offsets that may never
	// be recorded as a concrete dependency: artificial registers have
	// no guest counterpart, blacklisted registers are ones the host
	// refuses to accept (e.g. because they're derived later).
	Artificial  map[uint64]bool
	Blacklisted map[uint64]bool

	symbolicRegisters      map[uint64]bool
	blockSymbolicRegisters map[uint64]bool
	blockConcreteRegisters map[uint64]bool
	blockSymbolicTemps     map[uint64]bool
}

// New returns a State with the given alias/artificial/blacklist
// configuration and empty taint sets.
func New(subRegMap map[uint64]uint64, artificial, blacklisted map[uint64]bool) *State {
	if subRegMap == nil {
		subRegMap = map[uint64]uint64{}
	}
	if artificial == nil {
		artificial = map[uint64]bool{}
	}
	if blacklisted == nil {
		blacklisted = map[uint64]bool{}
	}
	return &State{
		SubRegMap:              subRegMap,
		Artificial:             artificial,
		Blacklisted:            blacklisted,
		symbolicRegisters:      make(map[uint64]bool),
		blockSymbolicRegisters: make(map[uint64]bool),
		blockConcreteRegisters: make(map[uint64]bool),
		blockSymbolicTemps:     make(map[uint64]bool),
	}
}

// FullRegOffset canonicalizes a (possibly sub-register) offset to its
// parent register's offset.
func (s *State) FullRegOffset(offset uint64) uint64 {
	if full, ok := s.SubRegMap[offset]; ok {
		return full
	}
	return offset
}

// MarkRegisterSymbolic marks offset's canonical register symbolic. If
// blockLevel, the block-scoped symbolic set gains it and the
// block-scoped concrete set loses it; the persistent set always
// gains it, since a register only leaves the persistent set on
// rollback or an explicit MarkRegisterConcrete.
func (s *State) MarkRegisterSymbolic(offset uint64, blockLevel bool) {
	full := s.FullRegOffset(offset)
	s.symbolicRegisters[full] = true
	if blockLevel {
		s.blockSymbolicRegisters[full] = true
		delete(s.blockConcreteRegisters, full)
	}
}

// MarkRegisterConcrete marks offset's canonical register concrete at
// the persistent level, and at the block level if blockLevel is set.
func (s *State) MarkRegisterConcrete(offset uint64, blockLevel bool) {
	full := s.FullRegOffset(offset)
	delete(s.symbolicRegisters, full)
	if blockLevel {
		s.blockConcreteRegisters[full] = true
		delete(s.blockSymbolicRegisters, full)
	}
}

// MarkTempSymbolic marks a block-local temporary symbolic.
func (s *State) MarkTempSymbolic(tempID uint64) {
	s.blockSymbolicTemps[tempID] = true
}

// IsSymbolicRegister reports whether offset's canonical register is
// currently symbolic in the persistent set.
func (s *State) IsSymbolicRegister(offset uint64) bool {
	return s.symbolicRegisters[s.FullRegOffset(offset)]
}

// IsSymbolicTemp reports whether tempID is symbolic in the current
// block.
func (s *State) IsSymbolicTemp(tempID uint64) bool {
	return s.blockSymbolicTemps[tempID]
}

// IsValidDependency reports whether offset may be recorded as a
// concrete dependency: neither artificial nor blacklisted.
func (s *State) IsValidDependency(offset uint64) bool {
	full := s.FullRegOffset(offset)
	return !s.Artificial[full] && !s.Blacklisted[full]
}

// SymbolicRegisters returns every register offset currently symbolic
// in the persistent set, for the external boundary's
// get_symbolic_registers query.
func (s *State) SymbolicRegisters() []uint64 {
	out := make([]uint64, 0, len(s.symbolicRegisters))
	for off := range s.symbolicRegisters {
		out = append(out, off)
	}
	return out
}

// SeedSymbolic marks a set of registers symbolic up front, for
// symbolic_register_data (§6): seeding initially-symbolic registers
// before a run starts.
func (s *State) SeedSymbolic(offsets []uint64) {
	for _, off := range offsets {
		s.MarkRegisterSymbolic(off, false)
	}
}

// EndBlock discards the block-scoped symbolic/concrete register sets
// and the block-scoped symbolic temp set. Temps are block-local per
// spec.md §4.4 and must not leak into the next block.
func (s *State) EndBlock() {
	s.blockSymbolicRegisters = make(map[uint64]bool)
	s.blockConcreteRegisters = make(map[uint64]bool)
	s.blockSymbolicTemps = make(map[uint64]bool)
}

// Snapshot captures the persistent symbolic-registers set for later
// restoration via Restore — used by the controller on rollback.
type Snapshot struct {
	symbolicRegisters map[uint64]bool
}

// Snapshot returns a deep copy of the persistent symbolic set.
func (s *State) Snapshot() Snapshot {
	cp := make(map[uint64]bool, len(s.symbolicRegisters))
	for k, v := range s.symbolicRegisters {
		cp[k] = v
	}
	return Snapshot{symbolicRegisters: cp}
}

// Restore replaces the persistent symbolic set with a prior snapshot
// and clears all block-scoped state, matching §8 property 3: after
// rollback, register taint sets are bit-identical to block entry.
func (s *State) Restore(snap Snapshot) {
	s.symbolicRegisters = snap.symbolicRegisters
	s.EndBlock()
}
