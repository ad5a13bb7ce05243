// Package archprofile carries, as loadable data, what the original
// implementation hard-codes in per-architecture switch statements:
// the program-counter and stack-pointer VEX register offsets, each
// register's byte size, the sub-register-to-parent-register alias
// map, the artificial/blacklisted register sets, and the CPU flags
// register's bit layout. Six default profiles (x86, x86-64, ARM,
// ARM64, MIPS32, MIPS64) ship embedded; a host may load or override a
// profile from its own YAML file.
package archprofile

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var defaultProfiles embed.FS

// Profile is one architecture/mode's register layout, the Go analogue
// of sim_unicorn.hpp's arch_pc_reg/arch_sp_reg/reg_size_map/
// vex_sub_reg_map/artificial_vex_registers/blacklisted_registers/
// cpu_flags fields.
type Profile struct {
	Name string `yaml:"name"`
	Arch string `yaml:"arch"`
	Mode string `yaml:"mode"`

	PCRegOffset uint64 `yaml:"pc_reg_offset"`
	SPRegOffset uint64 `yaml:"sp_reg_offset"`

	// CPUFlagsRegister is the VEX offset of the flags thunk register,
	// or -1 on architectures with no single flags register (e.g. MIPS).
	CPUFlagsRegister int64 `yaml:"cpu_flags_register"`

	RegSizeMap           map[uint64]uint64 `yaml:"reg_size_map"`
	SubRegMap            map[uint64]uint64 `yaml:"sub_reg_map"`
	ArtificialRegisters  []uint64          `yaml:"artificial_registers"`
	BlacklistedRegisters []uint64          `yaml:"blacklisted_registers"`
	// CPUFlags maps a VEX register offset to the bitmask within that
	// register identifying one flag (e.g. zero, carry).
	CPUFlags map[uint64]uint64 `yaml:"cpu_flags"`
}

// ArtificialSet returns ArtificialRegisters as a lookup set.
func (p *Profile) ArtificialSet() map[uint64]bool {
	return toSet(p.ArtificialRegisters)
}

// BlacklistedSet returns BlacklistedRegisters as a lookup set.
func (p *Profile) BlacklistedSet() map[uint64]bool {
	return toSet(p.BlacklistedRegisters)
}

// RegisterOffsets returns every register offset this profile knows
// about, for seeding a block-entry register snapshot (internal/slice
// Builder.BeginBlock).
func (p *Profile) RegisterOffsets() []uint64 {
	out := make([]uint64, 0, len(p.RegSizeMap))
	for off := range p.RegSizeMap {
		out = append(out, off)
	}
	return out
}

// HasPC reports whether offset is this profile's program counter.
// Per spec.md §6, an architecture with no matching profile yields
// "no such register" for every offset — callers get that behavior
// for free since a zero Profile's PCRegOffset matches nothing a real
// lifter would ever emit at offset 0 without also setting Name.
func (p *Profile) HasPC(offset uint64) bool { return p.Name != "" && offset == p.PCRegOffset }

// HasSP reports whether offset is this profile's stack pointer.
func (p *Profile) HasSP(offset uint64) bool { return p.Name != "" && offset == p.SPRegOffset }

func toSet(offsets []uint64) map[uint64]bool {
	s := make(map[uint64]bool, len(offsets))
	for _, o := range offsets {
		s[o] = true
	}
	return s
}

// Registry holds every profile a host process knows about, keyed by
// name (e.g. "x86_64", "arm64").
type Registry struct {
	profiles map[string]*Profile
}

// DefaultRegistry loads the six embedded default profiles.
func DefaultRegistry() (*Registry, error) {
	r := &Registry{profiles: make(map[string]*Profile)}
	entries, err := defaultProfiles.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("archprofile: reading embedded profiles: %w", err)
	}
	for _, entry := range entries {
		data, err := defaultProfiles.ReadFile("profiles/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("archprofile: reading %s: %w", entry.Name(), err)
		}
		p, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("archprofile: parsing %s: %w", entry.Name(), err)
		}
		r.profiles[p.Name] = p
	}
	return r, nil
}

// Register adds or overrides a profile under its own Name.
func (r *Registry) Register(p *Profile) {
	if r.profiles == nil {
		r.profiles = make(map[string]*Profile)
	}
	r.profiles[p.Name] = p
}

// LoadFile parses a user-supplied YAML profile and registers it,
// returning the parsed profile so the caller can inspect it without a
// second lookup.
func (r *Registry) LoadFile(data []byte) (*Profile, error) {
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("archprofile: parsing override: %w", err)
	}
	r.Register(p)
	return p, nil
}

// Get returns the named profile, or false if the registry has none
// under that name — the "unsupported architecture" case spec.md §6
// requires every register query to degrade gracefully from.
func (r *Registry) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns every profile name currently registered.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		out = append(out, name)
	}
	return out
}

func parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, fmt.Errorf("archprofile: profile missing a name")
	}
	return &p, nil
}
