// Package loader seeds a page cache from a real ELF binary's PT_LOAD
// segments, so the CLI and tests can drive a controller against a
// realistic paged memory image instead of ad hoc byte arrays.
//
// Adapted from the teacher's ELF loader: the vtable/RTTI resolution,
// relocation-driven PLT/GOT fixups, and libstdc++ COW-string-global
// initialization are all dropped, since nothing in this accelerator
// runs guest C++ or libc code — those concerns belonged to an emulator
// that executed Android native libraries end to end, not to a
// concrete/symbolic execution accelerator that expects the host to
// supply already-relocated memory.
package loader

import (
	"debug/elf"
	"fmt"
	"os"
	"strings"

	"github.com/beyonddream/angr/internal/pagecache"
)

// Segment is one loadable ELF segment, already relocated to its final
// virtual address.
type Segment struct {
	VAddr uint64
	Size  uint64 // file size
	MemSz uint64 // memory size, >= Size when the segment has a .bss tail
	Flags elf.ProgFlag
	Data  []byte
}

// Image is a parsed, relocated ELF ready to seed a page cache.
type Image struct {
	Path     string
	Machine  elf.Machine
	Entry    uint64
	Symbols  map[string]uint64
	Segments []Segment
	BaseAddr uint64
	EndAddr  uint64
}

// DefaultBase is used to relocate images whose lowest PT_LOAD vaddr is
// below 0x10000 (such as position-independent images linked at 0) when
// no explicit load address is requested.
const DefaultBase = 0x40000000

// Load parses path and relocates it to loadBase. loadBase == 0 means
// auto-select: an image whose lowest PT_LOAD vaddr is below 0x10000
// loads at DefaultBase; any other image loads at its file vaddr.
func Load(path string, loadBase uint64) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open: %w", err)
	}
	defer f.Close()

	fileBase := ^uint64(0)
	fileEnd := uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr < fileBase {
			fileBase = prog.Vaddr
		}
		if end := prog.Vaddr + prog.Memsz; end > fileEnd {
			fileEnd = end
		}
	}
	if fileBase == ^uint64(0) {
		return nil, fmt.Errorf("loader: %s has no PT_LOAD segments", path)
	}

	var relocOffset uint64
	switch {
	case loadBase != 0:
		relocOffset = loadBase - fileBase
	case fileBase < 0x10000:
		relocOffset = DefaultBase - fileBase
	default:
		relocOffset = 0
	}

	img := &Image{
		Path:     path,
		Machine:  f.Machine,
		Entry:    f.Entry + relocOffset,
		Symbols:  make(map[string]uint64),
		BaseAddr: fileBase + relocOffset,
		EndAddr:  fileEnd + relocOffset,
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read: %w", err)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		vaddr := prog.Vaddr + relocOffset
		seg := Segment{VAddr: vaddr, Size: prog.Filesz, MemSz: prog.Memsz, Flags: prog.Flags}
		if prog.Filesz > 0 && prog.Off+prog.Filesz <= uint64(len(fileData)) {
			seg.Data = fileData[prog.Off : prog.Off+prog.Filesz]
		}
		img.Segments = append(img.Segments, seg)
	}

	collectSymbols(f, relocOffset, img.Symbols)

	return img, nil
}

func collectSymbols(f *elf.File, relocOffset uint64, out map[string]uint64) {
	addFrom := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Value == 0 || sym.Name == "" {
				continue
			}
			addr := sym.Value + relocOffset
			out[sym.Name] = addr
			if idx := strings.IndexByte(sym.Name, '@'); idx != -1 {
				out[sym.Name[:idx]] = addr
			}
		}
	}
	if syms, err := f.DynamicSymbols(); err == nil {
		addFrom(syms)
	}
	if syms, err := f.Symbols(); err == nil {
		addFrom(syms)
	}
}

const pageAlign = 0x1000

func alignDown(addr uint64) uint64 { return addr &^ (pageAlign - 1) }
func alignUp(addr uint64) uint64   { return (addr + pageAlign - 1) &^ (pageAlign - 1) }

func progFlagsToPerms(f elf.ProgFlag) pagecache.Perms {
	var p pagecache.Perms
	if f&elf.PF_R != 0 {
		p |= pagecache.PermRead
	}
	if f&elf.PF_W != 0 {
		p |= pagecache.PermWrite
	}
	if f&elf.PF_X != 0 {
		p |= pagecache.PermExecute
	}
	return p
}

// SeedPageCache caches every segment of img into cache, page-aligned,
// with its file contents followed by zero-filled .bss where MemSz
// exceeds Size.
func (img *Image) SeedPageCache(cache *pagecache.Cache) {
	for _, seg := range img.Segments {
		start := alignDown(seg.VAddr)
		end := alignUp(seg.VAddr + seg.MemSz)
		buf := make([]byte, end-start)
		off := seg.VAddr - start
		copy(buf[off:], seg.Data)
		cache.CachePage(start, buf, progFlagsToPerms(seg.Flags))
	}
}
