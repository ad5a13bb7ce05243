package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/beyonddream/angr/internal/pagecache"
)

// writeMinimalELF64 hand-assembles the smallest ELF64/AARCH64
// executable debug/elf will parse: one PT_LOAD segment covering
// len(data) bytes of data starting at vaddr, plus a bssSize tail with
// no file backing. There is no assembler in this corpus for producing
// real object files, so the fixture is built byte by byte, the same
// way the controller and engine tests hand-encode machine code.
func writeMinimalELF64(t *testing.T, vaddr uint64, data []byte, bssSize uint64, entry uint64) string {
	t.Helper()
	const ehsize = 64
	const phentsize = 56
	phoff := uint64(ehsize)
	dataOff := phoff + phentsize

	var buf bytes.Buffer

	ident := [16]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* ELFDATA2LSB */, 1, 0}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(elf.ET_EXEC))
	binary.Write(&buf, binary.LittleEndian, uint16(elf.EM_AARCH64))
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // e_version
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, phoff)
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shstrndx

	if buf.Len() != int(phoff) {
		t.Fatalf("header size mismatch: got %d want %d", buf.Len(), phoff)
	}

	binary.Write(&buf, binary.LittleEndian, uint32(elf.PT_LOAD))
	binary.Write(&buf, binary.LittleEndian, uint32(elf.PF_R|elf.PF_X))
	binary.Write(&buf, binary.LittleEndian, dataOff)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, vaddr) // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(data)))
	binary.Write(&buf, binary.LittleEndian, uint64(len(data))+bssSize)
	binary.Write(&buf, binary.LittleEndian, uint64(pageAlign))

	if buf.Len() != int(dataOff) {
		t.Fatalf("program header size mismatch: got %d want %d", buf.Len(), dataOff)
	}
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "fixture.elf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesSegmentsAndEntry(t *testing.T) {
	code := []byte{0xc0, 0x03, 0x5f, 0xd6} // RET
	path := writeMinimalELF64(t, 0x10000, code, 0x1000, 0x10000)

	img, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != 0x10000 {
		t.Errorf("expected entry 0x10000, got 0x%x", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.VAddr != 0x10000 || seg.MemSz != uint64(len(code))+0x1000 {
		t.Errorf("unexpected segment: %+v", seg)
	}
	if !bytes.Equal(seg.Data, code) {
		t.Errorf("expected segment data %v, got %v", code, seg.Data)
	}
}

func TestLoadRelocatesPositionIndependentImage(t *testing.T) {
	code := []byte{0x00, 0x00, 0x00, 0x14} // b .
	path := writeMinimalELF64(t, 0, code, 0, 0)

	img, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.BaseAddr != DefaultBase {
		t.Errorf("expected position-independent image relocated to 0x%x, got 0x%x", DefaultBase, img.BaseAddr)
	}
}

func TestLoadExplicitBase(t *testing.T) {
	code := []byte{0xc0, 0x03, 0x5f, 0xd6}
	path := writeMinimalELF64(t, 0x1000, code, 0, 0x1000)

	img, err := Load(path, 0x50000000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.BaseAddr != 0x50000000 {
		t.Errorf("expected explicit base 0x50000000, got 0x%x", img.BaseAddr)
	}
	if img.Entry != 0x50000000 {
		t.Errorf("expected entry relocated to 0x50000000, got 0x%x", img.Entry)
	}
}

func TestSeedPageCacheIsReadableAfterward(t *testing.T) {
	code := []byte{0xc0, 0x03, 0x5f, 0xd6}
	path := writeMinimalELF64(t, 0x20000, code, 0x10, 0x20000)

	img, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cache := pagecache.ForSession(1)
	t.Cleanup(func() { pagecache.ReleaseSession(1) })
	img.SeedPageCache(cache)

	if !cache.InCache(0x20000) {
		t.Errorf("expected 0x20000 to be cached after SeedPageCache")
	}
	if !cache.InCache(0x20000 + uint64(len(code)) + 8) {
		t.Errorf("expected the zero-filled bss tail to be cached too")
	}
}
