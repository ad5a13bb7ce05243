package archprofile

import "testing"

func TestDefaultRegistryLoadsAllSixProfiles(t *testing.T) {
	r, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	want := []string{"x86", "x86_64", "arm", "arm64", "mips32", "mips64"}
	for _, name := range want {
		if _, ok := r.Get(name); !ok {
			t.Errorf("expected profile %q to be registered", name)
		}
	}
}

func TestX86_64ProfileFields(t *testing.T) {
	r, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	p, ok := r.Get("x86_64")
	if !ok {
		t.Fatalf("expected x86_64 profile")
	}
	if !p.HasPC(p.PCRegOffset) {
		t.Errorf("HasPC should match the profile's own PCRegOffset")
	}
	if !p.HasSP(p.SPRegOffset) {
		t.Errorf("HasSP should match the profile's own SPRegOffset")
	}
	if !p.ArtificialSet()[uint64(p.CPUFlagsRegister)] {
		// rflags thunk is artificial on x86_64's embedded profile.
		t.Errorf("expected the flags register (offset %d) to be artificial", p.CPUFlagsRegister)
	}
	if len(p.RegisterOffsets()) == 0 {
		t.Errorf("expected a non-empty register offset list")
	}
}

func TestUnknownProfileReportsNoSuchRegister(t *testing.T) {
	var zero Profile
	if zero.HasPC(0) {
		t.Errorf("a zero-value profile must not claim offset 0 as its PC")
	}
}

func TestRegisterOverridesLoadFile(t *testing.T) {
	r := &Registry{}
	custom := []byte(`
name: custom
arch: custom
mode: "1"
pc_reg_offset: 1000
sp_reg_offset: 2000
cpu_flags_register: -1
reg_size_map:
  1000: 4
  2000: 4
`)
	p, err := r.LoadFile(custom)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p.Name != "custom" {
		t.Fatalf("expected parsed name 'custom', got %q", p.Name)
	}
	if got, ok := r.Get("custom"); !ok || got != p {
		t.Errorf("expected LoadFile to register the profile under its name")
	}
}
