package main

import "testing"

func TestLoadProfileKnownArch(t *testing.T) {
	p, err := loadProfile("arm64")
	if err != nil {
		t.Fatalf("loadProfile(arm64): %v", err)
	}
	if p.Name != "arm64" {
		t.Fatalf("expected the arm64 profile, got %q", p.Name)
	}
}

func TestLoadProfileUnknownArch(t *testing.T) {
	_, err := loadProfile("made-up-arch")
	if err == nil {
		t.Fatalf("expected an error for an unknown architecture profile")
	}
}

func TestOpenSessionRejectsMissingBinary(t *testing.T) {
	_, err := openSession("/nonexistent/binary", "arm64")
	if err == nil {
		t.Fatalf("expected an error opening a session over a missing binary")
	}
}

func TestArm64CacheLifterErrorsOnUncachedAddress(t *testing.T) {
	key := nextSessionKey.Add(1)
	lifter := arm64CacheLifter(key)
	if _, err := lifter(0x1234); err == nil {
		t.Fatalf("expected an error lifting from an empty page cache")
	}
}
