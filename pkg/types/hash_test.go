package types

import (
	"strings"
	"testing"
)

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero-value Hash should be zero")
	}

	nonZero := Hash{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero Hash should not be zero")
	}
}

func TestHash_String(t *testing.T) {
	var h Hash
	s := h.String()
	if s != strings.Repeat("0", 64) {
		t.Errorf("zero hash String() = %s, want all zeros", s)
	}

	h[0] = 0xab
	h[31] = 0xcd
	s = h.String()
	if !strings.HasPrefix(s, "ab") || !strings.HasSuffix(s, "cd") {
		t.Errorf("String() = %s, want ab...cd", s)
	}
}

func TestHexToHash(t *testing.T) {
	h := Hash{0x11, 0x22}
	got, err := HexToHash(h.String())
	if err != nil {
		t.Fatalf("HexToHash() error: %v", err)
	}
	if got != h {
		t.Errorf("HexToHash() = %s, want %s", got, h)
	}

	if _, err := HexToHash("abcd"); err == nil {
		t.Error("short hex should fail")
	}
}
