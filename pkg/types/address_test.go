package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddress_IsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero-value Address should be zero")
	}

	nonZero := Address{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero Address should not be zero")
	}
}

func TestAddress_String(t *testing.T) {
	a := Address{0xab}
	a[19] = 0xcd
	s := a.String()
	if !strings.HasPrefix(s, "0xab") {
		t.Errorf("String() should start with '0xab', got %s", s)
	}
	if len(s) != 42 {
		t.Errorf("String() length = %d, want 42", len(s))
	}
	if !strings.HasSuffix(s, "cd") {
		t.Errorf("String() should end with 'cd', got %s", s)
	}
}

func TestParseAddress(t *testing.T) {
	want := Address{0xde, 0xad, 0xbe, 0xef}
	tests := []struct {
		name  string
		input string
	}{
		{"prefixed", want.String()},
		{"raw hex", want.Hex()},
		{"upper prefix", "0X" + want.Hex()},
		{"mixed case", "0x" + strings.ToUpper(want.Hex())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if err != nil {
				t.Fatalf("ParseAddress(%q) error: %v", tt.input, err)
			}
			if got != want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, s := range []string{"", "0x", "0x1234", "zz" + strings.Repeat("0", 38), strings.Repeat("0", 42)} {
		if _, err := ParseAddress(s); err == nil {
			t.Errorf("ParseAddress(%q) should fail", s)
		}
	}
}

func TestAddress_JSONMapKey(t *testing.T) {
	a := Address{0x01}
	b := Address{0x02}
	in := map[Address]uint64{a: 10, b: 20}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[Address]uint64
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[a] != 10 || out[b] != 20 {
		t.Errorf("decoded map = %v, want %v", out, in)
	}
}

func TestAddress_UnmarshalJSON_Empty(t *testing.T) {
	a := Address{0x05}
	if err := json.Unmarshal([]byte(`""`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !a.IsZero() {
		t.Errorf("empty string should decode to zero address, got %s", a)
	}
}
