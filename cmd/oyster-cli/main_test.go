package main

import "testing"

func TestGlobalFlag(t *testing.T) {
	tests := []struct {
		args      []string
		name      string
		value     string
		restLen   int
		wantMatch bool
	}{
		{[]string{"--rpc", "http://x:1", "status"}, "rpc", "http://x:1", 1, true},
		{[]string{"--keyring=ops", "status"}, "keyring", "ops", 1, true},
		{[]string{"--identity=treasury"}, "identity", "treasury", 0, true},
		{[]string{"status", "--rpc", "x"}, "", "", 3, false},
		{[]string{"--rpc"}, "", "", 1, false},
	}
	for _, tt := range tests {
		name, value, rest, ok := globalFlag(tt.args)
		if ok != tt.wantMatch || name != tt.name || value != tt.value || len(rest) != tt.restLen {
			t.Errorf("globalFlag(%v) = %q, %q, %v, %v", tt.args, name, value, rest, ok)
		}
	}
}

func TestShareList(t *testing.T) {
	var s shareList
	if err := s.Set("0x00000000000000000000000000000000000000aa:60"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("0x00000000000000000000000000000000000000bb:40"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(s) != 2 || s[0].Pct != 60 || s[1].Pct != 40 {
		t.Fatalf("shares = %+v", s)
	}

	for _, bad := range []string{"nocolon", "0x00000000000000000000000000000000000000aa:x", "zz:10"} {
		if err := s.Set(bad); err == nil {
			t.Errorf("Set(%q) should fail", bad)
		}
	}
}

func TestMetadataMap(t *testing.T) {
	m := metadataMap{}
	if err := m.Set("genre=ambient"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if m["genre"] != "ambient" {
		t.Errorf("genre = %q, want ambient", m["genre"])
	}
	if err := m.Set("=x"); err == nil {
		t.Error("empty key should fail")
	}
}
