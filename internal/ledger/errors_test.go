package ledger

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("disk on fire"), ""},
		{ErrUnauthorized, "Unauthorized"},
		{fmt.Errorf("%w: need 5, got 4", ErrInsufficientPayment), "InsufficientPayment"},
		{fmt.Errorf("commit: %w", fmt.Errorf("%w: x", ErrAlreadySealed)), "AlreadySealed"},
		{ErrDuplicateCall, "DuplicateCall"},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKinds_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for _, k := range Kinds() {
		if seen[k] {
			t.Errorf("kind %q listed twice", k)
		}
		seen[k] = true
	}
	if len(seen) != len(errorKinds) {
		t.Errorf("kinds = %d, want %d", len(seen), len(errorKinds))
	}
}

func TestJournal_Rollback(t *testing.T) {
	var j journal
	n := uint64(1)
	m := map[string]uint64{"a": 1}
	s := []int{1}

	set(&j, &n, 5)
	setEntry(&j, m, "a", 0)
	setEntry(&j, m, "b", 2)
	setEntry(&j, m, "b", 3)
	set(&j, &s, append(s[:len(s):len(s)], 2))

	if n != 5 || len(m) != 1 || m["b"] != 3 || len(s) != 2 {
		t.Fatalf("after writes: n=%d m=%v s=%v", n, m, s)
	}
	j.rollback()
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if len(m) != 1 || m["a"] != 1 {
		t.Errorf("m = %v, want map[a:1]", m)
	}
	if len(s) != 1 {
		t.Errorf("s = %v, want [1]", s)
	}
}

func TestMath(t *testing.T) {
	top := ^uint64(0)
	if _, err := add(top, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("add overflow: %v", err)
	}
	if v, err := add(top-1, 1); err != nil || v != top {
		t.Errorf("add(max-1, 1) = %d, %v", v, err)
	}
	if _, err := mul(1<<32, 1<<32); !errors.Is(err, ErrOverflow) {
		t.Errorf("mul overflow: %v", err)
	}
	if v, err := mul(100, 50000); err != nil || v != 5000000 {
		t.Errorf("mul(100, 50000) = %d, %v", v, err)
	}
}
