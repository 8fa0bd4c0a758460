package id

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_Prefix(t *testing.T) {
	c := NewCallID()
	if c.Prefix() != PrefixCall {
		t.Errorf("Prefix() = %q, want %q", c.Prefix(), PrefixCall)
	}
	if !strings.HasPrefix(c.String(), "call_") {
		t.Errorf("String() = %q, want call_ prefix", c.String())
	}
	if c.String() == NewCallID().String() {
		t.Error("two generated IDs should differ")
	}
}

func TestParseWithPrefix(t *testing.T) {
	e := NewAssetID()

	got, err := ParseWithPrefix(e.String(), PrefixAsset)
	if err != nil {
		t.Fatalf("ParseWithPrefix() error: %v", err)
	}
	if got.String() != e.String() {
		t.Errorf("parsed = %s, want %s", got, e)
	}

	if _, err := ParseWithPrefix(e.String(), PrefixCall); err == nil {
		t.Error("wrong prefix should fail")
	}
	if _, err := Parse(""); err == nil {
		t.Error("empty string should fail")
	}
	if _, err := Parse("not an id"); err == nil {
		t.Error("garbage should fail")
	}
}

func TestID_JSON(t *testing.T) {
	type wrapper struct {
		ID    ID `json:"id"`
		Empty ID `json:"empty"`
	}
	in := wrapper{ID: NewAssetID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"empty":""`) {
		t.Errorf("Nil should encode as empty string: %s", data)
	}

	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("ID = %s, want %s", out.ID, in.ID)
	}
	if !out.Empty.IsNil() {
		t.Error("empty string should decode to Nil")
	}
}
