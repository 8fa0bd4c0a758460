package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetOutput_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug")
	defer SetOutput(&bytes.Buffer{}, "disabled")

	Ledger.Info().Uint64("amount", 5).Msg("minted")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["component"] != "ledger" {
		t.Errorf("component = %v, want ledger", line["component"])
	}
	if line["message"] != "minted" {
		t.Errorf("message = %v, want minted", line["message"])
	}
}

func TestParseLevel_Filters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn")
	defer SetOutput(&bytes.Buffer{}, "disabled")

	RPC.Info().Msg("hidden")
	RPC.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line missing")
	}
}

func TestWithLedger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")
	defer SetOutput(&bytes.Buffer{}, "disabled")

	l := WithLedger("0xabc")
	l.Info().Msg("sealed")
	if !strings.Contains(buf.String(), `"contract":"0xabc"`) {
		t.Errorf("missing contract field: %s", buf.String())
	}
}
