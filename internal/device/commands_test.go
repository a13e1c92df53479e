package device

import (
	"testing"
)

func TestEncodeConf(t *testing.T) {
	got, err := EncodeConf(map[string]string{"slider1": "5", "max_current": "2"})
	if err != nil {
		t.Fatalf("EncodeConf returned error: %v", err)
	}
	want := `conf{"max_current":"2","slider1":"5"}`
	if got != want {
		t.Fatalf("EncodeConf = %q, want %q", got, want)
	}

	empty, err := EncodeConf(nil)
	if err != nil {
		t.Fatalf("EncodeConf(nil) returned error: %v", err)
	}
	if empty != "conf{}" {
		t.Fatalf("EncodeConf(nil) = %q, want conf{}", empty)
	}
}

func TestParseCommand(t *testing.T) {
	for _, frame := range PrimingCommands() {
		cmd, err := ParseCommand(frame)
		if err != nil || cmd.Name != frame {
			t.Fatalf("ParseCommand(%q) = %#v, %v", frame, cmd, err)
		}
	}

	frame, err := EncodeConf(map[string]string{"slider1": "9"})
	if err != nil {
		t.Fatalf("EncodeConf returned error: %v", err)
	}
	cmd, err := ParseCommand(frame)
	if err != nil {
		t.Fatalf("ParseCommand returned error: %v", err)
	}
	if cmd.Name != "conf" || cmd.Conf["slider1"] != "9" {
		t.Fatalf("ParseCommand = %#v, want conf slider1=9", cmd)
	}

	for _, bad := range []string{"getvalues", "conf{", "hello"} {
		if _, err := ParseCommand(bad); err == nil {
			t.Errorf("ParseCommand(%q) returned nil error", bad)
		}
	}
}

func TestPrimingCommandsOrder(t *testing.T) {
	got := PrimingCommands()
	if len(got) != 2 || got[0] != "getValues" || got[1] != "getConf" {
		t.Fatalf("PrimingCommands = %v, want [getValues getConf]", got)
	}
}

func TestEdits_LastWriteWinsAndFlushClears(t *testing.T) {
	var e Edits

	if _, ok := e.Get("x"); ok {
		t.Fatalf("Get on empty edits reported a value")
	}
	e.Set("x", "1")
	e.Set("y", "2")
	e.Set("x", "3")

	if v, ok := e.Get("x"); !ok || v != "3" {
		t.Fatalf("Get(x) = %q, %v; want 3, true", v, ok)
	}
	if e.Len() != 2 {
		t.Fatalf("Len = %d, want 2", e.Len())
	}

	snap := e.Snapshot()
	snap["x"] = "mutated"
	if v, _ := e.Get("x"); v != "3" {
		t.Fatalf("Snapshot should copy; Get(x) = %q", v)
	}

	flushed := e.Flush()
	if len(flushed) != 2 || flushed["x"] != "3" || flushed["y"] != "2" {
		t.Fatalf("Flush = %#v, want x=3 y=2", flushed)
	}
	if e.Len() != 0 {
		t.Fatalf("Len after Flush = %d, want 0", e.Len())
	}
	if again := e.Flush(); again == nil || len(again) != 0 {
		t.Fatalf("second Flush = %#v, want empty non-nil map", again)
	}

	e.Set("z", "1")
	e.Reset()
	if e.Len() != 0 {
		t.Fatalf("Len after Reset = %d, want 0", e.Len())
	}
}
