package util

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	type P struct {
		A int    `json:"a"`
		B string `json:"b"`
	}

	for name, in := range map[string]any{
		"bytes":  []byte(`{"a":1,"b":"x"}`),
		"string": `{"a":1,"b":"x"}`,
		"map":    map[string]any{"a": 1, "b": "x"},
		"raw":    json.RawMessage(`{"a":1,"b":"x"}`),
	} {
		var p P
		if err := DecodeJSON(in, &p); err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		if p.A != 1 || p.B != "x" {
			t.Fatalf("%s: unexpected result: %+v", name, p)
		}
	}
}

func TestMillis(t *testing.T) {
	cases := map[time.Duration]uint32{
		-time.Second:            0,
		80 * time.Millisecond:   80,
		1500 * time.Microsecond: 1,
		60 * time.Second:        60000,
		1 << 62:                 math.MaxUint32,
	}
	for in, want := range cases {
		if got := Millis(in); got != want {
			t.Errorf("Millis(%v)=%d want %d", in, got, want)
		}
	}
}

func TestResetAndDrainTimer(t *testing.T) {
	tm := time.NewTimer(time.Hour)
	if !tm.Stop() {
		DrainTimer(tm)
	}
	// Reset to near-zero and ensure it fires quickly.
	ResetTimer(tm, 1*time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after ResetTimer")
	}
	// Negative reset clamps to zero and should fire immediately.
	ResetTimer(tm, -1)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after negative ResetTimer")
	}
}
