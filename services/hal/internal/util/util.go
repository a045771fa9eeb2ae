package util

import (
	"encoding/json"
	"math"
	"time"

	"barocode-go/x/mathx"
)

func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// DecodeJSON decodes JSON text, or re-encodes any other JSON-like value, into dst.
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case json.RawMessage:
		return json.Unmarshal(v, dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

// Millis converts d to whole milliseconds, saturating at the uint32 range.
func Millis(d time.Duration) uint32 {
	return uint32(mathx.Clamp(d.Milliseconds(), 0, math.MaxUint32))
}
