package core

import (
	"barocode-go/errcode"
	"barocode-go/services/hal/internal/util"
)

// As[T] asserts a payload to the concrete value type T.
// Pointers are not accepted. A nil payload is treated as the zero value of T.
// JSON-like payloads (maps, []byte, string) are decoded into T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	if v == nil {
		return zero, ""
	}
	if t, ok := v.(T); ok {
		return t, ""
	}
	switch v.(type) {
	case map[string]any, []byte, string:
		var t T
		if err := util.DecodeJSON(v, &t); err != nil {
			return zero, errcode.InvalidPayload
		}
		return t, ""
	}
	return zero, errcode.InvalidPayload
}
