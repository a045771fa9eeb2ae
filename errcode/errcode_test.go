package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"barocode-go/drivers/bmp390"
)

func TestMapDriverErr(t *testing.T) {
	cases := map[string]struct {
		err  error
		want Code
	}{
		"nil":       {nil, OK},
		"probe":     {&bmp390.ProbeError{Got: 0x50}, NoDevice},
		"not ready": {bmp390.ErrNotReady, NotReady},
		"off":       {fmt.Errorf("read: %w", bmp390.ErrSensorOff), SensorOff},
		"bus":       {&bmp390.BusError{Op: "read", Reg: 0x03, Err: errors.New("nack")}, BusError},
		"intent":    {bmp390.ErrInvalidIntent, InvalidMode},
		"conf":      {bmp390.ErrConfig, ConfigReject},
		"deadline":  {context.DeadlineExceeded, Timeout},
		"reset":     {bmp390.ErrResetTimeout, Timeout},
		"other":     {errors.New("?"), Error},
	}
	for name, tc := range cases {
		if got := MapDriverErr(tc.err); got != tc.want {
			t.Errorf("%s: got %q want %q", name, got, tc.want)
		}
	}
}

func TestOf(t *testing.T) {
	if Of(nil) != OK {
		t.Fatal("nil")
	}
	if Of(Busy) != Busy {
		t.Fatal("bare code")
	}
	wrapped := fmt.Errorf("ctl: %w", &E{C: InvalidParams, Msg: "bad"})
	if Of(wrapped) != InvalidParams {
		t.Fatalf("wrapped E: %q", Of(wrapped))
	}
	if Of(bmp390.ErrNotReady) != NotReady {
		t.Fatal("driver fallback")
	}
}

func TestWrap(t *testing.T) {
	if Wrap("read", nil) != nil {
		t.Fatal("nil err wrapped")
	}
	err := Wrap("read", bmp390.ErrSensorOff)
	if Of(err) != SensorOff || !errors.Is(err, bmp390.ErrSensorOff) {
		t.Fatalf("err=%v code=%q", err, Of(err))
	}
	if err.Error() != "read: sensor_off: bmp390: sensor off" {
		t.Fatalf("Error()=%q", err.Error())
	}
}
