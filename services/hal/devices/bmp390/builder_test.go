package bmp390dev

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"

	"barocode-go/drivers/bmp390"
	"barocode-go/drivers/bmp390/bmp390test"
	"barocode-go/errcode"
	"barocode-go/services/hal/internal/core"
	"barocode-go/types"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeBuses struct {
	chip *bmp390test.Chip
	mu   sync.Mutex
}

func (f *fakeBuses) Configure([]types.BusConfig) error { return nil }
func (f *fakeBuses) Close() error                      { return nil }
func (f *fakeBuses) I2C(id string) (drivers.I2C, sync.Locker, error) {
	if id != "i2c1" {
		return nil, nil, errcode.UnknownBus
	}
	return f.chip, &f.mu, nil
}

type recorder struct {
	mu  sync.Mutex
	evs []core.Event
}

func (r *recorder) Emit(ev core.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return true
}

func (r *recorder) take() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.evs
	r.evs = nil
	return out
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func build(t *testing.T, params any) (*Device, *bmp390test.Chip, *bmp390test.Clock, *recorder) {
	t.Helper()
	chip := bmp390test.NewChip(bmp390.Address)
	clk := bmp390test.NewClock(epoch)
	rec := &recorder{}
	dev, err := builder{}.Build(context.Background(), core.BuilderInput{
		ID:     "baro0",
		Type:   "bmp390",
		Params: params,
		Res: core.Resources{
			Buses: &fakeBuses{chip: chip},
			Pub:   rec,
			Log:   quiet(),
			Clock: clk,
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return dev.(*Device), chip, clk, rec
}

func lastState(t *testing.T, evs []core.Event) types.BarometerState {
	t.Helper()
	for i := len(evs) - 1; i >= 0; i-- {
		if st, ok := evs[i].Payload.(types.BarometerState); ok {
			return st
		}
	}
	t.Fatalf("no state event in %v", evs)
	return types.BarometerState{}
}

func TestBuildRejectsBadParams(t *testing.T) {
	res := core.Resources{Buses: &fakeBuses{chip: bmp390test.NewChip(bmp390.Address)}, Log: quiet()}
	cases := []struct {
		name   string
		params any
		want   error
	}{
		{"no bus", types.BarometerParams{}, errcode.InvalidParams},
		{"bad mode", types.BarometerParams{Bus: "i2c1", Mode: "turbo"}, errcode.InvalidParams},
		{"wrong type", 42, errcode.InvalidParams},
		{"unknown bus", types.BarometerParams{Bus: "i2c9"}, errcode.UnknownBus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder{}.Build(context.Background(), core.BuilderInput{ID: "x", Params: tc.params, Res: res})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestBuildDecodesJSONParams(t *testing.T) {
	d, _, _, _ := build(t, map[string]any{"bus": "i2c1", "addr": 0x77, "mode": "fast"})
	if d.params.Bus != "i2c1" || d.start != bmp390.Fast {
		t.Fatalf("params=%+v start=%v", d.params, d.start)
	}
}

func TestInitStartsConfiguredMode(t *testing.T) {
	d, _, _, rec := build(t, types.BarometerParams{Bus: "i2c1"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := lastState(t, rec.take())
	if st.Mode != "slow" || st.Acquisition != "one_shot" || st.PeriodMs != 60000 || st.Users != 1 {
		t.Fatalf("state=%+v", st)
	}
	if got := d.PollInterval(); got != time.Minute {
		t.Fatalf("PollInterval=%v", got)
	}
	if info := d.Capabilities()[0].Info.Detail.(types.BarometerInfo); info.Revision != bmp390.RevisionID {
		t.Fatalf("revision=%d", info.Revision)
	}
}

func TestInitOffHoldsNoReference(t *testing.T) {
	d, _, _, rec := build(t, types.BarometerParams{Bus: "i2c1", Mode: "off"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if st := lastState(t, rec.take()); st.Mode != "off" || st.Users != 0 {
		t.Fatalf("state=%+v", st)
	}
	if got := d.PollInterval(); got != 0 {
		t.Fatalf("PollInterval=%v", got)
	}
	_, err := d.Control(d.addrPress, "read", nil)
	if !errors.Is(err, bmp390.ErrSensorOff) || errcode.Of(err) != errcode.SensorOff {
		t.Fatalf("read err=%v", err)
	}
	if err.Error() != "read: sensor_off: bmp390: sensor off" {
		t.Fatalf("Error()=%q", err.Error())
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestInitProbeFailure(t *testing.T) {
	d, chip, _, _ := build(t, types.BarometerParams{Bus: "i2c1"})
	chip.SetReg(0x00, 0x50)
	if err := d.Init(context.Background()); errcode.MapDriverErr(err) != errcode.NoDevice {
		t.Fatalf("Init err=%v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReadPublishesOnce(t *testing.T) {
	d, chip, _, rec := build(t, types.BarometerParams{Bus: "i2c1"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rec.take()
	chip.SetSample([6]byte{0x12, 0x34, 0x56, 0x22, 0x44, 0x66})

	res, err := d.Control(d.addrPress, "read", nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	pv, ok := res.(types.PressureValue)
	if !ok || pv.MilliPa != 1_267_605 || pv.TS != epoch.UnixNano() {
		t.Fatalf("reply=%#v", res)
	}
	evs := rec.take()
	if len(evs) != 2 {
		t.Fatalf("events=%v", evs)
	}
	if tv := evs[1].Payload.(types.TemperatureValue); tv.MilliC != 42107 {
		t.Fatalf("temperature=%+v", tv)
	}

	// A cached reading answers the request without republishing.
	res, err = d.Control(d.addrTemp, "read", nil)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if tv := res.(types.TemperatureValue); tv.MilliC != 42107 {
		t.Fatalf("temperature reply=%+v", tv)
	}
	if evs := rec.take(); len(evs) != 0 {
		t.Fatalf("republished: %v", evs)
	}

	res, _ = d.Control(d.addrBaro, "read", nil)
	if br := res.(types.BarometerReading); br.Validity != "fresh" || br.Pressure.MilliPa != 1_267_605 {
		t.Fatalf("barometer reply=%+v", br)
	}
}

func TestReadBusErrorDegrades(t *testing.T) {
	d, chip, _, rec := build(t, types.BarometerParams{Bus: "i2c1", Mode: "fast"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rec.take()
	chip.FailAll(bmp390test.ErrNack)

	_, err := d.Control(d.addrPress, "read", nil)
	if errcode.Of(err) != errcode.BusError {
		t.Fatalf("err=%v", err)
	}
	evs := rec.take()
	if len(evs) != 2 || evs[0].Err != string(errcode.BusError) || evs[1].Addr != d.addrTemp {
		t.Fatalf("events=%+v", evs)
	}
}

func TestReadNotReadyIsQuiet(t *testing.T) {
	d, _, _, rec := build(t, types.BarometerParams{Bus: "i2c1", Mode: "fast"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rec.take()
	if _, err := d.Control(d.addrPress, "read", nil); !errors.Is(err, bmp390.ErrNotReady) {
		t.Fatalf("err=%v", err)
	}
	if evs := rec.take(); len(evs) != 0 {
		t.Fatalf("events=%v", evs)
	}
}

func TestSetModeAndRefcount(t *testing.T) {
	d, chip, clk, rec := build(t, types.BarometerParams{Bus: "i2c1"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	res, err := d.Control(d.addrBaro, "set_mode", types.SetMode{Mode: "faster"})
	if err != nil {
		t.Fatalf("set_mode: %v", err)
	}
	if st := res.(types.BarometerState); st.Mode != "faster" || st.PeriodMs != 20 {
		t.Fatalf("state=%+v", st)
	}
	if got := d.PollInterval(); got != 20*time.Millisecond {
		t.Fatalf("PollInterval=%v", got)
	}
	// A bare string payload is accepted too.
	if _, err := d.Control(d.addrBaro, "set_mode", "fast"); err != nil {
		t.Fatalf("set_mode string: %v", err)
	}
	if _, err := d.Control(d.addrBaro, "set_mode", "warp"); errcode.Of(err) != errcode.InvalidMode {
		t.Fatalf("bad mode err=%v", err)
	}

	if _, err := d.Control(d.addrBaro, "release", nil); !errors.Is(err, errcode.NotInUse) {
		t.Fatalf("release err=%v", err)
	}
	if _, err := d.Control(d.addrBaro, "use", nil); err != nil {
		t.Fatalf("use: %v", err)
	}
	res, _ = d.Control(d.addrBaro, "status", nil)
	if st := res.(types.BarometerState); st.Users != 2 {
		t.Fatalf("users=%d", st.Users)
	}
	if _, err := d.Control(d.addrBaro, "release", nil); err != nil {
		t.Fatalf("release: %v", err)
	}

	rec.take()
	chip.ClearWrites()
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w := chip.Writes(); len(w) != 1 || w[0].Reg != 0x1B || w[0].Val != 0 {
		t.Fatalf("close writes=%v", w)
	}
	if clk.Active() != 0 {
		t.Fatalf("timers still active: %d", clk.Active())
	}
}

func TestUnsupportedVerb(t *testing.T) {
	d, _, _, _ := build(t, types.BarometerParams{Bus: "i2c1"})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := d.Control(d.addrBaro, "calibrate", nil); !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("err=%v", err)
	}
}
