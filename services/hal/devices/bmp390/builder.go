package bmp390dev

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"

	"barocode-go/drivers/bmp390"
	"barocode-go/errcode"
	"barocode-go/services/hal/internal/core"
	"barocode-go/services/hal/internal/util"
	"barocode-go/types"
	"barocode-go/x/mathx"
)

func init() { core.RegisterBuilder("bmp390", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.BarometerParams](in.Params)
	if code != "" || p.Bus == "" {
		return nil, errcode.InvalidParams
	}
	if p.Mode == "" {
		p.Mode = bmp390.Slow.String()
	}
	start, err := bmp390.ParseIntent(p.Mode)
	if err != nil {
		return nil, errcode.InvalidParams
	}
	if in.Res.Buses == nil {
		return nil, errcode.UnknownBus
	}
	i2c, lock, err := in.Res.Buses.I2C(p.Bus)
	if err != nil {
		return nil, err
	}
	if p.Addr == 0 {
		p.Addr = bmp390.Address
	}
	log := in.Res.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"device": in.ID, "bus": p.Bus})

	cfg := bmp390.Config{
		Address: p.Addr,
		BusLock: lock,
		Logger:  log,
		Clock:   in.Res.Clock,
	}
	if start != bmp390.Disabled {
		cfg.DefaultIntent = start
	}
	d := &Device{
		id:     in.ID,
		params: p,
		start:  start,
		pub:    in.Res.Pub,
		log:    log,
		drv:    bmp390.New(i2c, cfg),
	}
	d.addrPress = core.CapAddr{Domain: "env", Kind: string(types.KindPressure), Name: in.ID}
	d.addrTemp = core.CapAddr{Domain: "env", Kind: string(types.KindTemperature), Name: in.ID}
	d.addrBaro = core.CapAddr{Domain: "env", Kind: string(types.KindBarometer), Name: in.ID}
	return d, nil
}

// Device exposes one BMP390 as pressure, temperature and barometer
// capabilities. The HAL holds one driver reference while the configured
// mode is not "off"; use/start/release add and drop client references.
type Device struct {
	id     string
	params types.BarometerParams
	start  bmp390.Intent
	pub    core.EventEmitter
	log    logrus.FieldLogger

	drv      *bmp390.Device
	revision byte
	held     bool // the HAL's own reference
	clients  int

	lastAt time.Time // timestamp of the last published reading

	addrPress core.CapAddr
	addrTemp  core.CapAddr
	addrBaro  core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	info := types.Info{
		SchemaVersion: 1, Driver: "bmp390",
		Detail: types.BarometerInfo{
			Sensor:   "bmp390",
			Addr:     d.params.Addr,
			Bus:      d.params.Bus,
			Revision: d.revision,
		},
	}
	return []core.CapabilitySpec{
		{Domain: "env", Kind: types.KindPressure, Name: d.id, Info: info},
		{Domain: "env", Kind: types.KindTemperature, Name: d.id, Info: info},
		{Domain: "env", Kind: types.KindBarometer, Name: d.id, Info: info},
	}
}

// Init probes the chip and starts sampling in the configured mode.
func (d *Device) Init(ctx context.Context) error {
	if err := d.drv.Init(); err != nil {
		return err
	}
	rev, err := d.drv.Revision()
	if err != nil {
		return err
	}
	d.revision = rev
	if d.start != bmp390.Disabled {
		// StartSampling keeps the reference even when the preset fails.
		d.held = true
		if err := d.drv.StartSampling(); err != nil {
			d.log.WithError(err).Warn("start sampling failed")
		}
	}
	d.emitState()
	return nil
}

// PollInterval follows the active sampling period unless overridden.
func (d *Device) PollInterval() time.Duration {
	st := d.drv.Status()
	if st.Intent == bmp390.Disabled {
		return 0
	}
	if d.params.ReadIntervalMs > 0 {
		return time.Duration(d.params.ReadIntervalMs) * time.Millisecond
	}
	return st.Period
}

// Control runs verb. Driver errors come back wrapped with the verb and
// their code.
func (d *Device) Control(addr core.CapAddr, verb string, payload any) (any, error) {
	res, err := d.control(addr, verb, payload)
	var c errcode.Code
	if err != nil && !errors.As(err, &c) {
		return nil, errcode.Wrap(verb, err)
	}
	return res, err
}

func (d *Device) control(addr core.CapAddr, verb string, payload any) (any, error) {
	switch verb {
	case "read":
		return d.read(addr)
	case "status":
		return d.state(), nil
	case "use":
		d.drv.Use()
		d.clients++
	case "start":
		d.clients++
		if err := d.drv.StartSampling(); err != nil {
			d.emitState()
			return nil, err
		}
	case "release":
		if d.clients == 0 {
			return nil, errcode.NotInUse
		}
		d.clients--
		if err := d.drv.Release(); err != nil {
			d.emitState()
			return nil, err
		}
	case "set_mode":
		intent, err := parseMode(payload)
		if err != nil {
			return nil, err
		}
		if err := d.drv.ChangeMode(intent); err != nil {
			d.emitState()
			return nil, err
		}
	case "reset":
		if err := d.drv.Reset(); err != nil {
			d.emitState()
			return nil, err
		}
	case "flush_fifo":
		if err := d.drv.FlushFIFO(); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, errcode.Unsupported
	}
	st := d.state()
	d.pub.Emit(core.Event{Addr: d.addrBaro, Payload: st})
	return st, nil
}

func (d *Device) Close() error {
	if !d.held || !d.drv.Initialized() {
		return nil
	}
	d.held = false
	return d.drv.Release()
}

func (d *Device) read(addr core.CapAddr) (any, error) {
	r, err := d.drv.ReadData()
	if err != nil {
		if !errors.Is(err, bmp390.ErrNotReady) && !errors.Is(err, bmp390.ErrSensorOff) {
			code := string(errcode.MapDriverErr(err))
			d.pub.Emit(core.Event{Addr: d.addrPress, Err: code})
			d.pub.Emit(core.Event{Addr: d.addrTemp, Err: code})
		}
		return nil, err
	}
	pv, tv := convert(r)
	if !r.At.Equal(d.lastAt) {
		d.lastAt = r.At
		d.pub.Emit(core.Event{Addr: d.addrPress, Payload: pv, TS: pv.TS})
		d.pub.Emit(core.Event{Addr: d.addrTemp, Payload: tv, TS: tv.TS})
	}
	switch types.Kind(addr.Kind) {
	case types.KindPressure:
		return pv, nil
	case types.KindTemperature:
		return tv, nil
	}
	return types.BarometerReading{Pressure: pv, Temperature: tv, Validity: r.Validity.String()}, nil
}

func (d *Device) state() types.BarometerState {
	st := d.drv.Status()
	s := types.BarometerState{
		Mode:       st.Intent.String(),
		PeriodMs:   util.Millis(st.Period),
		Users:      st.Users,
		Configured: st.Configured,
		Validity:   st.Validity.String(),
		Samples:    st.Samples,
	}
	if st.Intent != bmp390.Disabled {
		s.Acquisition = st.Acquisition.String()
	}
	return s
}

func (d *Device) emitState() {
	d.pub.Emit(core.Event{Addr: d.addrBaro, Payload: d.state()})
}

func parseMode(payload any) (bmp390.Intent, error) {
	mode, ok := payload.(string)
	if !ok {
		m, code := core.As[types.SetMode](payload)
		if code != "" {
			return 0, code
		}
		mode = m.Mode
	}
	return bmp390.ParseIntent(mode)
}

// convert scales a reading to the published integer units.
func convert(r bmp390.Reading) (types.PressureValue, types.TemperatureValue) {
	ts := r.At.UnixNano()
	return types.PressureValue{
			MilliPa: int64(r.Pressure / physic.MilliPascal),
			TS:      ts,
		}, types.TemperatureValue{
			MilliC: mathx.Int32((r.Temperature - physic.ZeroCelsius) / physic.MilliKelvin),
			TS:     ts,
		}
}
