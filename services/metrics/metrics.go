// Package metrics exports HAL barometer telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/types"
)

const (
	serviceName      = "metrics"
	defaultNamespace = "barometer"
	shutdownTimeout  = 2 * time.Second
)

type collectors struct {
	pressure    *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	readings    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	up          *prometheus.GaugeVec
	users       *prometheus.GaugeVec
	period      *prometheus.GaugeVec
	samples     *prometheus.GaugeVec
}

func newCollectors(ns string) *collectors {
	dev := []string{"device"}
	return &collectors{
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "pressure_pascals",
			Help: "Last published pressure.",
		}, dev),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "temperature_celsius",
			Help: "Last published temperature.",
		}, dev),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "readings_total",
			Help: "Values published, by kind.",
		}, []string{"device", "kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "errors_total",
			Help: "Degraded status reports, by error code.",
		}, []string{"device", "code"}),
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "up",
			Help: "1 while the capability link is up.",
		}, []string{"device", "kind"}),
		users: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "users",
			Help: "Driver use references.",
		}, dev),
		period: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "sampling_period_seconds",
			Help: "Active sampling period, 0 when off.",
		}, dev),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "driver_samples",
			Help: "Measurements decoded by the driver since start.",
		}, dev),
	}
}

func (c *collectors) register(r prometheus.Registerer) {
	r.MustRegister(c.pressure, c.temperature, c.readings, c.errors, c.up, c.users, c.period, c.samples)
}

// Service waits for "config/metrics", then mirrors HAL env capabilities into
// gauges and counters and, if configured, serves them over HTTP.
type Service struct {
	// Listen, if set, replaces the listen address from the config.
	Listen string

	conn *bus.Connection
	log  logrus.FieldLogger
	reg  *prometheus.Registry
	c    atomic.Pointer[collectors]
	srv  *http.Server
}

func New(conn *bus.Connection, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		conn: conn,
		log:  log.WithField("service", serviceName),
		reg:  prometheus.NewRegistry(),
	}
}

// Handler serves the registry in the Prometheus text format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", serviceName))
	defer s.conn.Unsubscribe(cfgSub)

	var cfg types.MetricsConfig
	select {
	case <-ctx.Done():
		return
	case m, ok := <-cfgSub.Channel():
		if !ok {
			return
		}
		c, ok := m.Payload.(types.MetricsConfig)
		if !ok {
			s.log.Warnf("ignoring config payload %T", m.Payload)
		}
		cfg = c
	}
	s.setup(cfg)
	defer s.stopHTTP()

	valSub := s.conn.Subscribe(bus.T("hal", "cap", "env", bus.SingleWild, bus.SingleWild, "value"))
	statSub := s.conn.Subscribe(bus.T("hal", "cap", "env", bus.SingleWild, bus.SingleWild, "status"))
	defer s.conn.Unsubscribe(valSub)
	defer s.conn.Unsubscribe(statSub)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
		case m, ok := <-valSub.Channel():
			if !ok {
				return
			}
			s.observeValue(m)
		case m, ok := <-statSub.Channel():
			if !ok {
				return
			}
			s.observeStatus(m)
		}
	}
}

func (s *Service) setup(cfg types.MetricsConfig) {
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	c := newCollectors(ns)
	c.register(s.reg)
	s.c.Store(c)
	if s.Listen != "" {
		cfg.Listen = s.Listen
	}
	if cfg.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	s.srv = &http.Server{Addr: cfg.Listen, Handler: mux}
	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("metrics listener stopped")
		}
	}(s.srv)
	s.log.WithField("listen", cfg.Listen).Info("serving /metrics")
}

// current returns the collectors, or nil before configuration.
func (s *Service) current() *collectors { return s.c.Load() }

func (s *Service) stopHTTP() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

// hal/cap/env/<kind>/<name>/<leaf>
func capName(t bus.Topic) (kind, name string) {
	kind, _ = t.At(3).(string)
	name, _ = t.At(4).(string)
	return kind, name
}

func (s *Service) observeValue(m *bus.Message) {
	c := s.current()
	kind, name := capName(m.Topic)
	switch v := m.Payload.(type) {
	case types.PressureValue:
		c.pressure.WithLabelValues(name).Set(float64(v.MilliPa) / 1000)
		c.readings.WithLabelValues(name, kind).Inc()
	case types.TemperatureValue:
		c.temperature.WithLabelValues(name).Set(float64(v.MilliC) / 1000)
		c.readings.WithLabelValues(name, kind).Inc()
	case types.BarometerState:
		c.users.WithLabelValues(name).Set(float64(v.Users))
		c.period.WithLabelValues(name).Set(float64(v.PeriodMs) / 1000)
		c.samples.WithLabelValues(name).Set(float64(v.Samples))
	}
}

func (s *Service) observeStatus(m *bus.Message) {
	st, ok := m.Payload.(types.CapabilityStatus)
	if !ok {
		return
	}
	c := s.current()
	kind, name := capName(m.Topic)
	up := 0.0
	if st.Link == types.LinkUp {
		up = 1
	}
	c.up.WithLabelValues(name, kind).Set(up)
	if st.Link == types.LinkDegraded && st.Error != "" {
		c.errors.WithLabelValues(name, st.Error).Inc()
	}
}
