package heartbeat

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/types"
)

const defaultInterval = 30 * time.Second

var topicConfigHeartbeat = bus.T("config", "heartbeat")

// Config is the payload of "config/heartbeat". Interval is in seconds.
type Config struct {
	Interval float64 `json:"interval"`
}

// Service logs the newest barometer reading on every tick.
type Service struct {
	log logrus.FieldLogger
	now func() time.Time

	pressure    map[string]types.PressureValue
	temperature map[string]types.TemperatureValue
}

func New(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		log:         log.WithField("service", "heartbeat"),
		now:         time.Now,
		pressure:    map[string]types.PressureValue{},
		temperature: map[string]types.TemperatureValue{},
	}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	pSub := conn.Subscribe(bus.T("hal", "cap", "env", "pressure", bus.SingleWild, "value"))
	tSub := conn.Subscribe(bus.T("hal", "cap", "env", "temperature", bus.SingleWild, "value"))
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(pSub)
	defer conn.Unsubscribe(tSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return
		case <-tick.C:
			s.beat()
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.log.Info("connection closed")
				return
			}
			if iv := interval(msg.Payload); iv > 0 {
				tick.Reset(iv)
				s.log.WithField("interval", iv).Info("interval set")
			}
		case msg, ok := <-pSub.Channel():
			if !ok {
				s.log.Info("connection closed")
				return
			}
			if v, ok := msg.Payload.(types.PressureValue); ok {
				name, _ := msg.Topic.At(4).(string)
				s.pressure[name] = v
			}
		case msg, ok := <-tSub.Channel():
			if !ok {
				s.log.Info("connection closed")
				return
			}
			if v, ok := msg.Payload.(types.TemperatureValue); ok {
				name, _ := msg.Topic.At(4).(string)
				s.temperature[name] = v
			}
		}
	}
}

func interval(p any) time.Duration {
	switch v := p.(type) {
	case Config:
		return time.Duration(v.Interval * float64(time.Second))
	case map[string]any:
		if f, ok := v["interval"].(float64); ok {
			return time.Duration(f * float64(time.Second))
		}
	}
	return 0
}

// beat logs one line per device that has published a pressure.
func (s *Service) beat() {
	if len(s.pressure) == 0 {
		s.log.Info("no readings yet")
		return
	}
	for name, p := range s.pressure {
		f := logrus.Fields{
			"device":   name,
			"pressure": humanize.SI(float64(p.MilliPa)/1000, "Pa"),
			"updated":  humanize.RelTime(time.Unix(0, p.TS), s.now(), "ago", "from now"),
		}
		if t, ok := s.temperature[name]; ok {
			f["temperature_c"] = float64(t.MilliC) / 1000
		}
		s.log.WithFields(f).Info("heartbeat")
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
