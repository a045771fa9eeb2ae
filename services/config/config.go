package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/types"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for the target name
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(target string) ([]byte, bool) {
	b, ok := embeddedConfigs[target]
	return b, ok
}

// Targets lists the embedded configurations.
func Targets() []string {
	out := make([]string, 0, len(embeddedConfigs))
	for k := range embeddedConfigs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	// Path, if set, names a JSON file whose top-level keys replace the
	// embedded ones.
	Path string
	log  logrus.FieldLogger
}

func NewConfigService(path string, log logrus.FieldLogger) *ConfigService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ConfigService{Name: serviceName, Path: path, log: log.WithField("service", serviceName)}
}

// Load merges the embedded config for target with the override file.
func (s *ConfigService) Load(target string) (map[string]json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if raw, ok := EmbeddedConfigLookup(target); ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("embedded config %q: %w", target, err)
		}
	} else if s.Path == "" {
		return nil, errors.New("no embedded config for target: " + target)
	}
	if s.Path != "" {
		raw, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, err
		}
		var over map[string]json.RawMessage
		if err := json.Unmarshal(raw, &over); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Path, err)
		}
		for k, v := range over {
			m[k] = v
		}
	}
	return m, nil
}

// decodeKey gives the well-known sections their payload types so that
// subscribers can assert them directly.
func decodeKey(key string, raw json.RawMessage) (any, error) {
	var err error
	switch key {
	case "hal":
		var v types.HALConfig
		err = json.Unmarshal(raw, &v)
		return v, err
	case "metrics":
		var v types.MetricsConfig
		err = json.Unmarshal(raw, &v)
		return v, err
	case "console":
		var v types.ConsoleConfig
		err = json.Unmarshal(raw, &v)
		return v, err
	}
	var v any
	err = json.Unmarshal(raw, &v)
	return v, err
}

// publishConfig loads the target's config and publishes each key retained on
// config/<key>.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	target, _ := ctx.Value(CtxDeviceKey).(string)
	if target == "" {
		return errors.New("missing target in context")
	}
	m, err := s.Load(target)
	if err != nil {
		return err
	}
	for k, raw := range m {
		v, err := decodeKey(k, raw)
		if err != nil {
			return fmt.Errorf("config key %q: %w", k, err)
		}
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
		s.log.WithField("key", k).Debug("published")
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.log.WithError(err).Error("config not published")
		}
	}()
}
