// Command barometerd runs the BMP390 HAL, metrics exporter and console as
// a system daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/takama/daemon"

	"barocode-go/bus"
	"barocode-go/services/config"
	"barocode-go/services/console"
	"barocode-go/services/hal"
	"barocode-go/services/heartbeat"
	"barocode-go/services/metrics"
)

const (
	name        = "barometerd"
	description = "BMP390 barometer service"
	busQueueLen = 64
)

type options struct {
	config   string
	target   string
	backend  string
	logLevel string
	metrics  string
}

// Service has embedded daemon
type Service struct {
	daemon.Daemon
	log *logrus.Logger
}

// Manage by daemon commands or run the daemon
func (s *Service) Manage(args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var o options
	fs.StringVar(&o.config, "config", "", "JSON file overriding the embedded config")
	fs.StringVar(&o.target, "target", "linux", "embedded config ("+strings.Join(config.Targets(), ", ")+")")
	fs.StringVar(&o.backend, "bus", hal.BackendPeriph, "default I2C backend: periph, embd or sim")
	fs.StringVar(&o.logLevel, "log-level", "info", "panic, fatal, error, warn, info, debug or trace")
	fs.StringVar(&o.metrics, "metrics", "", "override the metrics listen address")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	usage := "Usage: " + name + " [flags] install | remove | start | stop | status"
	// if received any kind of command, do it
	if fs.NArg() > 0 {
		switch fs.Arg(0) {
		case "install":
			return s.Install(args[:len(args)-fs.NArg()]...)
		case "remove":
			return s.Remove()
		case "start":
			return s.Start()
		case "stop":
			return s.Stop()
		case "status":
			return s.Status()
		default:
			return usage, nil
		}
	}

	lvl, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return "", err
	}
	s.log.SetLevel(lvl)
	if !hal.HasBackend(o.backend) {
		return "", fmt.Errorf("bus backend %q not available on this platform", o.backend)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	run(ctx, s.log, o)
	return "stopped", nil
}

func run(ctx context.Context, log *logrus.Logger, o options) {
	b := bus.NewBus(busQueueLen)

	halSvc := hal.New(b.NewConnection("hal"), hal.Options{Logger: log, Backend: o.backend})
	halDone := make(chan struct{})
	go func() { halSvc.Run(ctx); close(halDone) }()

	ms := metrics.New(b.NewConnection("metrics"), log)
	ms.Listen = o.metrics
	go ms.Run(ctx)
	go console.New(b.NewConnection("console"), os.Stdin, os.Stdout, log).Run(ctx)
	_ = heartbeat.New(log).Start(ctx, b.NewConnection("heartbeat"))

	cfgSvc := config.NewConfigService(o.config, log)
	cfgSvc.Start(context.WithValue(ctx, config.CtxDeviceKey, o.target), b.NewConnection("config"))

	log.WithFields(logrus.Fields{"target": o.target, "bus": o.backend}).Info("started")
	<-ctx.Done()
	<-halDone
	log.Info("stopped")
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		log.WithError(err).Fatal("daemon setup")
	}
	service := &Service{Daemon: srv, log: log}
	status, err := service.Manage(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal(status)
	}
	fmt.Println(status)
}
