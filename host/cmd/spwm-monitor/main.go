package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"inverter/core"
	"inverter/host/config"
	"inverter/host/monitor"
	"inverter/host/serial"
	"inverter/host/server"
	"inverter/protocol"
)

const (
	projectName = "SPWM inverter monitor"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

// monitorStatus is served on /status
type monitorStatus struct {
	Device  string                `json:"device"`
	Decoder protocol.DecoderStats `json:"decoder"`
	Reports []monitor.Result      `json:"reports"`
	Error   string                `json:"error,omitempty"`
}

// monitorService adapts the monitor to the HTTP server
type monitorService struct {
	device string
	mon    *monitor.Monitor
}

func (s monitorService) Status() interface{} {
	st := monitorStatus{
		Device:  s.device,
		Decoder: s.mon.Stats(),
		Reports: s.mon.Results(),
	}
	if err := s.mon.LastError(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Tables rebuilds the tables of the last checked report
func (s monitorService) Tables() *core.PhaseTables {
	results := s.mon.Results()
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	strategy, err := core.StrategyFor(last.Config)
	if err != nil {
		return nil
	}
	tables, err := core.BuildTables(last.Config.SampleCount, last.Timing.Gain, strategy)
	if err != nil {
		return nil
	}
	return tables
}

func main() {
	var levelFlag string
	var configPath string
	var device string
	var serverHost string
	var serverPort int
	var noServer bool

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the JSON configuration file")
	pflag.StringVarP(&device, "device", "d", "", "Serial device the firmware reports on")
	pflag.StringVar(&serverHost, "host", "", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", 0, "Port the HTTP server will listen on")
	pflag.BoolVar(&noServer, "no-server", false, "Do not serve metrics and status over HTTP")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}
	logger = logger.Level(level)

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			Exitf("Failed to load configuration: %v\n", err)
		}
	}
	if device != "" {
		cfg.Monitor.Device = device
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	port, err := openPort(cfg.Monitor)
	if err != nil {
		Exitf("Failed to open serial port: %v\n", err)
	}
	mon := monitor.New(logger.With().Str("device", cfg.Monitor.Device).Logger())

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := mon.Run(ctx, port)
		// Port closed or failed, nothing left to serve
		cancel()
		return err
	})
	if !noServer {
		httpServer, err := server.New(server.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}, logger, monitorService{device: cfg.Monitor.Device, mon: mon})
		if err != nil {
			Exitf("Failed to initialize server: %v\n", err)
		}
		g.Go(func() error { return httpServer.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		Exitf("Monitor run failed: %#v\n", err)
	}
}

// openPort opens the serial device and drops anything buffered before we started
func openPort(cfg config.MonitorConfig) (serial.Port, error) {
	port, err := serial.Open(&serial.Config{
		Device:      cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, maskAny(err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, maskAny(err)
	}
	return port, nil
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
