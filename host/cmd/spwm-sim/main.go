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
	"inverter/host/server"
	"inverter/host/sim"
)

const (
	projectName = "SPWM inverter simulator"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

// simService adapts the simulator to the HTTP server
type simService struct {
	sim *sim.Simulator
}

func (s simService) Status() interface{} {
	return s.sim.Status()
}

func (s simService) Tables() *core.PhaseTables {
	return s.sim.Inverter().Tables()
}

func main() {
	var levelFlag string
	var configPath string
	var clock string
	var mode string
	var cycles int
	var serverHost string
	var serverPort int
	var noServer bool

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the JSON configuration file")
	pflag.StringVar(&clock, "clock", "", "Simulator clock (wall|virtual)")
	pflag.StringVar(&mode, "mode", "", "Modulation mode (fundamental|third-harmonic)")
	pflag.IntVar(&cycles, "cycles", -1, "Electrical cycles to run on the virtual clock (0 runs until stopped)")
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

	cfg, err := loadConfig(configPath, clock, mode, cycles)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	simulator, err := sim.New(cfg.Inverter, cfg.Simulator, logger)
	if err != nil {
		Exitf("Failed to initialize simulator: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := simulator.Run(ctx)
		if cfg.Simulator.Clock == config.ClockVirtual && noServer {
			// Finite virtual runs end the process
			cancel()
		}
		return err
	})
	if !noServer {
		httpServer, err := server.New(server.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}, logger, simService{sim: simulator})
		if err != nil {
			Exitf("Failed to initialize server: %v\n", err)
		}
		g.Go(func() error { return httpServer.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		Exitf("Simulator run failed: %#v\n", err)
	}

	st := simulator.Status()
	logger.Info().
		Uint32("ticks", st.Stats.Ticks).
		Uint32("applied", st.Stats.Applied).
		Uint32("overruns", st.Stats.Overruns).
		Uint32("clamped", st.Stats.Clamped).
		Msg("Simulator stopped")
}

// loadConfig reads the configuration file, if any, and applies flag overrides
func loadConfig(path, clock, mode string, cycles int) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, maskAny(err)
		}
		cfg = loaded
	}
	if clock != "" {
		cfg.Simulator.Clock = clock
	}
	if mode != "" {
		cfg.Inverter.Mode = mode
	}
	if cycles >= 0 {
		cfg.Simulator.Cycles = cycles
	}
	if err := cfg.Inverter.Validate(); err != nil {
		return nil, maskAny(err)
	}
	return cfg, nil
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
