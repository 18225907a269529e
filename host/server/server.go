// Package server exposes metrics and the state of a running inverter over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inverter/core"
)

var maskAny = errors.WithStack

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// Service provides the state served by the HTTP server.
type Service interface {
	// Status returns a JSON encodable snapshot
	Status() interface{}
	// Tables returns the active phase tables, nil when none are known
	Tables() *core.PhaseTables
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log     zerolog.Logger
	service Service
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, service Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		service: service,
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	router.GET("/status", s.handleStatus)
	router.GET("/tables", s.handleTables)
	router.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	return router
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler: s.Router(),
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return maskAny(err)
		}
	}

	log.Info().Msg("Closing server")
	httpSrv.Shutdown(context.Background())
	return nil
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Status())
}

// TablesResponse is the body of GET /tables
type TablesResponse struct {
	Strategy string  `json:"strategy"`
	Samples  int     `json:"samples"`
	Phases   [][]int `json:"phases"`
}

func (s *Server) handleTables(c echo.Context) error {
	tables := s.service.Tables()
	if tables == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no tables available")
	}

	resp := TablesResponse{
		Strategy: tables.Strategy,
		Samples:  tables.Len(),
	}
	if p := c.QueryParam("phase"); p != "" {
		phase, err := strconv.Atoi(p)
		if err != nil || phase < 0 || phase >= core.PhaseCount {
			return echo.NewHTTPError(http.StatusBadRequest, "phase must be 0, 1 or 2")
		}
		resp.Phases = [][]int{tables.Phase(phase).Samples()}
	} else {
		for phase := 0; phase < core.PhaseCount; phase++ {
			resp.Phases = append(resp.Phases, tables.Phase(phase).Samples())
		}
	}
	return c.JSON(http.StatusOK, resp)
}
