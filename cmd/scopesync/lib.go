package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/scopesync/comm"
	"github.com/nasa-jpl/scopesync/engine"
	"github.com/nasa-jpl/scopesync/pv"
	"github.com/nasa-jpl/scopesync/rohde"
	"github.com/nasa-jpl/scopesync/scpi"
	"github.com/nasa-jpl/scopesync/server"
	"github.com/nasa-jpl/scopesync/server/middleware/locker"
	"github.com/nasa-jpl/scopesync/util"
)

// Config holds everything needed to reach the scope and serve its variables
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Prefix is the URL stem every route is served under, e.g. "/scope"
	Prefix string `yaml:"Prefix" koanf:"Prefix"`

	// Resource is the network or filesystem address of the scope,
	// e.g. 192.168.100.123:5025, or /dev/ttyUSB0 for a serial link
	Resource string `yaml:"Resource" koanf:"Resource"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`
	Baud   int  `yaml:"Baud" koanf:"Baud"`

	// Channels is the number of analog inputs on the scope
	Channels int `yaml:"Channels" koanf:"Channels"`

	// Timeout bounds each read and write on the connection
	Timeout time.Duration `yaml:"Timeout" koanf:"Timeout"`

	PollInterval     time.Duration `yaml:"PollInterval" koanf:"PollInterval"`
	PeriodicInterval time.Duration `yaml:"PeriodicInterval" koanf:"PeriodicInterval"`
	ReadyAttempts    int           `yaml:"ReadyAttempts" koanf:"ReadyAttempts"`
	ReadyInterval    time.Duration `yaml:"ReadyInterval" koanf:"ReadyInterval"`

	// FullScaleDivisions is the number of vertical divisions the int16 range spans
	FullScaleDivisions float64 `yaml:"FullScaleDivisions" koanf:"FullScaleDivisions"`

	// ByteOrder is "little" or "big"
	ByteOrder string `yaml:"ByteOrder" koanf:"ByteOrder"`

	CompleteStates []string `yaml:"CompleteStates" koanf:"CompleteStates"`
	StoppedStates  []string `yaml:"StoppedStates" koanf:"StoppedStates"`
	WaitingStates  []string `yaml:"WaitingStates" koanf:"WaitingStates"`

	// AutoStart begins acquiring as soon as the initial sync is done
	AutoStart bool `yaml:"AutoStart" koanf:"AutoStart"`

	// Verbosity is 0 for info and up, 1 or 2 for debug output
	Verbosity int `yaml:"Verbosity" koanf:"Verbosity"`
}

// DefaultConfig returns the configuration used when nothing is given
func DefaultConfig() Config {
	ec := engine.DefaultConfig()
	return Config{
		Addr:               ":8000",
		Prefix:             "/scope",
		Baud:               comm.DefaultBaud,
		Channels:           ec.Channels,
		Timeout:            3 * time.Second,
		PollInterval:       ec.PollInterval,
		PeriodicInterval:   ec.PeriodicInterval,
		ReadyAttempts:      ec.ReadyAttempts,
		ReadyInterval:      ec.ReadyInterval,
		FullScaleDivisions: ec.FullScaleDivisions,
		ByteOrder:          "little",
		CompleteStates:     ec.CompleteStates,
		StoppedStates:      ec.StoppedStates,
		WaitingStates:      ec.WaitingStates,
	}
}

// ParseByteOrder converts "little" or "big" to a binary.ByteOrder
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "little", "lsbfirst", "":
		return binary.LittleEndian, nil
	case "big", "msbfirst":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q, must be little or big", s)
	}
}

// EngineConfig extracts the engine's part of the configuration
func (c Config) EngineConfig() (engine.Config, error) {
	order, err := ParseByteOrder(c.ByteOrder)
	if err != nil {
		return engine.Config{}, err
	}
	if c.Channels < 1 {
		return engine.Config{}, fmt.Errorf("channels must be at least 1, got %d", c.Channels)
	}
	if c.ReadyAttempts < 1 {
		return engine.Config{}, fmt.Errorf("ready attempts must be at least 1, got %d", c.ReadyAttempts)
	}
	for _, st := range c.CompleteStates {
		if util.ContainsString(c.StoppedStates, st) || util.ContainsString(c.WaitingStates, st) {
			return engine.Config{}, fmt.Errorf("trigger status %s is listed in more than one set", st)
		}
	}
	for _, st := range c.StoppedStates {
		if util.ContainsString(c.WaitingStates, st) {
			return engine.Config{}, fmt.Errorf("trigger status %s is listed in more than one set", st)
		}
	}
	return engine.Config{
		Channels:           c.Channels,
		Resource:           c.Resource,
		FullScaleDivisions: c.FullScaleDivisions,
		ByteOrder:          order,
		PollInterval:       c.PollInterval,
		PeriodicInterval:   c.PeriodicInterval,
		ReadyAttempts:      c.ReadyAttempts,
		ReadyInterval:      c.ReadyInterval,
		CompleteStates:     c.CompleteStates,
		StoppedStates:      c.StoppedStates,
		WaitingStates:      c.WaitingStates,
	}, nil
}

// BuildMux serves the store's variables, the lock, and metrics under c.Prefix
func BuildMux(c Config, store *pv.Store, gatherer prometheus.Gatherer) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	lock := locker.New()
	w := pv.NewHTTPWrapper(store)
	locker.Inject(w, lock)
	rt := w.RT()
	rt[server.MethodPath{Method: http.MethodGet, Path: "/metrics"}] = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP

	submux := chi.NewRouter()
	submux.Use(lock.Check)
	rt.Bind(submux)
	stem := server.SubMuxSanitize(c.Prefix)
	root.Mount(stem, submux)

	// endpoints is a list of all endpoints, less the /endpoints route itself
	endpoints := []string{}
	for _, route := range rt.Endpoints() {
		parts := strings.SplitN(route, " ", 2)
		endpoints = append(endpoints, parts[0]+" "+strings.TrimSuffix(stem, "/")+parts[1])
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		server.EncodeAndRespond(w, endpoints)
	})
	return root
}

// connect opens the scope's connection through a single-connection pool,
// so a connection that loses its place in the reply stream is redialed
func connect(c Config) (*scpi.SCPI, error) {
	if c.Resource == "" {
		return nil, comm.ErrNoAddress
	}
	order, err := ParseByteOrder(c.ByteOrder)
	if err != nil {
		return nil, err
	}
	pool := comm.NewPool(1, 0, func() (io.ReadWriteCloser, error) {
		rwc, err := comm.Open(c.Resource, c.Serial, c.Baud, c.Timeout)
		if err != nil {
			return nil, err
		}
		return comm.NewTimeout(rwc, c.Timeout), nil
	})
	inst := scpi.New(pool, order)
	if err = inst.Connect(); err != nil {
		inst.Close()
		return nil, err
	}
	return inst, nil
}

func newSpinner(msg string) *yacspin.Spinner {
	spin, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return nil
	}
	return spin
}

// run connects, syncs, serves and drives the main loop.  The return value
// is the process exit code.
func run(c Config) int {
	logger := util.NewLogger(os.Stderr, "", c.Verbosity)
	ec, err := c.EngineConfig()
	if err != nil {
		logger.Error("invalid configuration: %v", err)
		return 1
	}

	spin := newSpinner("connecting to " + c.Resource)
	if spin != nil {
		spin.Start()
	}
	stopSpin := func(failed bool) {
		if spin == nil {
			return
		}
		if failed {
			spin.StopFail()
		} else {
			spin.Stop()
		}
	}

	inst, err := connect(c)
	if err != nil {
		stopSpin(true)
		logger.Error("connecting to %s: %v", c.Resource, err)
		return 1
	}
	defer inst.Close()

	if spin != nil {
		spin.Message("synchronizing settings")
	}
	reg := prometheus.NewRegistry()
	store := pv.NewStore()
	store.AxisFor = rohde.AxisFor
	e, err := engine.New(inst, store, ec, logger, engine.NewMetrics(reg))
	if err != nil {
		stopSpin(true)
		logger.Error("%v", err)
		return 1
	}
	if err = e.Init(); err != nil {
		stopSpin(true)
		logger.Error("initial sync: %v", err)
		return 1
	}
	stopSpin(false)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{Addr: c.Addr, Handler: BuildMux(c, store, reg)}
	go func() {
		log.Println("now listening for requests at ", c.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server: %v", err)
			cancel()
		}
	}()

	if c.AutoStart {
		if err := e.Start(ctx); err != nil {
			logger.Error("starting: %v", err)
		}
	}
	err = e.Run(ctx)

	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	srv.Shutdown(shutdown)

	var fatal *engine.FatalError
	if errors.As(err, &fatal) {
		logger.Error("%v", fatal)
		return 1
	}
	return 0
}
