/*Package engine keeps a process's view of an oscilloscope in sync with the
instrument and runs the acquire-on-trigger loop.

One Engine owns the parameter registry, the acquisition state and the
trigger-status bookkeeping.  The main loop (Run) polls the trigger, reads out
waveforms when it completes and periodically refreshes the timing
parameters.  Setters arrive concurrently from the control plane; every path
to the instrument goes through the exclusive region of the scpi.Instrument.
*/
package engine

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/rohde"
	"github.com/nasa-jpl/scopesync/scpi"
	"github.com/nasa-jpl/scopesync/util"
)

// FailureLimit is the number of consecutive transport failures of one kind
// after which the engine exits
const FailureLimit = 2

// Bridge is the control plane the engine publishes to
type Bridge interface {
	// Declare makes a parameter known.  set is nil for read-only parameters
	// and otherwise is invoked when a client writes the parameter.
	Declare(p param.Parameter, set func(value interface{}) error)

	// Publish posts a value.  If onlyIfChanged, nothing is posted when the
	// value equals the one last published.
	Publish(name string, value interface{}, ts time.Time, onlyIfChanged bool)

	// Value returns the value last published
	Value(name string) (interface{}, bool)
}

// RunState is the control-plane state of the engine
type RunState int32

const (
	// Stopped engines do not poll the trigger
	Stopped RunState = iota

	// Running engines poll the trigger and acquire
	Running

	// Exiting engines end the main loop at the next iteration
	Exiting
)

// String returns the value of the server parameter for the state
func (s RunState) String() string {
	switch s {
	case Running:
		return "Start"
	case Exiting:
		return "Exit"
	default:
		return "Stop"
	}
}

// Phase is the position of the trigger/acquisition state machine
type Phase int32

const (
	// Idle is waiting for a trigger
	Idle Phase = iota

	// Triggered means a completed trigger was seen and acquisition is about to begin
	Triggered

	// Acquiring means waveforms are being read
	Acquiring
)

func (p Phase) String() string {
	switch p {
	case Triggered:
		return "triggered"
	case Acquiring:
		return "acquiring"
	default:
		return "idle"
	}
}

// Config holds the tunables of the engine
type Config struct {
	// Channels is the number of analog inputs
	Channels int

	// Resource is the address the instrument was reached at, for display
	Resource string

	// FullScaleDivisions is the number of vertical divisions spanned by the int16 range
	FullScaleDivisions float64

	// ByteOrder is the byte order binary blocks are requested in
	ByteOrder binary.ByteOrder

	// PollInterval is the initial pause between loop iterations
	PollInterval time.Duration

	// PeriodicInterval is the minimum time between periodic updates
	PeriodicInterval time.Duration

	// ReadyAttempts bounds the status queries made waiting for acquisition to resume
	ReadyAttempts int

	// ReadyInterval is the pause between those queries
	ReadyInterval time.Duration

	CompleteStates []string
	StoppedStates  []string
	WaitingStates  []string
}

// DefaultConfig returns the configuration for a four channel scope
func DefaultConfig() Config {
	return Config{
		Channels:           rohde.DefaultChannels,
		FullScaleDivisions: rohde.FullScaleDivisions,
		ByteOrder:          binary.LittleEndian,
		PollInterval:       time.Second,
		PeriodicInterval:   time.Second,
		ReadyAttempts:      5,
		ReadyInterval:      100 * time.Millisecond,
		CompleteStates:     rohde.CompleteStates,
		StoppedStates:      rohde.StoppedStates,
		WaitingStates:      rohde.WaitingStates,
	}
}

// AcquisitionState is the bookkeeping of the acquisition loop
type AcquisitionState struct {
	NumAcquisitions int
	LostTriggers    int
	TriggerTime     time.Time

	// ChannelsEnabled holds the 1-based indices of enabled channels, ascending
	ChannelsEnabled []int

	Origin    float64
	Increment float64
	Points    int
}

// Engine is the synchronization and acquisition engine
type Engine struct {
	cfg     Config
	inst    scpi.Instrument
	reg     *param.Registry
	bridge  Bridge
	log     *util.Logger
	metrics *Metrics
	limiter *rate.Limiter

	query param.CombinedQuery

	runState int32
	phase    int32

	// main loop only
	failures map[scpi.Kind]int
	flagged  map[string]bool
	timing   Timing
	complete map[string]bool
	stopped  map[string]bool
	waiting  map[string]bool

	// serializes Refresh between the main loop and setters
	monMu       sync.Mutex
	prevMonitor string

	mu    sync.Mutex
	state AcquisitionState
	fatal error

	now func() time.Time
}

// New creates an Engine for inst.  Parameters are registered and declared
// to the bridge; nothing is sent to the instrument until Init.
func New(inst scpi.Instrument, bridge Bridge, cfg Config, log *util.Logger, metrics *Metrics) (*Engine, error) {
	if log == nil {
		log = util.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.LittleEndian
	}
	if cfg.ReadyAttempts < 1 {
		cfg.ReadyAttempts = 1
	}
	if cfg.FullScaleDivisions == 0 {
		cfg.FullScaleDivisions = rohde.FullScaleDivisions
	}
	every := rate.Inf
	if cfg.PeriodicInterval > 0 {
		every = rate.Every(cfg.PeriodicInterval)
	}
	e := &Engine{
		cfg:      cfg,
		inst:     inst,
		reg:      param.NewRegistry(),
		bridge:   bridge,
		log:      log,
		metrics:  metrics,
		limiter:  rate.NewLimiter(every, 1),
		failures: map[scpi.Kind]int{},
		flagged:  map[string]bool{},
		complete: set(cfg.CompleteStates),
		stopped:  set(cfg.StoppedStates),
		waiting:  set(cfg.WaitingStates),
		now:      time.Now,
	}
	ps := rohde.Parameters(cfg.Channels, cfg.Resource, rohde.Setters{
		Server:    e.setServer,
		Setup:     e.setSetup,
		Trigger:   e.setTrigger,
		RecLength: e.setRecLength,
		InstrCmd:  e.setInstrCmd,
		InstrCtrl: e.setInstrCmd,
	})
	if cfg.PollInterval > 0 {
		for i := range ps {
			if ps[i].Name == "sleep" {
				ps[i].Initial = cfg.PollInterval.Seconds()
			}
		}
	}
	if err := e.reg.RegisterAll(ps); err != nil {
		return nil, err
	}
	for _, p := range e.reg.Parameters() {
		var setter func(interface{}) error
		if _, ok := e.reg.SetterFor(p.Name); ok {
			name := p.Name
			setter = func(v interface{}) error { return e.Set(name, v) }
		}
		e.bridge.Declare(p, setter)
	}
	return e, nil
}

func set(states []string) map[string]bool {
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// Registry returns the parameter registry
func (e *Engine) Registry() *param.Registry { return e.reg }

// RunState returns the control-plane state
func (e *Engine) RunState() RunState {
	return RunState(atomic.LoadInt32(&e.runState))
}

func (e *Engine) setRunState(s RunState) {
	for {
		prev := atomic.LoadInt32(&e.runState)
		if RunState(prev) == Exiting && s != Exiting {
			// exiting is terminal
			return
		}
		if atomic.CompareAndSwapInt32(&e.runState, prev, int32(s)) {
			break
		}
	}
	e.metrics.RunState.Set(float64(s))
	e.publish("server", s.String(), e.now(), true)
}

// Phase returns the position of the trigger state machine
func (e *Engine) Phase() Phase {
	return Phase(atomic.LoadInt32(&e.phase))
}

func (e *Engine) setPhase(p Phase) {
	atomic.StoreInt32(&e.phase, int32(p))
}

// Failures returns the number of consecutive trigger query failures of kind
func (e *Engine) Failures(kind scpi.Kind) int {
	return e.failures[kind]
}

// State returns a snapshot of the acquisition state
func (e *Engine) State() AcquisitionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.ChannelsEnabled = append([]int(nil), e.state.ChannelsEnabled...)
	return s
}

// Err returns the fatal error that ended the engine, if any
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

// fail logs a fatal error, clears the instrument's error status and makes
// the main loop exit returning it.  The first fatal error is kept.
func (e *Engine) fail(op, cmd string, err error) error {
	ferr := &FatalError{Op: op, Cmd: cmd, Err: err}
	e.log.Error("%v", ferr)
	if cerr := e.inst.Write("*CLS"); cerr != nil {
		e.log.Error("clearing status after fatal error: %v", cerr)
	}
	e.mu.Lock()
	if e.fatal == nil {
		e.fatal = ferr
	}
	e.mu.Unlock()
	e.setRunState(Exiting)
	return ferr
}

// publish posts to the bridge and keeps the registry in step
func (e *Engine) publish(name string, value interface{}, ts time.Time, onlyIfChanged bool) {
	if _, ok := e.reg.Lookup(name); ok {
		e.reg.Store(name, value)
	}
	e.bridge.Publish(name, value, ts, onlyIfChanged)
}

// Init prepares the instrument: clears its status, checks its identity,
// builds and validates the combined settings query, pulls every setting and
// reads the scope parameters, including which channels are enabled
func (e *Engine) Init() error {
	if err := e.inst.Write("*CLS"); err != nil {
		return e.fail("init", "*CLS", err)
	}
	idn, err := e.inst.Query("*IDN?")
	if err != nil {
		return e.fail("init", "*IDN?", err)
	}
	e.log.Info("IDN: %s", idn)
	if !rohde.IsRohde(idn) {
		e.log.Warn("instrument may not be a Rohde&Schwarz device: %s", idn)
	}
	q, err := e.reg.BuildCombinedQuery(func(query string) error {
		reply, err := e.inst.Query(query)
		e.log.Debug(2, "%s -> %s", query, reply)
		return err
	})
	if err != nil {
		return e.fail("building settings query", "", err)
	}
	e.query = q
	e.log.Debug(1, "settings query: %s", q)
	if err := e.PullAndPublish(); err != nil {
		return err
	}
	// the first poll may already find a completed trigger, so the enabled
	// channels must be known before it
	if err := e.Refresh(); err != nil {
		e.log.Warn("reading the enabled channels: %v", err)
	}
	return nil
}

// Start configures data transfer, pulls the settings, resumes acquisition
// and waits for the instrument to run
func (e *Engine) Start(ctx context.Context) error {
	e.log.Info("starting")
	for _, cmd := range rohde.ConfigureTransfer(e.cfg.ByteOrder) {
		if err := e.inst.Write(cmd); err != nil {
			e.log.Error("configuring data transfer: %v", err)
			return err
		}
	}
	if err := e.PullAndPublish(); err != nil {
		return err
	}
	if err := e.inst.Write(rohde.Run); err != nil {
		e.log.Error("resuming acquisition: %v", err)
		return err
	}
	e.setRunState(Running)
	e.waitReady(ctx)
	return nil
}

// Stop halts polling; periodic updates continue
func (e *Engine) Stop() {
	e.log.Info("stopping")
	e.setRunState(Stopped)
}

// Exit ends the main loop at its next iteration
func (e *Engine) Exit() {
	e.log.Info("exiting")
	e.setRunState(Exiting)
}

// Run drives the main loop until the engine exits, ctx is done or a fatal
// error occurs, which is returned
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.Err(); err != nil {
			return err
		}
		if e.RunState() == Exiting {
			e.log.Info("server exited")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if e.RunState() == Running {
			e.Poll(ctx)
		}
		if e.limiter.Allow() {
			e.PeriodicUpdate()
		}
		t := time.NewTimer(e.sleep())
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (e *Engine) sleep() time.Duration {
	v, ok := e.reg.Value("sleep")
	if !ok {
		return e.cfg.PollInterval
	}
	secs, ok := v.(float64)
	if !ok {
		return e.cfg.PollInterval
	}
	return util.SecsToDuration(secs)
}
