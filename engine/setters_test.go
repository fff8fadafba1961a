package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/rohde"
)

func TestTemplateWrite(t *testing.T) {
	e, scope, bridge, _ := newTestEngine(t, testConfig())
	if err := e.Set("c02VoltsPerDiv", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := e.Set("timePerDiv", "2e-6"); err != nil {
		t.Fatal(err)
	}
	want := []string{"CHAN2:SCAL 0.5", "TIM:SCAL 2E-06"}
	got := scope.commands()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected %v, got %v", want, got)
	}
	if v, _ := bridge.Value("c02VoltsPerDiv"); v != 0.5 {
		t.Errorf("expected the new value to be published, got %v", v)
	}
	if v, _ := e.reg.Value("timePerDiv"); v != 2e-6 {
		t.Errorf("expected the registry to follow, got %v", v)
	}
}

func TestSetRejectsBadValues(t *testing.T) {
	e, scope, _, _ := newTestEngine(t, testConfig())
	if err := e.Set("c01VoltsPerDiv", 50.); !errors.Is(err, param.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := e.Set("trigMode", "SOMETIMES"); !errors.Is(err, param.ErrInvalidChoice) {
		t.Errorf("expected ErrInvalidChoice, got %v", err)
	}
	if err := e.Set("acqCount", 3); !errors.Is(err, param.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if err := e.Set("c09Mean", 3); !errors.Is(err, param.ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
	if n := len(scope.commands()); n != 0 {
		t.Errorf("rejected writes must not reach the instrument, got %v", scope.commands())
	}
}

func TestDirectWriteSleep(t *testing.T) {
	e, scope, _, _ := newTestEngine(t, testConfig())
	if err := e.Set("sleep", 0.25); err != nil {
		t.Fatal(err)
	}
	if e.sleep() != 250*time.Millisecond {
		t.Errorf("expected a 250 ms pause, got %s", e.sleep())
	}
	if n := len(scope.commands()); n != 0 {
		t.Error("sleep is process local")
	}
}

func TestSetupRecallRefusedWhileRunning(t *testing.T) {
	e, scope, bridge, _ := newTestEngine(t, testConfig())
	e.setRunState(Running)
	if err := e.Set("setup", "Recall oper"); !errors.Is(err, ErrRecallWhileRunning) {
		t.Errorf("expected ErrRecallWhileRunning, got %v", err)
	}
	if n := len(scope.commands()); n != 0 {
		t.Errorf("nothing may be sent, got %v", scope.commands())
	}
	if v, _ := bridge.Value("setup"); v != rohde.SetupIdle {
		t.Errorf("setup must return to idle, got %v", v)
	}
}

func TestSetupSaveAndRecall(t *testing.T) {
	e, scope, bridge, _ := newTestEngine(t, testConfig())
	if err := e.Set("setup", "Save latest"); err != nil {
		t.Fatal(err)
	}
	if err := e.Set("setup", "Recall oper"); err != nil {
		t.Fatal(err)
	}
	if scope.count(`MMEMory:STORe:STATe 1,"SETUP1.SET"`) != 1 || scope.count(`MMEMory:LOAD:STATe 1,"SETUP2.SET"`) != 1 {
		t.Errorf("unexpected commands %v", scope.commands())
	}
	if v, _ := bridge.Value("status"); v != "Setup was recalled from SETUP2.SET" {
		t.Errorf("unexpected status %v", v)
	}
}

func TestForceTrigger(t *testing.T) {
	_, scope, bridge, _ := newTestEngine(t, testConfig())
	h := bridge.setters["trigger"]
	if h == nil {
		t.Fatal("trigger has no setter")
	}
	if err := h("Force!"); err != nil {
		t.Fatal(err)
	}
	if scope.count(rohde.ForceTrigger) != 1 {
		t.Error("expected the trigger to be forced")
	}
	if v, _ := bridge.Value("trigger"); v != rohde.TriggerIdle {
		t.Errorf("trigger must return to idle, got %v", v)
	}
}

func TestInstrCmd(t *testing.T) {
	e, scope, bridge, _ := newTestEngine(t, testConfig())
	scope.script("*IDN?", ok("Rohde&Schwarz,RTB2004"))
	if err := e.Set("instrCmdS", "*IDN?"); err != nil {
		t.Fatal(err)
	}
	if v, _ := bridge.Value("instrCmdR"); v != "Rohde&Schwarz,RTB2004" {
		t.Errorf("expected the reply in instrCmdR, got %v", v)
	}
	if err := e.Set("instrCtrl", "*CLS"); err != nil {
		t.Fatal(err)
	}
	if scope.count("*CLS") != 1 {
		t.Error("expected *CLS to be written")
	}
}

func TestRecLengthRefreshes(t *testing.T) {
	e, scope, _, _ := newTestEngine(t, testConfig())
	scope.script(rohde.MonitorQuery(4), ok("1.0E-03;10000;1;0;0;0;0"))
	if err := e.Set("recLengthS", "10k"); err != nil {
		t.Fatal(err)
	}
	if scope.count("ACQuire:POINts 10k") != 1 {
		t.Errorf("unexpected commands %v", scope.commands())
	}
	if e.State().Points != 10000 {
		t.Errorf("expected the monitor to be refreshed, got %d points", e.State().Points)
	}
}

func TestServerLifecycle(t *testing.T) {
	e, scope, bridge, _ := newTestEngine(t, testConfig())
	scope.script(rohde.TriggerStateQuery, ok("RUN"))
	if err := bridge.setters["server"]("Start"); err != nil {
		t.Fatal(err)
	}
	if e.RunState() != Running {
		t.Errorf("expected Running, got %s", e.RunState())
	}
	for _, cmd := range append(rohde.ConfigureTransfer(e.cfg.ByteOrder), rohde.Run) {
		if scope.count(cmd) != 1 {
			t.Errorf("expected %s to be sent once", cmd)
		}
	}
	if err := bridge.setters["server"]("Stop"); err != nil {
		t.Fatal(err)
	}
	if e.RunState() != Stopped {
		t.Errorf("expected Stopped, got %s", e.RunState())
	}
	if err := bridge.setters["server"]("Exit"); err != nil {
		t.Fatal(err)
	}
	if e.RunState() != Exiting {
		t.Errorf("expected Exiting, got %s", e.RunState())
	}
}

func TestTimingSeconds(t *testing.T) {
	tm := Timing{TriggerDetection: 1500 * time.Nanosecond, Acquire: 2 * time.Millisecond}
	got := tm.Seconds()
	if len(got) != 5 || got[0] != 2e-6 || got[4] != 2e-3 {
		t.Errorf("unexpected timings %v", got)
	}
}
