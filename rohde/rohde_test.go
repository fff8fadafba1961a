package rohde_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/rohde"
)

func TestParseSetupAction(t *testing.T) {
	a, ok, err := rohde.ParseSetupAction("Recall oper")
	if err != nil || !ok {
		t.Fatalf("expected a recall action, got ok=%v err=%v", ok, err)
	}
	if want := `MMEMory:LOAD:STATe 1,"SETUP2.SET"`; a.Command() != want {
		t.Errorf("expected %s, got %s", want, a.Command())
	}

	a, _, _ = rohde.ParseSetupAction("Save latest")
	if want := `MMEMory:STORe:STATe 1,"SETUP1.SET"`; a.Command() != want {
		t.Errorf("expected %s, got %s", want, a.Command())
	}

	if _, ok, err := rohde.ParseSetupAction(rohde.SetupIdle); ok || err != nil {
		t.Errorf("the idle choice is not an action, got ok=%v err=%v", ok, err)
	}
	if _, _, err := rohde.ParseSetupAction("Recall tuesday"); !errors.Is(err, rohde.ErrBadSetupAction) {
		t.Errorf("expected ErrBadSetupAction, got %v", err)
	}
}

func TestConfigureTransfer(t *testing.T) {
	got := rohde.ConfigureTransfer(binary.BigEndian)
	want := []string{":FORMat:DATA INT,16", ":FORMat:BORDer MSBFirst"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := rohde.ConfigureTransfer(binary.LittleEndian); got[1] != ":FORMat:BORDer LSBFirst" {
		t.Errorf("expected LSBFirst for little endian, got %s", got[1])
	}
}

func TestMonitorQuery(t *testing.T) {
	want := ":TIMebase:RANGe?;:ACQuire:POINts?;:CHAN1:STATe?;:CHAN2:STATe?;:TRIGger:LEVel?"
	if got := rohde.MonitorQuery(2); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestParseMonitor(t *testing.T) {
	m, err := rohde.ParseMonitor("1.0E-03;1.0E+04;1;0;1;0;2.5E-01", 4)
	if err != nil {
		t.Fatal(err)
	}
	if m.TimeRange != 1e-3 || m.Points != 10000 || m.TriggerLevel != 0.25 {
		t.Errorf("unexpected monitor %+v", m)
	}
	if diff := cmp.Diff([]int{1, 3}, m.EnabledChannels()); diff != "" {
		t.Errorf("enabled channels mismatch (-want +got):\n%s", diff)
	}
	if _, err := rohde.ParseMonitor("1.0E-03;1000;1;0.1", 4); err == nil {
		t.Error("expected an error for a short reply")
	}
}

func TestParseScaleOffset(t *testing.T) {
	s, o, err := rohde.ParseScaleOffset("2.0E-01;-1.5E-02")
	if err != nil || s != 0.2 || o != -0.015 {
		t.Errorf("got %v %v %v", s, o, err)
	}
	if rohde.ScaleOffsetQuery(3) != "CHANnel3:SCALe?;:CHANnel3:OFFSet?" {
		t.Errorf("unexpected query %s", rohde.ScaleOffsetQuery(3))
	}
}

func TestIsRohde(t *testing.T) {
	if !rohde.IsRohde("Rohde&Schwarz,RTB2004,1333.1005k04/102345,02.300") {
		t.Error("an R&S identity was not recognized")
	}
	if rohde.IsRohde("KEYSIGHT TECHNOLOGIES,MSO-X 4104A") {
		t.Error("a Keysight identity was recognized as R&S")
	}
}

func TestParametersRegisterCleanly(t *testing.T) {
	r := param.NewRegistry()
	if err := r.RegisterAll(rohde.Parameters(4, "10.0.0.5:5025", rohde.Setters{})); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"c01OnOff", "c04Peak2Peak", "tAxis", "trigState", "sleep"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("%s is missing", name)
		}
	}
	if _, ok := r.SetterFor("setup"); ok {
		t.Error("setup has no setter when none is bound")
	}
	if h, ok := r.SetterFor("c02VoltsPerDiv"); !ok || h.Kind != param.TemplateWrite {
		t.Error("c02VoltsPerDiv should write through its command")
	}
	q, err := r.BuildCombinedQuery(nil)
	if err != nil {
		t.Fatal(err)
	}
	// 11 scalar settings and 4 per channel
	if q.Len() != 11+4*4 {
		t.Errorf("expected %d queried parameters, got %d", 11+4*4, q.Len())
	}
}

func TestAxisFor(t *testing.T) {
	if rohde.AxisFor("c02Waveform") != "tAxis" {
		t.Error("waveforms are plotted against tAxis")
	}
	if rohde.AxisFor("tAxis") != "" {
		t.Error("tAxis has no axis of its own")
	}
}
