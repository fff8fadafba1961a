package rohde

import (
	"fmt"
	"strings"

	"github.com/nasa-jpl/scopesync/param"
)

// SetupIdle is the resting value of the setup parameter
const SetupIdle = "Setup"

// TriggerIdle is the resting value of the trigger parameter
const TriggerIdle = "Trigger"

// Setters holds the custom setters the parameter table binds to.  A nil
// entry leaves the parameter without a setter.
type Setters struct {
	Server    param.SetFunc
	Setup     param.SetFunc
	Trigger   param.SetFunc
	RecLength param.SetFunc
	InstrCmd  param.SetFunc
	InstrCtrl param.SetFunc
}

func custom(f param.SetFunc) param.Handler {
	if f == nil {
		return param.Handler{}
	}
	return param.Func(f)
}

// peak to peak alarm limits, volts
var peakToPeakAlarm = param.Limits{Low: -9, High: 9}

// ChannelTemplates are the parameters created once per channel
var ChannelTemplates = []param.ChannelTemplate{
	{Suffix: "OnOff", CommandFormat: "CHANnel%d:STATe", Proto: param.Parameter{
		Description: "Enable/disable channel",
		Kind:        param.Discrete, Type: param.String, Writable: true,
		Choices: []string{"ON", "OFF"},
		Aliases: map[string]string{"1": "ON", "0": "OFF"},
		Handler: param.Template(),
	}},
	{Suffix: "Coupling", CommandFormat: "CHANnel%d:COUPling", Proto: param.Parameter{
		Description: "Channel coupling",
		Kind:        param.Discrete, Type: param.String, Writable: true,
		Choices: []string{"DC", "AC", "GND"},
		Handler: param.Template(),
	}},
	{Suffix: "VoltsPerDiv", CommandFormat: "CHANnel%d:SCALe", Proto: param.Parameter{
		Description: "Vertical scale",
		Kind:        param.Scalar, Type: param.Float, Writable: true, Units: "V/du",
		Limits:  &param.Limits{Low: 500e-6, High: 10},
		Handler: param.Template(),
		Initial: 1e-3,
	}},
	{Suffix: "VoltOffset", CommandFormat: "CHANnel%d:OFFSet", Proto: param.Parameter{
		Description: "Vertical offset",
		Kind:        param.Scalar, Type: param.Float, Writable: true, Units: "V",
		Handler: param.Template(),
	}},
	{Suffix: "Termination", Proto: param.Parameter{
		Description: "Input termination",
		Kind:        param.Status, Type: param.String, Units: "Ohm",
		Initial: "1M",
	}},
	{Suffix: "Waveform", Proto: param.Parameter{
		Description: "Waveform array",
		Kind:        param.Array, Type: param.FloatArray, Units: "V",
	}},
	{Suffix: "Mean", Proto: param.Parameter{
		Description: "Mean of the waveform",
		Kind:        param.Scalar, Type: param.Float, Units: "V",
	}},
	{Suffix: "Peak2Peak", Proto: param.Parameter{
		Description: "Peak-to-peak amplitude",
		Kind:        param.Scalar, Type: param.Float, Units: "V",
		Alarm: &peakToPeakAlarm,
	}},
}

// Parameters returns the complete parameter table for a scope with the
// given number of channels.  resource is reported read-only.
func Parameters(channels int, resource string, s Setters) []param.Parameter {
	ps := []param.Parameter{
		// process
		{Name: "server", Description: "Server control", Kind: param.Discrete, Type: param.String,
			Writable: true, Choices: []string{"Start", "Stop", "Exit"}, Handler: custom(s.Server), Initial: "Stop"},
		{Name: "status", Description: "Server status", Kind: param.Status, Type: param.String},
		{Name: "sleep", Description: "Pause between polls", Kind: param.Scalar, Type: param.Float,
			Writable: true, Units: "S", Limits: &param.Limits{Low: 0, High: 60}, Handler: param.Direct(), Initial: 1.},
		{Name: "resource", Description: "Address used to reach the device", Kind: param.Status, Type: param.String,
			Initial: resource},

		// instrument
		{Name: "setup", Description: "Save/recall instrument state to/from latest or operational setup",
			Kind: param.Discrete, Type: param.String, Writable: true,
			Choices: []string{SetupIdle, "Save latest", "Save oper", "Recall latest", "Recall oper"},
			Handler: custom(s.Setup), Initial: SetupIdle},
		{Name: "acqCount", Description: "Number of acquisitions recorded", Kind: param.Scalar, Type: param.Int},
		{Name: "lostTrigs", Description: "Number of triggers lost", Kind: param.Scalar, Type: param.Int},
		{Name: "instrCtrl", Description: "Scope control commands", Kind: param.Discrete, Type: param.String,
			Writable: true, Choices: []string{"*IDN?", "*RST", "*CLS", "*ESR?", "*OPC?", "*STB?"},
			Handler: custom(s.InstrCtrl), Initial: "*IDN?"},
		{Name: "instrCmdS", Description: "Execute a scope command", Kind: param.Discrete, Type: param.String,
			Writable: true, Handler: custom(s.InstrCmd), Initial: "*IDN?"},
		{Name: "instrCmdR", Description: "Response of instrCmdS", Kind: param.Status, Type: param.String},

		// horizontal
		{Name: "recLengthS", Description: "Number of points per waveform", Kind: param.Discrete, Type: param.String,
			Writable: true, Choices: []string{"AUTO", "1k", "10k", "100k", "1M", "10M", "50M", "100M", "200M"},
			Handler: custom(s.RecLength), Initial: "AUTO"},
		{Name: "recLengthR", Description: "Number of points per waveform read", Kind: param.Scalar, Type: param.Int,
			Command: "ACQuire:POINts"},
		{Name: "samplingRate", Description: "Sampling rate", Kind: param.Scalar, Type: param.Float, Units: "Hz",
			Command: "ACQuire:SRATe"},
		{Name: "timePerDiv", Description: fmt.Sprintf("Horizontal scale (1/%d of full scale)", HorizontalDivisions),
			Kind: param.Scalar, Type: param.Float, Writable: true, Units: "S/du",
			Command: "TIMebase:SCALe", Handler: param.Template(), Initial: 2e-6},
		{Name: "tAxis", Description: "Horizontal axis array", Kind: param.Array, Type: param.FloatArray, Units: "S"},

		// trigger
		{Name: "trigger", Description: "Force a trigger event", Kind: param.Discrete, Type: param.String,
			Writable: true, Choices: []string{TriggerIdle, "Force!"}, Handler: custom(s.Trigger), Initial: TriggerIdle},
		{Name: "trigType", Description: "Trigger type", Kind: param.Discrete, Type: param.String, Writable: true,
			Choices: []string{"EDGE", "PULS", "WIDTH", "SLOP", "RUNT"}, Command: "TRIGger:TYPE", Handler: param.Template()},
		{Name: "trigCoupling", Description: "Trigger coupling", Kind: param.Discrete, Type: param.String, Writable: true,
			Choices: []string{"DC", "AC", "LFR", "HFR"}, Command: "TRIGger:EDGE:COUPling", Handler: param.Template()},
		{Name: "trigState", Description: "Current trigger status", Kind: param.Status, Type: param.String,
			Command: "TRIGger:STATe", Initial: "?"},
		{Name: "trigMode", Description: "Trigger mode", Kind: param.Discrete, Type: param.String, Writable: true,
			Choices: []string{"NORM", "AUTO", "SING"}, Command: "TRIGger:MODE", Handler: param.Template()},
		{Name: "trigDelay", Description: "Trigger delay/position", Kind: param.Scalar, Type: param.Float, Writable: true,
			Units: "S", Command: "TIMebase:HORizontal:POSition", Handler: param.Template()},
		{Name: "trigSource", Description: "Trigger source", Kind: param.Discrete, Type: param.String, Writable: true,
			Choices: triggerSources(channels), Command: "TRIGger:SOURce", Handler: param.Template()},
		{Name: "trigSlope", Description: "Trigger slope", Kind: param.Discrete, Type: param.String, Writable: true,
			Choices: []string{"POS", "NEG", "EITH"}, Command: "TRIGger:EDGE:SLOPe", Handler: param.Template()},
		{Name: "trigLevel", Description: "Trigger level", Kind: param.Scalar, Type: param.Float, Writable: true,
			Units: "V", Command: "TRIGger:LEVel", Handler: param.Template()},

		// auxiliary
		{Name: "timing", Description: "Performance timing", Kind: param.Array, Type: param.FloatArray, Units: "S"},
	}
	return append(ps, param.Expand(ChannelTemplates, channels)...)
}

func triggerSources(channels int) []string {
	out := make([]string, 0, channels+1)
	for ch := 1; ch <= channels; ch++ {
		out = append(out, fmt.Sprintf("CHAN%d", ch))
	}
	return append(out, "EXT")
}

// AxisFor returns the name of the variable holding the time axis of an array
// variable, or "" if it has none
func AxisFor(name string) string {
	if strings.HasSuffix(name, "Waveform") {
		return "tAxis"
	}
	return ""
}
