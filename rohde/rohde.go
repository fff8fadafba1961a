// Package rohde describes Rohde & Schwarz oscilloscopes: the SCPI commands
// used to drive them and the table of parameters they expose
package rohde

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/scopesync/scpi"
)

const (
	// HorizontalDivisions is the number of horizontal divisions on the display
	HorizontalDivisions = 10

	// FullScaleDivisions is the number of vertical divisions spanned by the
	// full int16 range of a waveform sample
	FullScaleDivisions = 25.

	// DefaultChannels is the number of analog inputs on the common models
	DefaultChannels = 4

	// TriggerStateQuery asks for the acquisition/trigger status
	TriggerStateQuery = ":TRIGger:STATe?"

	// Stop freezes the acquisition buffers
	Stop = ":STOP"

	// Run resumes continuous acquisition
	Run = ":RUN"

	// ForceTrigger forces a trigger event
	ForceTrigger = "TRIGger:FORCe"

	// RecordLength is the command that sets the number of points per waveform
	RecordLength = "ACQuire:POINts"
)

var (
	// CompleteStates are the trigger states that mean a waveform is ready
	CompleteStates = []string{"COMP", "COMPLETE"}

	// StoppedStates are the trigger states that mean acquisition is halted
	StoppedStates = []string{"STOP"}

	// WaitingStates are the trigger states that mean "armed, not yet"
	WaitingStates = []string{"RUN", "ARM", "WAIT", "TRIG", "READ"}

	// ErrBadSetupAction is generated when a setup request is not of the form
	// "<Save|Recall> <latest|oper>"
	ErrBadSetupAction = errors.New("setup action must be Save or Recall followed by latest or oper")
)

// setup slots in the instrument's non-volatile memory
var setupFiles = map[string]string{
	"latest": "SETUP1.SET",
	"oper":   "SETUP2.SET",
}

// SetupFile returns the setup file backing a named slot
func SetupFile(slot string) (string, bool) {
	f, ok := setupFiles[slot]
	return f, ok
}

// SetupAction is a parsed request to save or recall a setup slot
type SetupAction struct {
	Recall bool
	Slot   string
	File   string
}

// Command returns the SCPI command that carries out the action
func (a SetupAction) Command() string {
	if a.Recall {
		return fmt.Sprintf(`MMEMory:LOAD:STATe 1,"%s"`, a.File)
	}
	return fmt.Sprintf(`MMEMory:STORe:STATe 1,"%s"`, a.File)
}

// Status returns a human readable report of the action
func (a SetupAction) Status() string {
	if a.Recall {
		return "Setup was recalled from " + a.File
	}
	return "Setup was saved to " + a.File
}

// ParseSetupAction parses a value of the setup parameter such as
// "Recall oper".  The placeholder choice "Setup" yields ok == false.
func ParseSetupAction(s string) (action SetupAction, ok bool, err error) {
	if s == SetupIdle {
		return SetupAction{}, false, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return SetupAction{}, false, errors.Wrap(ErrBadSetupAction, s)
	}
	switch fields[0] {
	case "Save":
	case "Recall":
		action.Recall = true
	default:
		return SetupAction{}, false, errors.Wrap(ErrBadSetupAction, s)
	}
	file, known := SetupFile(fields[1])
	if !known {
		return SetupAction{}, false, errors.Wrap(ErrBadSetupAction, s)
	}
	action.Slot = fields[1]
	action.File = file
	return action, true, nil
}

// ConfigureTransfer returns the commands that put binary waveform transfers
// into signed 16-bit samples of the given byte order
func ConfigureTransfer(order binary.ByteOrder) []string {
	border := "LSBFirst"
	if order == binary.BigEndian {
		border = "MSBFirst"
	}
	return []string{":FORMat:DATA INT,16", ":FORMat:BORDer " + border}
}

// ScaleOffsetQuery returns the chained query for a channel's vertical scale
// and offset, in that order
func ScaleOffsetQuery(ch int) string {
	return scpi.Chain(fmt.Sprintf("CHANnel%d:SCALe", ch), fmt.Sprintf("CHANnel%d:OFFSet", ch))
}

// DataQuery returns the query for a channel's waveform as a binary block
func DataQuery(ch int) string {
	return fmt.Sprintf("CHANnel%d:DATA?", ch)
}

// ParseScaleOffset parses the reply to ScaleOffsetQuery
func ParseScaleOffset(reply string) (scale, offset float64, err error) {
	fields := scpi.SplitReply(reply)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("scale/offset reply %q has %d fields, expected 2", reply, len(fields))
	}
	scale, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	offset, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	return scale, offset, err
}

// IsRohde returns true if an *IDN? reply looks like it came from an R&S
// instrument
func IsRohde(idn string) bool {
	u := strings.ToUpper(idn)
	return strings.Contains(u, "ROHDE") || strings.Contains(u, "SCHWARZ") || strings.Contains(u, "R&S")
}

// MonitorQuery returns the chained query for the timing and channel state
// fields watched by the parameter monitor: time range, points, the state of
// channels 1..n, then the trigger level
func MonitorQuery(channels int) string {
	frags := make([]string, 0, channels+3)
	frags = append(frags, "TIMebase:RANGe", "ACQuire:POINts")
	for ch := 1; ch <= channels; ch++ {
		frags = append(frags, fmt.Sprintf("CHAN%d:STATe", ch))
	}
	frags = append(frags, "TRIGger:LEVel")
	return ":" + scpi.Chain(frags...)
}

// Monitor is the parsed reply to MonitorQuery
type Monitor struct {
	TimeRange    float64
	Points       int
	Enabled      []bool
	TriggerLevel float64
}

// EnabledChannels returns the 1-based indices of enabled channels, ascending
func (m Monitor) EnabledChannels() []int {
	var out []int
	for i, on := range m.Enabled {
		if on {
			out = append(out, i+1)
		}
	}
	return out
}

// ParseMonitor parses the reply to MonitorQuery(channels)
func ParseMonitor(reply string, channels int) (Monitor, error) {
	fields := scpi.SplitReply(reply)
	if len(fields) != channels+3 {
		return Monitor{}, fmt.Errorf("monitor reply %q has %d fields, expected %d", reply, len(fields), channels+3)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	var (
		m   Monitor
		err error
	)
	m.TimeRange, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Monitor{}, errors.Wrap(err, "time range")
	}
	pts, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Monitor{}, errors.Wrap(err, "points")
	}
	m.Points = int(pts)
	m.Enabled = make([]bool, channels)
	for ch := 0; ch < channels; ch++ {
		m.Enabled[ch] = fields[ch+2] == "1" || fields[ch+2] == "ON"
	}
	m.TriggerLevel, err = strconv.ParseFloat(fields[channels+2], 64)
	if err != nil {
		return Monitor{}, errors.Wrap(err, "trigger level")
	}
	return m, nil
}

// OnOff converts a channel state to the choice strings of cNNOnOff
func OnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
