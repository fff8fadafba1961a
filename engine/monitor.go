package engine

import (
	"time"

	"github.com/nasa-jpl/scopesync/oscilloscope"
	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/rohde"
	"github.com/nasa-jpl/scopesync/util"
)

// Refresh re-reads the timing and channel-state fields.  An identical raw
// reply does nothing; otherwise the time axis and the derived parameters are
// recomputed and published where they changed, and the set of enabled
// channels is updated.  A reply that cannot be parsed is logged, the
// instrument's error status is cleared and the previous reply is kept so the
// next refresh tries again.
func (e *Engine) Refresh() error {
	e.monMu.Lock()
	defer e.monMu.Unlock()

	q := rohde.MonitorQuery(e.cfg.Channels)
	reply, err := e.inst.Query(q)
	if err != nil {
		return err
	}
	if reply == e.prevMonitor {
		return nil
	}
	e.log.Info("scope parameters changed: %s", reply)
	ts := e.now()

	m, err := rohde.ParseMonitor(reply, e.cfg.Channels)
	if err == nil {
		var ax oscilloscope.TimeAxis
		ax, err = oscilloscope.Centered(m.TimeRange, m.Points)
		if err == nil {
			e.applyMonitor(m, ax, ts)
			e.prevMonitor = reply
			return nil
		}
	}
	e.log.Error("in scope parameter refresh, command %s: %v", q, err)
	if cerr := e.inst.Write("*CLS"); cerr != nil {
		e.log.Error("clearing status: %v", cerr)
	}
	return err
}

func (e *Engine) applyMonitor(m rohde.Monitor, ax oscilloscope.TimeAxis, ts time.Time) {
	e.publish("tAxis", ax.Times(), ts, true)
	e.publish("recLengthR", m.Points, ts, true)
	e.publish("timePerDiv", m.TimeRange/rohde.HorizontalDivisions, ts, true)
	e.publish("samplingRate", ax.SampleRate(), ts, true)
	for i, on := range m.Enabled {
		e.publish(param.ChannelName(i+1, "OnOff"), rohde.OnOff(on), ts, true)
	}
	e.publish("trigLevel", m.TriggerLevel, ts, true)

	enabled := m.EnabledChannels()
	e.log.Debug(1, "enabled channels: %s", util.IntSliceToCSV(enabled))

	e.mu.Lock()
	e.state.ChannelsEnabled = enabled
	e.state.Origin = ax.Origin
	e.state.Increment = ax.Increment
	e.state.Points = ax.Points
	e.mu.Unlock()
}

// PeriodicUpdate refreshes the scope parameters and publishes the lost
// trigger count and the stage timings
func (e *Engine) PeriodicUpdate() {
	if err := e.Refresh(); err != nil {
		e.log.Warn("refreshing scope parameters: %v", err)
	}
	st := e.State()
	ts := e.now()
	e.publish("lostTrigs", st.LostTriggers, ts, true)
	e.publish("timing", e.timing.Seconds(), ts, false)
}
