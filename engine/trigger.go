package engine

import (
	"context"

	"github.com/nasa-jpl/scopesync/rohde"
	"github.com/nasa-jpl/scopesync/scpi"
)

// Poll queries the trigger status once and, if a trigger completed,
// acquires the waveforms.  It returns true if a trigger was detected.
//
// Transport failures are counted per kind; FailureLimit consecutive
// failures of one kind make the engine exit.  Any successful query resets
// every count.
func (e *Engine) Poll(ctx context.Context) bool {
	start := e.now()
	status, err := e.inst.Query(rohde.TriggerStateQuery)
	if err != nil {
		kind := scpi.KindOf(err)
		if !kind.Transport() {
			e.fail("query for trigger", rohde.TriggerStateQuery, err)
			return false
		}
		e.metrics.TransportErrors.WithLabelValues(kind.String()).Inc()
		e.failures[kind]++
		if n := e.failures[kind]; n >= FailureLimit {
			e.log.Error("processing stopped due to %s happening %d times: %v", kind, n, err)
			e.setRunState(Exiting)
		} else {
			e.log.Warn("%s #%d in query for trigger: %v", kind, n, err)
		}
		return false
	}
	for k := range e.failures {
		e.failures[k] = 0
	}

	ts := e.now()
	if e.stopped[status] && e.RunState() == Running {
		e.setRunState(Stopped)
		e.log.Warn("%v, server stopped", ErrStoppedExternally)
	}
	e.publish("trigState", status, ts, true)

	if !e.complete[status] {
		if !e.stopped[status] && !e.waiting[status] && !e.flagged[status] {
			e.flagged[status] = true
			e.log.Warn("unrecognized trigger status %q treated as not triggered", status)
		}
		if !e.stopped[status] && !e.waiting[status] {
			e.metrics.UnknownStates.WithLabelValues(status).Inc()
		}
		return false
	}

	e.mu.Lock()
	e.state.NumAcquisitions++
	e.state.TriggerTime = ts
	n := e.state.NumAcquisitions
	e.mu.Unlock()
	e.setPhase(Triggered)
	e.metrics.Acquisitions.Inc()
	e.timing.TriggerDetection = ts.Sub(start)
	e.log.Debug(1, "trigger detected %d", n)

	e.Acquire(ctx)
	return true
}
