package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/nasa-jpl/scopesync/mathx"
	"github.com/nasa-jpl/scopesync/oscilloscope"
	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/rohde"
	"github.com/nasa-jpl/scopesync/scpi"
)

// Timing holds the duration of each stage of the last acquisition
type Timing struct {
	TriggerDetection time.Duration
	Preamble         time.Duration
	QueryWaveform    time.Duration
	PublishWaveform  time.Duration
	Acquire          time.Duration
}

// Seconds returns the stages in seconds, rounded to the microsecond
func (t Timing) Seconds() []float64 {
	ds := []time.Duration{t.TriggerDetection, t.Preamble, t.QueryWaveform, t.PublishWaveform, t.Acquire}
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = mathx.Round(d.Seconds(), 1e-6)
	}
	return out
}

// Acquire reads out every enabled channel.  Acquisition is stopped for the
// duration of the read so the buffers are consistent, and resumed exactly
// once afterwards.  A transport failure abandons the remaining channels and
// counts a lost trigger; any other failure only loses that channel.
func (e *Engine) Acquire(ctx context.Context) {
	e.setPhase(Acquiring)
	defer e.setPhase(Idle)
	start := e.now()

	st := e.State()
	e.publish("acqCount", st.NumAcquisitions, st.TriggerTime, false)
	e.timing.Preamble, e.timing.QueryWaveform, e.timing.PublishWaveform = 0, 0, 0

	lost := false
	err := e.inst.Exclusive(func(t scpi.Transactor) error {
		if err := t.Write(rohde.Stop); err != nil {
			if scpi.KindOf(err).Transport() {
				e.log.Error("stopping acquisition: %v", err)
				lost = true
			} else {
				e.log.Warn("stopping acquisition: %v", err)
			}
		}
		if !lost {
			for _, ch := range st.ChannelsEnabled {
				err := e.acquireChannel(t, ch, st.TriggerTime)
				if err == nil {
					continue
				}
				if scpi.KindOf(err).Transport() {
					e.log.Error("%v, abandoning remaining channels", err)
					lost = true
					break
				}
				e.metrics.ChannelErrors.Inc()
				e.log.Error("%v", err)
			}
		}
		return t.Write(rohde.Run)
	})
	if lost {
		e.mu.Lock()
		e.state.LostTriggers++
		e.mu.Unlock()
		e.metrics.LostTriggers.Inc()
	}
	if err != nil {
		e.metrics.TransportErrors.WithLabelValues(scpi.KindOf(err).String()).Inc()
		e.log.Error("resuming acquisition: %v", err)
	}
	e.waitReady(ctx)
	e.timing.Acquire = e.now().Sub(start)
	e.metrics.AcquireSeconds.Observe(e.timing.Acquire.Seconds())
	e.log.Debug(2, "timing: %+v", e.timing)
}

// acquireChannel reads one channel inside the exclusive region and publishes
// its waveform and statistics at the trigger time ts
func (e *Engine) acquireChannel(t scpi.Transactor, ch int, ts time.Time) error {
	t0 := e.now()
	q := rohde.ScaleOffsetQuery(ch)
	reply, err := t.Query(q)
	if err != nil {
		return &ChannelError{Channel: ch, Op: "getting scale and offset", Err: err}
	}
	scale, offset, err := rohde.ParseScaleOffset(reply)
	if err != nil {
		return &ChannelError{Channel: ch, Op: "parsing scale and offset", Err: err}
	}
	e.log.Debug(2, "channel %d scale %g offset %g", ch, scale, offset)
	e.timing.Preamble += e.now().Sub(t0)

	t0 = e.now()
	raw, err := t.QueryBinary(rohde.DataQuery(ch))
	if err != nil {
		return &ChannelError{Channel: ch, Op: "getting waveform data", Err: err}
	}
	e.timing.QueryWaveform += e.now().Sub(t0)
	if len(raw) == 0 {
		return &ChannelError{Channel: ch, Op: "converting waveform", Err: fmt.Errorf("empty waveform")}
	}

	t0 = e.now()
	wf := oscilloscope.FromDivisions(raw, scale, e.cfg.FullScaleDivisions)
	v := wf.Physical()
	stats := oscilloscope.Summarize(v)
	e.publish(param.ChannelName(ch, "Waveform"), v, ts, false)
	e.publish(param.ChannelName(ch, "Peak2Peak"), stats.PeakToPeak, ts, false)
	e.publish(param.ChannelName(ch, "Mean"), stats.Mean, ts, false)
	e.timing.PublishWaveform += e.now().Sub(t0)
	return nil
}

// waitReady polls the trigger status at a fixed interval until the
// instrument leaves the stopped state, at most ReadyAttempts times.  If it
// does not, the engine is stopped: it must never report running while the
// instrument is halted.  The exclusive region is only held per query.
func (e *Engine) waitReady(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := 0
	op := func() error {
		attempts++
		status, err := e.inst.Query(rohde.TriggerStateQuery)
		if err != nil {
			return err
		}
		if e.stopped[status] {
			return ErrStillStopped
		}
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.ReadyInterval), uint64(e.cfg.ReadyAttempts-1)),
		ctx)
	if err := backoff.Retry(op, b); err != nil {
		e.setRunState(Stopped)
		e.log.Warn("scope still stopped after %d status queries (%v), server stopped", attempts, err)
		return false
	}
	return true
}
