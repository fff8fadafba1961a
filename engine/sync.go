package engine

import (
	"github.com/nasa-jpl/scopesync/scpi"
)

// PullAndPublish reads every setting of the instrument in one round trip and
// publishes the ones that changed, stamped with the time of the read.
//
// A transport failure is logged and the pull skipped.  A reply that does not
// match the query, or cannot be converted, is fatal.
func (e *Engine) PullAndPublish() error {
	if e.query.Len() == 0 {
		return nil
	}
	cmd := e.query.String()
	ts := e.now()
	reply, err := e.inst.Query(cmd)
	if err != nil {
		if scpi.KindOf(err).Transport() {
			e.metrics.TransportErrors.WithLabelValues(scpi.KindOf(err).String()).Inc()
			e.log.Error("reading settings: %v", err)
			return nil
		}
		return e.fail("reading settings", cmd, err)
	}
	e.log.Debug(2, "settings reply: %s", reply)

	changes, err := e.reg.ApplyCombinedReply(e.query, reply)
	if err != nil {
		// *param.MismatchError or *param.ConversionError
		return e.fail("applying settings", cmd, err)
	}
	if len(changes) == 0 {
		e.log.Info("local setting did not change")
		return nil
	}
	for _, c := range changes {
		e.log.Debug(1, "posting %s=%v", c.Name, c.Value)
		e.bridge.Publish(c.Name, c.Value, ts, false)
	}
	e.metrics.SettingChanges.Add(float64(len(changes)))
	return nil
}
