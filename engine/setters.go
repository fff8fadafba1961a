package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/rohde"
	"github.com/nasa-jpl/scopesync/scpi"
)

// Set carries out an external write of value to the named parameter through
// the handler resolved for it at registration
func (e *Engine) Set(name string, value interface{}) error {
	p, ok := e.reg.Lookup(name)
	if !ok {
		return errors.Wrap(param.ErrUnknown, name)
	}
	h, ok := e.reg.SetterFor(name)
	if !ok {
		return errors.Wrap(param.ErrReadOnly, name)
	}
	v, err := param.Coerce(p, value)
	if err != nil {
		return err
	}
	e.log.Debug(1, "set %s=%v (%s)", name, v, h.Kind)
	switch h.Kind {
	case param.DirectWrite:
		e.publish(name, v, e.now(), false)
		return nil
	case param.TemplateWrite:
		cmd := scpi.Canonical(p.Command) + " " + format(v)
		if err := e.inst.Write(cmd); err != nil {
			e.log.Error("in set %s, command %s: %v", name, cmd, err)
			e.clearStatus()
			return err
		}
		e.publish(name, v, e.now(), false)
		return nil
	case param.Custom:
		return h.Func(&p, v)
	default:
		return errors.Wrap(param.ErrReadOnly, name)
	}
}

func format(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'G', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(v)
	}
}

func (e *Engine) clearStatus() {
	if err := e.inst.Write("*CLS"); err != nil {
		e.log.Error("clearing status: %v", err)
	}
}

func (e *Engine) setServer(p *param.Parameter, v interface{}) error {
	switch v.(string) {
	case Running.String():
		return e.Start(context.Background())
	case Stopped.String():
		e.Stop()
	case Exiting.String():
		e.Exit()
	}
	return nil
}

func (e *Engine) setSetup(p *param.Parameter, v interface{}) error {
	action, ok, err := rohde.ParseSetupAction(v.(string))
	if err != nil || !ok {
		e.publish(p.Name, rohde.SetupIdle, e.now(), false)
		return err
	}
	if action.Recall && e.RunState() == Running {
		e.log.Warn("%v", ErrRecallWhileRunning)
		e.publish(p.Name, rohde.SetupIdle, e.now(), false)
		return ErrRecallWhileRunning
	}
	cmd := action.Command()
	if err := e.inst.Write(cmd); err != nil {
		e.log.Error("in setup, command %s: %v", cmd, err)
		e.clearStatus()
		e.publish(p.Name, rohde.SetupIdle, e.now(), false)
		return err
	}
	ts := e.now()
	e.publish(p.Name, rohde.SetupIdle, ts, false)
	e.publish("status", action.Status(), ts, false)
	if action.Recall {
		return e.PullAndPublish()
	}
	return nil
}

func (e *Engine) setTrigger(p *param.Parameter, v interface{}) error {
	if v.(string) == "Force!" {
		if err := e.inst.Write(rohde.ForceTrigger); err != nil {
			e.log.Error("forcing trigger: %v", err)
			e.clearStatus()
			return err
		}
	}
	e.publish(p.Name, rohde.TriggerIdle, e.now(), false)
	return nil
}

func (e *Engine) setRecLength(p *param.Parameter, v interface{}) error {
	cmd := rohde.RecordLength + " " + format(v)
	if err := e.inst.Write(cmd); err != nil {
		e.log.Error("in set %s, command %s: %v", p.Name, cmd, err)
		e.clearStatus()
		return err
	}
	e.publish(p.Name, v, e.now(), false)
	if err := e.Refresh(); err != nil {
		e.log.Warn("refreshing scope parameters: %v", err)
	}
	return nil
}

// setInstrCmd executes an arbitrary command; the reply to a query goes to
// instrCmdR
func (e *Engine) setInstrCmd(p *param.Parameter, v interface{}) error {
	cmd := v.(string)
	e.publish("instrCmdR", "", e.now(), false)
	var (
		reply string
		err   error
	)
	if strings.Contains(cmd, "?") {
		reply, err = e.inst.Query(cmd)
	} else {
		err = e.inst.Write(cmd)
	}
	if err != nil {
		e.log.Error("in %s, command %s: %v", p.Name, cmd, err)
		e.clearStatus()
		return err
	}
	ts := e.now()
	if reply != "" {
		e.publish("instrCmdR", reply, ts, false)
	}
	e.publish(p.Name, cmd, ts, false)
	return nil
}
