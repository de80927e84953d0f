package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/andrej220/confaudit/internal/lg"
	pc "github.com/andrej220/confaudit/internal/processor"
	ex "github.com/andrej220/confaudit/pkg/executor"
	"github.com/andrej220/confaudit/pkg/plan"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

// DeviceTask drives one plan against one device and condenses everything
// that happened into a single Outcome.
type DeviceTask struct {
	Device    dm.Device
	Plan      *plan.Plan
	Creds     ex.Credentials
	Timeouts  ex.Timeouts
	Transport ex.Transport
	Logger    lg.Logger
}

var _ ex.Task[dm.Outcome] = (*DeviceTask)(nil)

func NewDeviceTask(dev dm.Device, p *plan.Plan, creds ex.Credentials, timeouts ex.Timeouts, transport ex.Transport, logger lg.Logger) *DeviceTask {
	if logger == nil {
		logger = lg.Discard
	}
	return &DeviceTask{
		Device:    dev,
		Plan:      p,
		Creds:     creds,
		Timeouts:  timeouts,
		Transport: transport,
		Logger:    logger.With(lg.String("host", dev.Host), lg.Int("index", dev.Index)),
	}
}

// sessionState tracks what teardown has to undo.
type sessionState struct {
	inConfig bool
	dirty    bool // lines pushed and not committed
}

type stepResult struct {
	output    string
	confirmed bool
}

// Execute never panics and never returns an error: every failure ends up
// in the Outcome. Cancelling ctx stops the plan between steps; the step in
// flight completes and the session is still torn down.
func (t *DeviceTask) Execute(ctx context.Context) (out dm.Outcome) {
	start := time.Now()
	out = dm.Outcome{Host: t.Device.Host}
	defer func() { out.Elapsed = time.Since(start) }()
	defer func() {
		if r := recover(); r != nil {
			t.Logger.Error("device task panicked", lg.Any("panic", r))
			out.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if ctx.Err() != nil {
		out.Error = fmt.Sprintf("%v before connect", ex.ErrInterrupted)
		return out
	}

	sess, err := t.Transport.Open(ctx, t.Device.Host, t.Creds, t.Timeouts)
	if err != nil {
		t.Logger.Debug("open failed", lg.Err(err))
		out.Error = err.Error()
		return out
	}
	out.Reachable = true

	state := &sessionState{}
	defer t.teardown(ctx, sess, state)

	// steps already started run to completion on interrupt
	stepCtx := context.WithoutCancel(ctx)
	for i, step := range t.Plan.Steps {
		if ctx.Err() != nil {
			out.Error = fmt.Sprintf("%v before step %d %s", ex.ErrInterrupted, i, step.Kind)
			break
		}
		res, err := t.runStep(stepCtx, sess, step, state)
		if step.BestEffort {
			if err != nil {
				t.Logger.Debug("best-effort step failed", lg.String("step", step.String()), lg.Err(err))
			}
			continue
		}
		if err != nil {
			t.Logger.Debug("step failed", lg.String("step", step.String()), lg.Err(err))
			if ex.IsTransportError(err) {
				// the device stopped answering, so nothing read so far counts
				out = dm.Outcome{Host: t.Device.Host}
			}
			out.Error = err.Error()
			break
		}
		t.apply(&out, step, res)
	}
	return out
}

func (t *DeviceTask) runStep(ctx context.Context, sess ex.Session, step plan.Step, st *sessionState) (stepResult, error) {
	d := t.Plan.Dialect
	switch step.Kind {
	case plan.KindEnterConfigMode:
		resp, err := sess.Send(ctx, step.Command)
		if err != nil {
			return stepResult{}, err
		}
		if line, bad := d.Rejected(resp); bad {
			return stepResult{}, &ex.StepError{Step: string(step.Kind), Reason: line}
		}
		st.inConfig = true
		return stepResult{output: resp}, nil

	case plan.KindPushLines:
		st.dirty = true
		for _, line := range step.Lines {
			resp, err := sess.Send(ctx, line)
			if err != nil {
				return stepResult{}, err
			}
			if reason, bad := d.Rejected(resp); bad {
				return stepResult{}, &ex.StepError{
					Step:   string(step.Kind),
					Reason: fmt.Sprintf("configuration rejected %q: %s", line, reason),
				}
			}
		}
		return stepResult{}, nil

	case plan.KindCommit:
		resp, err := sess.Send(ctx, step.Command)
		if err != nil {
			return stepResult{}, err
		}
		ok := d.Confirmed(resp)
		if ok {
			st.dirty = false
		}
		return stepResult{output: resp, confirmed: ok}, nil

	case plan.KindExitConfigMode:
		if st.dirty && d.DiscardChanges != "" {
			if _, err := sess.Send(ctx, d.DiscardChanges); err != nil {
				return stepResult{}, err
			}
			st.dirty = false
		}
		resp, err := sess.Send(ctx, step.Command)
		if err != nil {
			return stepResult{}, err
		}
		st.inConfig = false
		return stepResult{output: resp}, nil

	case plan.KindSendRaw, plan.KindCapture:
		resp, err := sess.Send(ctx, step.Command)
		if err != nil {
			return stepResult{}, err
		}
		return stepResult{output: resp}, nil
	}
	return stepResult{}, &ex.StepError{Step: string(step.Kind), Reason: "unsupported step"}
}

func (t *DeviceTask) apply(out *dm.Outcome, step plan.Step, res stepResult) {
	switch step.Kind {
	case plan.KindCommit:
		out.OperationSucceeded = res.confirmed
	case plan.KindCapture:
		if step.Target != "" {
			out.MatchCount = pc.CountMatches(res.output, step.Target)
			out.OperationSucceeded = out.MatchCount > 0
		}
		if len(step.Expect) > 0 {
			out.Verified = pc.VerifyLines(res.output, step.Expect)
			if !out.Verified {
				out.Missing = pc.MissingLines(res.output, step.Expect)
			}
		}
	}
}

// teardown leaves configuration mode, discarding uncommitted lines, and
// closes the session. It ignores cancellation of ctx and swallows errors.
func (t *DeviceTask) teardown(ctx context.Context, sess ex.Session, st *sessionState) {
	tctx := context.WithoutCancel(ctx)
	if t.Timeouts.Operation > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, t.Timeouts.Operation)
		defer cancel()
	}

	d := t.Plan.Dialect
	if st.inConfig {
		if st.dirty && d.DiscardChanges != "" {
			if _, err := sess.Send(tctx, d.DiscardChanges); err != nil {
				t.Logger.Debug("discard changes failed", lg.Err(err))
			}
		}
		if _, err := sess.Send(tctx, d.ExitConfig); err != nil {
			t.Logger.Debug("exit configuration mode failed", lg.Err(err))
		}
	}
	if err := sess.Close(); err != nil {
		t.Logger.Debug("close failed", lg.Err(err))
	}
}
