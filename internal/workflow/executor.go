package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/nregabot/nregabot/internal/browser"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/runner"
	"go.uber.org/zap"
)

type ExecutorOptions struct {
	WaitTimeout   time.Duration
	DialogTimeout time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

// Executor turns definitions into runner work functions.
type Executor struct {
	provider browser.Provider
	lock     *browser.SessionLock
	opts     ExecutorOptions
	logger   *zap.Logger
}

func NewExecutor(provider browser.Provider, lock *browser.SessionLock, opts ExecutorOptions, logger *zap.Logger) *Executor {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 20 * time.Second
	}
	if opts.DialogTimeout <= 0 {
		opts.DialogTimeout = 10 * time.Second
	}
	return &Executor{
		provider: provider,
		lock:     lock,
		opts:     opts,
		logger:   logger.Named("executor"),
	}
}

// itemEnd is returned by a matching check step to finish an item early.
type itemEnd struct {
	outcome domain.Outcome
	detail  string
}

func (e *itemEnd) Error() string { return string(e.outcome) + ": " + e.detail }

// WorkFunc builds the body of one run over values. values must already be
// validated; the item list is taken from the definition's item field.
func (e *Executor) WorkFunc(def *Definition, values map[string]string) runner.WorkFunc {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		fields[k] = v
	}
	items := SplitItems(fields[def.ItemField])

	return func(ctx context.Context, rep *runner.Reporter) error {
		log := rep.Logger()

		rep.Progress("Waiting for browser session", 0)
		if err := e.lock.Acquire(ctx, rep.Key()); err != nil {
			if rep.Stopped() {
				return nil
			}
			return err
		}
		defer e.lock.Release(rep.Key())

		rep.Progress("Connecting to browser", 0)
		drv, err := e.provider.Driver(ctx)
		if err != nil {
			if rep.Stopped() {
				return nil
			}
			return err
		}
		drv.DiscardDialogs()

		// an item's steps run to completion; stop is observed between items
		stepCtx := context.WithoutCancel(ctx)
		data := &TemplateData{Fields: fields, URL: def.URL, Total: len(items)}

		if len(def.Setup) > 0 {
			rep.Progress("Preparing "+def.Title, 0)
			if err := e.runSteps(stepCtx, drv, def.Setup, data, log); err != nil {
				var end *itemEnd
				if errors.As(err, &end) {
					return fmt.Errorf("setup: unexpected %s", end.detail)
				}
				return fmt.Errorf("setup: %w", err)
			}
		}

		minDelay, maxDelay := e.delays(def)
		for i, item := range items {
			if rep.Stopped() {
				log.Info("Stop observed", zap.Int("processed", i), zap.Int("total", len(items)))
				return nil
			}
			rep.Progress(fmt.Sprintf("Processing %s (%d/%d)", item, i+1, len(items)), float64(i)/float64(len(items)))

			data.Item, data.Index, data.Captured = item, i+1, ""
			outcome, detail, err := e.processItem(stepCtx, drv, def, data, log)
			if err != nil {
				rep.Result(item, domain.OutcomeFailed, domain.ItemDetail(err))
				if domain.IsFatal(err) {
					return err
				}
				log.Warn("Item failed", zap.String("item", item), zap.Error(err))
			} else {
				rep.Result(item, outcome, detail)
			}

			if i < len(items)-1 && !rep.Sleep(randomDelay(minDelay, maxDelay)) {
				return nil
			}
		}

		rep.Progress(fmt.Sprintf("Processed %d item(s)", len(items)), 1)
		return nil
	}
}

func (e *Executor) processItem(ctx context.Context, drv browser.Driver, def *Definition, data *TemplateData, log *zap.Logger) (domain.Outcome, string, error) {
	drv.DiscardDialogs()
	if err := e.runSteps(ctx, drv, def.Items, data, log); err != nil {
		var end *itemEnd
		if errors.As(err, &end) {
			return end.outcome, end.detail, nil
		}
		return "", "", err
	}
	outcome, detail, err := def.Match(data.Captured, data)
	if err != nil {
		return "", "", &domain.InteractionError{Step: "outcome", Err: err}
	}
	return outcome, detail, nil
}

func (e *Executor) runSteps(ctx context.Context, drv browser.Driver, steps []Step, data *TemplateData, log *zap.Logger) error {
	for i := range steps {
		st := &steps[i]
		err := e.runStep(ctx, drv, st, data)
		if err == nil {
			continue
		}
		var end *itemEnd
		if errors.As(err, &end) {
			return err
		}
		if st.Optional {
			log.Debug("Optional step failed", zap.String("action", string(st.Action)), zap.Error(err))
			continue
		}
		if st.Fatal {
			return markFatal(err, st)
		}
		return err
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, drv browser.Driver, st *Step, data *TemplateData) error {
	sel, err := render(st.selector, data)
	if err != nil {
		return &domain.InteractionError{Step: string(st.Action), Err: err, Fatal: true}
	}
	val, err := render(st.value, data)
	if err != nil {
		return &domain.InteractionError{Step: string(st.Action), Selector: sel, Err: err, Fatal: true}
	}

	timeout := st.Timeout.Std()
	if timeout <= 0 {
		timeout = e.opts.WaitTimeout
	}

	switch st.Action {
	case ActionNavigate:
		return drv.Navigate(ctx, val)

	case ActionWait:
		return drv.WaitVisible(ctx, sel, timeout).AsError("wait")

	case ActionWaitText:
		res := drv.WaitText(ctx, sel, val, timeout)
		if res.OK() && st.Capture {
			data.Captured = res.Value
		}
		return res.AsError("wait_text")

	case ActionClick:
		return drv.Click(ctx, sel)

	case ActionFill:
		return drv.Fill(ctx, sel, val)

	case ActionSelect:
		return drv.SelectByText(ctx, sel, val)

	case ActionSelectIndex:
		idx, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return &domain.InteractionError{Step: "select_index", Selector: sel, Err: err, Fatal: true}
		}
		return drv.SelectByIndex(ctx, sel, idx)

	case ActionEval:
		out, err := drv.Evaluate(ctx, val)
		if err == nil && st.Capture {
			data.Captured = out
		}
		return err

	case ActionReadText:
		out, err := drv.Text(ctx, sel)
		if err == nil {
			data.Captured = out
		}
		return err

	case ActionAcceptDialog:
		if st.Timeout <= 0 {
			timeout = e.opts.DialogTimeout
		}
		msg, res := drv.AwaitDialog(ctx, timeout)
		if res.OK() && (st.Capture || data.Captured == "") {
			data.Captured = msg
		}
		return res.AsError("accept_dialog")

	case ActionCheck:
		text := data.Captured
		if sel != "" {
			t, err := drv.Text(ctx, sel)
			if err != nil {
				// a missing element is a non-match
				return nil
			}
			text = t
		}
		if !checkMatches(text, val) {
			return nil
		}
		data.Captured = strings.TrimSpace(text)
		detail, err := render(st.detail, data)
		if err != nil || detail == "" {
			detail = data.Captured
		}
		return &itemEnd{outcome: st.Outcome, detail: detail}

	case ActionSleep:
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

func checkMatches(text, want string) bool {
	if want == "" {
		return strings.TrimSpace(text) != ""
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(want))
}

func markFatal(err error, st *Step) error {
	var ie *domain.InteractionError
	if errors.As(err, &ie) {
		cp := *ie
		cp.Fatal = true
		return &cp
	}
	return &domain.InteractionError{Step: string(st.Action), Selector: st.Selector, Err: err, Fatal: true}
}

func (e *Executor) delays(def *Definition) (time.Duration, time.Duration) {
	lo, hi := e.opts.MinDelay, e.opts.MaxDelay
	if def.Delay.Min != nil {
		lo = def.Delay.Min.Std()
	}
	if def.Delay.Max != nil {
		hi = def.Delay.Max.Std()
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func randomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
