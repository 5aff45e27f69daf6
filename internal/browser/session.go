// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/nregabot/nregabot/internal/config"
	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
)

const dialogQueue = 16

// Session drives one tab of an already running Chrome over the DevTools protocol.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	tab           context.Context
	tabCancel     context.CancelFunc

	dialogs chan string
}

// Connect attaches to the debugger at cfg.DebuggerURL, retrying with
// exponential backoff for at most cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")

	op := func() (*Session, error) {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		s, err := attach(cfg, logger)
		if err != nil {
			logger.Debug("Browser not reachable yet", zap.String("addr", cfg.DebuggerURL), zap.Error(err))
			return nil, err
		}
		return s, nil
	}

	s, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(cfg.ConnectTimeout),
	)
	if err != nil {
		return nil, &domain.ConnectionError{Addr: cfg.DebuggerURL, Err: err}
	}

	logger.Info("Connected to browser", zap.String("addr", cfg.DebuggerURL))
	return s, nil
}

func attach(cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cfg.DebuggerURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// the browser connection lives as long as the context passed here
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("list targets: %w", err)
	}

	// a dedicated tab shares the profile's login cookies and is closed with the session
	logger.Debug("Browser reachable", zap.Int("open_pages", countPages(targets)))
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	s := &Session{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		tab:           tabCtx,
		tabCancel:     tabCancel,
		dialogs:       make(chan string, dialogQueue),
	}
	chromedp.ListenTarget(tabCtx, s.onTargetEvent)

	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("attach tab: %w", err)
	}
	return s, nil
}

func countPages(targets []*target.Info) int {
	n := 0
	for _, t := range targets {
		if t.Type == "page" && !strings.HasPrefix(t.URL, "devtools://") {
			n++
		}
	}
	return n
}

func (s *Session) onTargetEvent(ev interface{}) {
	e, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	s.logger.Info("Dialog opened", zap.String("type", string(e.Type)), zap.String("message", e.Message))

	// listeners must not block the event loop
	go func(msg string) {
		if err := chromedp.Run(s.tab, page.HandleJavaScriptDialog(true)); err != nil {
			s.logger.Warn("Failed to accept dialog", zap.Error(err))
		}
		if n := pushLatest(s.dialogs, msg); n > 0 {
			s.logger.Warn("Dialog queue full, dropped oldest", zap.Int("dropped", n))
		}
	}(e.Message)
}

// Alive reports whether the tab is still attached.
func (s *Session) Alive() bool {
	return s.tab.Err() == nil
}

func (s *Session) Close() error {
	s.tabCancel()
	s.browserCancel()
	s.allocCancel()
	return nil
}

// run executes actions with timeout, also aborting when ctx is cancelled.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = s.cfg.WaitTimeout
	}
	actx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(actx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.WaitTimeout, chromedp.Navigate(url)); err != nil {
		return &domain.InteractionError{Step: "navigate", Selector: url, Err: err}
	}
	return nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) WaitResult {
	start := time.Now()
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && ctx.Err() != nil {
		return Failed(selector, err, time.Since(start))
	}
	return Classify(selector, err, time.Since(start))
}

func (s *Session) WaitText(ctx context.Context, selector, contains string, timeout time.Duration) WaitResult {
	return Poll(ctx, selector, timeout, 250*time.Millisecond, func(pctx context.Context) (bool, string, error) {
		var text string
		err := s.run(pctx, time.Second, chromedp.Text(selector, &text, chromedp.ByQuery))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return false, "", nil
			}
			return false, "", err
		}
		return strings.Contains(text, contains), strings.TrimSpace(text), nil
	})
}

func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.WaitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return &domain.InteractionError{Step: "click", Selector: selector, Err: err}
	}
	return nil
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	err := s.run(ctx, s.cfg.WaitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(dispatchChangeScript(selector), nil),
	)
	if err != nil {
		return &domain.InteractionError{Step: "fill", Selector: selector, Err: err}
	}
	return nil
}

func (s *Session) SelectByText(ctx context.Context, selector, text string) error {
	var status string
	err := s.run(ctx, s.cfg.WaitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(selectByTextScript(selector, text), &status),
	)
	if err == nil {
		err = selectStatusError(status, text)
	}
	if err != nil {
		return &domain.InteractionError{Step: "select", Selector: selector, Err: err}
	}
	return nil
}

func (s *Session) SelectByIndex(ctx context.Context, selector string, index int) error {
	var status string
	err := s.run(ctx, s.cfg.WaitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(selectByIndexScript(selector, index), &status),
	)
	if err == nil {
		err = selectStatusError(status, fmt.Sprintf("#%d", index))
	}
	if err != nil {
		return &domain.InteractionError{Step: "select_index", Selector: selector, Err: err}
	}
	return nil
}

func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, s.cfg.WaitTimeout, chromedp.Text(selector, &text, chromedp.ByQuery))
	if err != nil {
		return "", &domain.InteractionError{Step: "read_text", Selector: selector, Err: err}
	}
	return strings.TrimSpace(text), nil
}

func (s *Session) Evaluate(ctx context.Context, script string) (string, error) {
	var res interface{}
	if err := s.run(ctx, s.cfg.WaitTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return "", &domain.InteractionError{Step: "eval", Err: err}
	}
	return stringify(res), nil
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.cfg.WaitTimeout, chromedp.Location(&url)); err != nil {
		return "", &domain.InteractionError{Step: "location", Err: err}
	}
	return url, nil
}

func (s *Session) AwaitDialog(ctx context.Context, timeout time.Duration) (string, WaitResult) {
	if timeout <= 0 {
		timeout = s.cfg.DialogTimeout
	}
	return awaitDialog(ctx, s.dialogs, timeout)
}

func (s *Session) DiscardDialogs() {
	drain(s.dialogs)
}

func awaitDialog(ctx context.Context, dialogs <-chan string, timeout time.Duration) (string, WaitResult) {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-dialogs:
		return msg, Ready("dialog", msg, time.Since(start))
	case <-timer.C:
		return "", TimedOut("dialog", time.Since(start))
	case <-ctx.Done():
		return "", Failed("dialog", ctx.Err(), time.Since(start))
	}
}

// pushLatest queues msg without blocking, evicting the oldest messages while
// the queue is full. It returns the number evicted.
func pushLatest(ch chan string, msg string) (evicted int) {
	for {
		select {
		case ch <- msg:
			return evicted
		default:
		}
		select {
		case <-ch:
			evicted++
		default:
		}
	}
}

func drain(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func dispatchChangeScript(selector string) string {
	return fmt.Sprintf(`(function(){const el=document.querySelector(%s);if(!el)return false;`+
		`el.dispatchEvent(new Event('input',{bubbles:true}));`+
		`el.dispatchEvent(new Event('change',{bubbles:true}));return true;})()`, jsString(selector))
}

func selectByTextScript(selector, text string) string {
	return fmt.Sprintf(`(function(sel,text){const el=document.querySelector(sel);if(!el)return "missing";`+
		`for(const o of el.options){if(o.text.trim()===text.trim()){el.value=o.value;`+
		`el.dispatchEvent(new Event('change',{bubbles:true}));return "ok";}}return "nooption";})(%s,%s)`,
		jsString(selector), jsString(text))
}

func selectByIndexScript(selector string, index int) string {
	return fmt.Sprintf(`(function(sel,i){const el=document.querySelector(sel);if(!el)return "missing";`+
		`if(i<0||i>=el.options.length)return "nooption";el.selectedIndex=i;`+
		`el.dispatchEvent(new Event('change',{bubbles:true}));return "ok";})(%s,%d)`,
		jsString(selector), index)
}

func selectStatusError(status, text string) error {
	switch status {
	case "ok":
		return nil
	case "missing":
		return errors.New("element not found")
	case "nooption":
		return fmt.Errorf("option %q not found", text)
	default:
		return fmt.Errorf("unexpected select result %q", status)
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Manager keeps one Session alive and reconnects when the tab goes away.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	session *Session
}

func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

func (m *Manager) Driver(ctx context.Context) (Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.Alive() {
		return m.session, nil
	}
	if m.session != nil {
		m.logger.Warn("Browser session lost, reconnecting")
		_ = m.session.Close()
		m.session = nil
	}

	s, err := Connect(ctx, m.cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.session = s
	return s, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
