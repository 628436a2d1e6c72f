// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/recorder"
)

const (
	stablePoll       = 100 * time.Millisecond
	stableSettle     = 300 * time.Millisecond
	defaultOpTimeout = 30 * time.Second
)

// Session is one browser tab bound to one workflow. It implements schemas.BrowserSurface.
type Session struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	cfg       config.BrowserConfig
	workflow  *recorder.Workflow
	logger    *zap.Logger

	closeOnce sync.Once
	onClose   func()
}

var _ schemas.BrowserSurface = (*Session)(nil)

func newSession(tabCtx context.Context, tabCancel context.CancelFunc, cfg config.BrowserConfig, workflow *recorder.Workflow, logger *zap.Logger, onClose func()) *Session {
	return &Session{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		cfg:       cfg,
		workflow:  workflow,
		logger:    logger.Named("session").With(zap.String("workflow_dir", workflow.Dir())),
		onClose:   onClose,
	}
}

// initialize creates the tab and applies the viewport and automation mask.
func (s *Session) initialize(ctx context.Context) error {
	width, height := viewportSize(s.cfg.Viewport)
	return s.run(ctx, s.cfg.NavigationTimeout,
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(webdriverMaskScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject webdriver mask: %w", err)
			}
			return nil
		}),
	)
}

// run executes actions on the tab, canceled by either ctx or the tab, and bounded by timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	opCtx, cancelTimeout := context.WithTimeout(opCtx, timeout)
	defer cancelTimeout()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url, waits for the body and then a fixed post-load settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	if err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if s.cfg.PostLoadWait > 0 {
		return s.WaitForTimeout(ctx, s.cfg.PostLoadWait)
	}
	return nil
}

// CaptureScreenshot grabs the page image and records it as the next workflow step.
func (s *Session) CaptureScreenshot(ctx context.Context, label string, metadata map[string]interface{}) (schemas.Observation, error) {
	var (
		image []byte
		url   string
	)
	shot := chromedp.CaptureScreenshot(&image)
	if s.cfg.FullPage {
		// Quality 100 keeps the capture lossless PNG.
		shot = chromedp.FullScreenshot(&image, 100)
	}
	if err := s.run(ctx, s.cfg.ActionTimeout, shot, chromedp.Location(&url)); err != nil {
		return schemas.Observation{}, fmt.Errorf("screenshot %q failed: %w", label, err)
	}

	obs, err := s.workflow.Record(label, url, image, metadata)
	if err != nil {
		return schemas.Observation{}, err
	}
	s.logger.Debug("Captured screenshot", zap.Int("step", obs.Sequence), zap.String("label", label))
	return obs, nil
}

// WaitForTimeout pauses for d or until ctx is done.
func (s *Session) WaitForTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.tabCtx.Done():
		return fmt.Errorf("browser session closed: %w", s.tabCtx.Err())
	}
}

// WaitForUIStable polls for loading indicators until none is displayed, then
// settles briefly. Exceeding maxWait is not an error.
func (s *Session) WaitForUIStable(ctx context.Context, maxWait time.Duration) error {
	checks := int(maxWait / stablePoll)
	for i := 0; i < checks; i++ {
		var stable bool
		if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(loaderProbeScript, &stable)); err != nil {
			return fmt.Errorf("stability probe failed: %w", err)
		}
		if stable {
			return s.WaitForTimeout(ctx, stableSettle)
		}
		if err := s.WaitForTimeout(ctx, stablePoll); err != nil {
			return err
		}
	}
	s.logger.Debug("UI did not settle within bound", zap.Duration("max_wait", maxWait))
	return nil
}

// HasModalVisible evaluates the modal probe in the page.
func (s *Session) HasModalVisible(ctx context.Context) (bool, error) {
	var visible bool
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(modalProbeScript, &visible)); err != nil {
		return false, fmt.Errorf("modal probe failed: %w", err)
	}
	return visible, nil
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return url, nil
}

// PageTitle returns the document title.
func (s *Session) PageTitle(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

// WorkflowDir returns where this session's captures are stored.
func (s *Session) WorkflowDir() string { return s.workflow.Dir() }

// Close closes the tab. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.tabCancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
}
