// internal/agent/dispatcher.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// actionHandler performs one directive kind against the browser.
type actionHandler func(ctx context.Context, d schemas.ActionDirective) error

// Dispatcher executes directives against a browser surface. Every failure,
// including a panicking handler, is returned as a failed ActionOutcome.
type Dispatcher struct {
	browser     schemas.BrowserSurface
	defaultWait time.Duration
	logger      *zap.Logger
	handlers    map[schemas.DirectiveKind]actionHandler
}

// NewDispatcher registers a handler for every known directive kind.
func NewDispatcher(browser schemas.BrowserSurface, defaultWait time.Duration, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		browser:     browser,
		defaultWait: defaultWait,
		logger:      logger.Named("dispatcher"),
	}
	d.handlers = map[schemas.DirectiveKind]actionHandler{
		schemas.KindClick:    d.click,
		schemas.KindFill:     d.fill,
		schemas.KindWait:     d.wait,
		schemas.KindNavigate: d.navigate,
		schemas.KindUnknown:  d.unknown,
	}
	return d
}

// Execute runs directive. app is carried for log context only.
func (d *Dispatcher) Execute(ctx context.Context, directive schemas.ActionDirective, app schemas.Application) (outcome schemas.ActionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic recovered during action execution",
				zap.Any("panic_value", r),
				zap.String("action", directive.RawKind),
				zap.Stack("stack"),
			)
			outcome = schemas.OutcomeFailed(fmt.Errorf("action %s panicked: %v", directive.RawKind, r))
		}
	}()

	handler, ok := d.handlers[directive.Kind]
	if !ok {
		handler = d.unknown
	}

	d.logger.Debug("Executing action",
		zap.String("action", directive.RawKind),
		zap.String("app", app.Key),
		zap.String("description", directive.Description))

	if err := handler(ctx, directive); err != nil {
		return schemas.OutcomeFailed(err)
	}
	return schemas.OutcomeOK()
}

func (d *Dispatcher) click(ctx context.Context, dir schemas.ActionDirective) error {
	if dir.Selector != "" {
		err := d.browser.Click(ctx, dir.Selector)
		if err == nil {
			return nil
		}
		if dir.Text == "" {
			return err
		}
		d.logger.Info("Selector failed, trying text-based click", zap.String("text", dir.Text), zap.Error(err))
		return d.browser.ClickByText(ctx, dir.Text)
	}
	if dir.Text != "" {
		return d.browser.ClickByText(ctx, dir.Text)
	}
	return errors.New("no selector or text provided for click action")
}

func (d *Dispatcher) fill(ctx context.Context, dir schemas.ActionDirective) error {
	if dir.Selector == "" || dir.Text == "" {
		return errors.New("selector and text required for fill action")
	}
	return d.browser.Fill(ctx, dir.Selector, dir.Text)
}

func (d *Dispatcher) wait(ctx context.Context, dir schemas.ActionDirective) error {
	wait := d.defaultWait
	if dir.WaitMillis > 0 {
		wait = time.Duration(dir.WaitMillis) * time.Millisecond
	}
	return d.browser.WaitForTimeout(ctx, wait)
}

func (d *Dispatcher) navigate(ctx context.Context, dir schemas.ActionDirective) error {
	if dir.URL == "" {
		name := strings.ToLower(strings.TrimSpace(dir.RawKind))
		if name == "" {
			name = string(schemas.KindNavigate)
		}
		return fmt.Errorf("URL required for %s action", name)
	}
	return d.browser.Navigate(ctx, dir.URL)
}

// unknown keeps directives with an unrecognized kind useful when they still name a target.
func (d *Dispatcher) unknown(ctx context.Context, dir schemas.ActionDirective) error {
	if dir.Selector != "" {
		return d.browser.Click(ctx, dir.Selector)
	}
	return fmt.Errorf("unknown action: %s", dir.RawKind)
}
