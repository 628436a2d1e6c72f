// internal/browser/interaction.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	clickSettle = 500 * time.Millisecond
	fillSettle  = 300 * time.Millisecond
)

func queryOption(q Query) chromedp.QueryOption {
	if q.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Click clicks the element matched by selector, after translating text pseudo-selectors.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.clickQuery(ctx, TranslateSelector(selector)); err != nil {
		return fmt.Errorf("click failed for selector '%s': %w", selector, err)
	}
	return nil
}

// ClickByText clicks the innermost element whose text contains text.
func (s *Session) ClickByText(ctx context.Context, text string) error {
	if err := s.clickQuery(ctx, TextQuery(text)); err != nil {
		return fmt.Errorf("click failed for text '%s': %w", text, err)
	}
	return nil
}

func (s *Session) clickQuery(ctx context.Context, q Query) error {
	by := queryOption(q)
	if err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(q.Expr, by),
		chromedp.ScrollIntoView(q.Expr, by),
		chromedp.Click(q.Expr, by),
	); err != nil {
		return err
	}
	return s.WaitForTimeout(ctx, clickSettle)
}

// Fill replaces the value of the matched field with text.
func (s *Session) Fill(ctx context.Context, selector, text string) error {
	q := TranslateSelector(selector)
	by := queryOption(q)
	if err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(q.Expr, by),
		chromedp.Focus(q.Expr, by),
		chromedp.SetValue(q.Expr, "", by),
		chromedp.SendKeys(q.Expr, text, by),
	); err != nil {
		return fmt.Errorf("fill failed for selector '%s': %w", selector, err)
	}
	return s.WaitForTimeout(ctx, fillSettle)
}
