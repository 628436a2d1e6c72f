package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// -- Reasoning Mock --

type MockReasoning struct {
	mock.Mock
}

func (m *MockReasoning) NextDirective(ctx context.Context, screenshotPath, task string) *schemas.ActionDirective {
	args := m.Called(ctx, screenshotPath, task)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*schemas.ActionDirective)
}

func (m *MockReasoning) Classify(ctx context.Context, screenshotPath, prompt string) (string, error) {
	args := m.Called(ctx, screenshotPath, prompt)
	return args.String(0), args.Error(1)
}

// -- Fake Clock --

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// -- Fake Browser --

// fakeBrowser is a scripted BrowserSurface. Waits advance the shared clock
// instead of sleeping.
type fakeBrowser struct {
	mu    sync.Mutex
	clock *fakeClock

	url       string
	modal     bool
	navErr    error
	captErr   error
	urlErr    error
	clickErrs map[string]error
	textErr   error
	onWait    func(d time.Duration)

	seq      int
	calls    []string
	captures []schemas.Observation
	closed   bool
}

func newFakeBrowser(clock *fakeClock) *fakeBrowser {
	return &fakeBrowser{clock: clock, clickErrs: map[string]error{}}
}

func (b *fakeBrowser) record(call string) {
	b.calls = append(b.calls, call)
}

func (b *fakeBrowser) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("navigate:" + url)
	if b.navErr != nil {
		return b.navErr
	}
	b.url = url
	return nil
}

func (b *fakeBrowser) CaptureScreenshot(ctx context.Context, label string, metadata map[string]interface{}) (schemas.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("capture:" + label)
	if b.captErr != nil {
		return schemas.Observation{}, b.captErr
	}
	b.seq++
	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	obs := schemas.Observation{
		Sequence:       b.seq,
		Label:          label,
		ScreenshotPath: fmt.Sprintf("/shots/step_%03d_%s.png", b.seq, label),
		URL:            b.url,
		CapturedAt:     b.clock.Now(),
		Metadata:       meta,
	}
	b.captures = append(b.captures, obs)
	return obs, nil
}

func (b *fakeBrowser) Click(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("click:" + selector)
	return b.clickErrs[selector]
}

func (b *fakeBrowser) ClickByText(ctx context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("text:" + text)
	return b.textErr
}

func (b *fakeBrowser) Fill(ctx context.Context, selector, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("fill:" + selector + "=" + text)
	return nil
}

func (b *fakeBrowser) WaitForTimeout(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	b.record(fmt.Sprintf("wait:%s", d))
	onWait := b.onWait
	b.mu.Unlock()
	if onWait != nil {
		onWait(d)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.clock.Advance(d)
	return nil
}

func (b *fakeBrowser) WaitForUIStable(ctx context.Context, maxWait time.Duration) error {
	return nil
}

func (b *fakeBrowser) HasModalVisible(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modal, nil
}

func (b *fakeBrowser) CurrentURL(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.urlErr != nil {
		return "", b.urlErr
	}
	return b.url, nil
}

func (b *fakeBrowser) WorkflowDir() string { return "/shots" }

func (b *fakeBrowser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *fakeBrowser) setURL(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.url = url
}
