package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// stealthScript hides the most common headless Chrome tells
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
	Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
	Object.defineProperty(navigator, 'languages', {get: () => ['en-AU', 'en']});
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
`

// browser renders pages in headless Chrome. One Chrome process is launched
// on first use and shared; every render opens its own tab in it.
type browser struct {
	headless bool
	settle   time.Duration
	logger   *slog.Logger

	once          sync.Once
	startErr      error
	allocCtx      context.Context
	cancel        context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func newBrowser(headless bool, logger *slog.Logger) *browser {
	return &browser{
		headless: headless,
		settle:   6 * time.Second,
		logger:   logger,
	}
}

func (b *browser) start() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Anti-detection flags
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(browserUserAgent),
	)

	b.allocCtx, b.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	// Running no actions launches the process
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.startErr = fmt.Errorf("failed to launch browser: %w", err)
		return
	}
	b.logger.Debug("Browser started", "headless", b.headless)
}

// render navigates to pageURL and returns the page HTML once it settles
func (b *browser) render(ctx context.Context, pageURL string) (string, error) {
	b.once.Do(b.start)
	if b.startErr != nil {
		return "", b.startErr
	}

	// A context derived from the browser context is a new tab
	taskCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()

	// Tie the tab to the caller's deadline
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html, location string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-AU,en;q=0.9",
		}),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(stealthScript, nil),
		// Bot protection needs a moment to verify the session
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&location),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	b.logger.Debug("Page rendered", "url", location, "bytes", len(html))
	return html, nil
}

// close shuts the browser down if it was started
func (b *browser) close() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.cancel != nil {
		b.cancel()
	}
}
