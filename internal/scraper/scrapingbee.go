package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ScrapingBeeClient wraps HTTP requests through ScrapingBee's API
// to bypass bot protection like Kasada used by REA.
type ScrapingBeeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewScrapingBeeClient creates a new ScrapingBee client
func NewScrapingBeeClient(apiKey string, logger *slog.Logger) *ScrapingBeeClient {
	return &ScrapingBeeClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // ScrapingBee stealth mode can take up to 3 minutes
		},
		baseURL: "https://app.scrapingbee.com/api/v1/",
		logger:  logger,
	}
}

// ScrapingBeeOptions configures the ScrapingBee request
type ScrapingBeeOptions struct {
	// RenderJS enables JavaScript rendering (needed for dynamic content)
	RenderJS bool
	// Premium uses premium proxies (residential IPs)
	Premium bool
	// Stealth uses stealth proxies. Costs 75 credits per request instead of 25.
	Stealth bool
	// Country sets the proxy country (e.g., "au" for Australia)
	Country string
	// WaitForSelector waits for a CSS selector before returning
	WaitForSelector string
	// Wait adds a fixed delay in milliseconds after page load
	Wait           int
	BlockResources bool
}

// PropertyPageOptions returns options for realestate.com.au property pages
func PropertyPageOptions() ScrapingBeeOptions {
	return ScrapingBeeOptions{
		RenderJS:        true,
		Stealth:         true,
		Country:         "au",
		WaitForSelector: "h1",
		Wait:            3000,
		BlockResources:  true,
	}
}

// FetchHTML retrieves a URL through ScrapingBee
func (c *ScrapingBeeClient) FetchHTML(ctx context.Context, targetURL string, opts ScrapingBeeOptions) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("url", targetURL)

	if opts.RenderJS {
		params.Set("render_js", "true")
	}
	if opts.Stealth {
		params.Set("stealth_proxy", "true")
	} else if opts.Premium {
		params.Set("premium_proxy", "true")
	}
	if opts.Country != "" {
		params.Set("country_code", opts.Country)
	}
	if opts.WaitForSelector != "" {
		params.Set("wait_for", opts.WaitForSelector)
	}
	if opts.Wait > 0 {
		params.Set("wait", strconv.Itoa(opts.Wait))
	}
	if opts.BlockResources {
		params.Set("block_resources", "true")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	// ScrapingBee reports the target's status in this header
	if status := resp.Header.Get("Spb-Initial-Status-Code"); status == "404" {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ScrapingBee error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	if cost := resp.Header.Get("Spb-Cost"); cost != "" {
		c.logger.Debug("ScrapingBee request", "url", targetURL, "credits", cost)
	}

	return string(body), nil
}
