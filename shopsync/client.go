package shopsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type shopClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *time.Ticker
}

var (
	sharedClientMu sync.Mutex
	sharedClient   *shopClient
)

// getShopClient returns the process-wide client so every event shares one
// rate limiter instead of paying a fresh warm-up per message. Cached only on
// success; a missing base URL is retried on the next event.
func getShopClient() (*shopClient, error) {
	sharedClientMu.Lock()
	defer sharedClientMu.Unlock()
	if sharedClient != nil {
		return sharedClient, nil
	}
	c, err := newShopClient("")
	if err != nil {
		return nil, err
	}
	sharedClient = c
	return c, nil
}

func newShopClient(token string) (*shopClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("SHOPFRONT_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("SHOPFRONT_API_BASE_URL is empty")
	}
	if strings.TrimSpace(token) == "" {
		token = strings.TrimSpace(os.Getenv("SHOPFRONT_API_TOKEN"))
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("SHOPFRONT_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &shopClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.NewTicker(interval),
	}, nil
}

// Close stops the rate-limit ticker. The shared client is never closed;
// short-lived clients must be.
func (c *shopClient) Close() {
	c.limiter.Stop()
}

func (c *shopClient) do(req *http.Request) (int, []byte, error) {
	<-c.limiter.C
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

// DeleteListing removes a storefront listing. A 404 means the listing is
// already gone and counts as success; the bool reports whether the listing
// is confirmed absent.
func (c *shopClient) DeleteListing(ctx context.Context, listingId string) (bool, error) {
	endpoint := fmt.Sprintf("%s/listings/%s", c.baseURL, listingId)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return false, err
	}
	status, body, err := c.do(req)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return true, nil
	}
	if status < 200 || status >= 300 {
		return false, fmt.Errorf("shopfront api error %d: %s", status, strings.TrimSpace(string(body)))
	}
	return true, nil
}

// DesyncWebListing removes the web-scope mirror of a listing. Best-effort:
// callers log failures instead of raising them.
func (c *shopClient) DesyncWebListing(ctx context.Context, listingId string) error {
	endpoint := fmt.Sprintf("%s/web-listings/%s/desync", c.baseURL, listingId)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("shopfront api error %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}
