package tagging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxCoverBytes = 10 << 20

// CoverFetcher downloads album art.
type CoverFetcher struct {
	client *http.Client
}

// NewCoverFetcher returns a fetcher with a bounded request timeout.
func NewCoverFetcher(client *http.Client) *CoverFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CoverFetcher{client: client}
}

// Fetch returns the image at url. An empty url returns (nil, nil).
func (c *CoverFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build cover request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch cover: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	if len(data) > maxCoverBytes {
		return nil, fmt.Errorf("cover exceeds %d bytes", maxCoverBytes)
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, fmt.Errorf("cover is not an image")
	}
	return data, nil
}
