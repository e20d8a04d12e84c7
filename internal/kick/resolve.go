package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIBase is the public Kick API
const DefaultAPIBase = "https://kick.com/api/v2"

// ChannelResponse is the part of the Kick channel API response we use
type ChannelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

// Resolver looks up chatroom IDs through the Kick API
type Resolver struct {
	BaseURL string
	Client  *http.Client
}

// NewResolver creates a resolver against the public API
func NewResolver() *Resolver {
	return &Resolver{
		BaseURL: DefaultAPIBase,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fetches the channel information for a slug
func (r *Resolver) Resolve(ctx context.Context, slug string) (ChannelResponse, error) {
	endpoint := strings.TrimSuffix(r.BaseURL, "/") + "/channels/" + url.PathEscape(slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ChannelResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	setBrowserHeaders(req)

	resp, err := r.Client.Do(req)
	if err != nil {
		return ChannelResponse{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ChannelResponse{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var info ChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ChannelResponse{}, fmt.Errorf("JSON decode failed: %w", err)
	}
	if info.Chatroom.ID == 0 {
		return ChannelResponse{}, fmt.Errorf("channel %s has no chatroom", slug)
	}
	if info.Slug == "" {
		info.Slug = slug
	}
	return info, nil
}

// CloudFlare blocks requests that don't look like a browser.
// Accept-Encoding is left to the transport so gzip is decoded for us.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://kick.com/")
	req.Header.Set("Origin", "https://kick.com")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("sec-ch-ua", `"Chromium";v="143", "Not.A/Brand";v="24", "Google Chrome";v="143"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
}
