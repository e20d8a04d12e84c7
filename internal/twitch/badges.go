package twitch

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

const (
	DefaultHelixBase   = "https://api.twitch.tv/helix"
	DefaultValidateURL = "https://id.twitch.tv/oauth2/validate"
)

type badgeSetsResponse struct {
	Data []struct {
		SetID    string `json:"set_id"`
		Versions []struct {
			ID         string `json:"id"`
			ImageURL1x string `json:"image_url_1x"`
			ImageURL2x string `json:"image_url_2x"`
		} `json:"versions"`
	} `json:"data"`
}

type usersResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Login string `json:"login"`
	} `json:"data"`
}

type validateResponse struct {
	ClientID string `json:"client_id"`
	Login    string `json:"login"`
}

// BadgeFetcher downloads global and channel badge images from Helix
type BadgeFetcher struct {
	HelixBase   string
	ValidateURL string
	Client      *http.Client
	Token       string // Without the "oauth:" prefix

	clientID string
}

// NewBadgeFetcher creates a fetcher against the public Twitch API
func NewBadgeFetcher(oauth string) *BadgeFetcher {
	return &BadgeFetcher{
		HelixBase:   DefaultHelixBase,
		ValidateURL: DefaultValidateURL,
		Client:      &http.Client{Timeout: 10 * time.Second},
		Token:       strings.TrimPrefix(oauth, "oauth:"),
	}
}

// Fetch returns a "name/version" -> image URL map. Channel badges override
// global ones, so subscriber badges show the channel's artwork.
func (f *BadgeFetcher) Fetch(ctx context.Context, channels []string) (map[string]string, error) {
	var v validateResponse
	if err := f.get(ctx, f.ValidateURL, "OAuth "+f.Token, &v); err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	f.clientID = v.ClientID

	images := make(map[string]string)
	var global badgeSetsResponse
	if err := f.helix(ctx, "/chat/badges/global", nil, &global); err != nil {
		return nil, fmt.Errorf("global badges: %w", err)
	}
	addBadges(images, global)

	if len(channels) == 0 {
		return images, nil
	}
	q := url.Values{}
	for _, ch := range channels {
		q.Add("login", strings.ToLower(strings.TrimPrefix(ch, "#")))
	}
	var users usersResponse
	if err := f.helix(ctx, "/users", q, &users); err != nil {
		return images, fmt.Errorf("look up channels: %w", err)
	}
	for _, u := range users.Data {
		var sets badgeSetsResponse
		if err := f.helix(ctx, "/chat/badges", url.Values{"broadcaster_id": {u.ID}}, &sets); err != nil {
			return images, fmt.Errorf("channel badges for %s: %w", u.Login, err)
		}
		addBadges(images, sets)
	}
	return images, nil
}

func addBadges(images map[string]string, sets badgeSetsResponse) {
	for _, set := range sets.Data {
		for _, v := range set.Versions {
			img := v.ImageURL2x
			if img == "" {
				img = v.ImageURL1x
			}
			if img != "" {
				images[set.SetID+"/"+v.ID] = img
			}
		}
	}
}

func (f *BadgeFetcher) helix(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := strings.TrimSuffix(f.HelixBase, "/") + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	return f.get(ctx, endpoint, "Bearer "+f.Token, out)
}

func (f *BadgeFetcher) get(ctx context.Context, endpoint, auth string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	if f.clientID != "" {
		req.Header.Set("Client-Id", f.clientID)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("JSON decode failed: %w", err)
	}
	return nil
}
