package twitch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/message"
)

// ProviderName is the provider_name of every Twitch message
const ProviderName = "twitch"

const emoteURL = "https://static-cdn.jtvnw.net/emoticons/v2/%s/static/light/2.0"

// Connector manages Twitch chat connections
type Connector struct {
	username string
	oauth    string
	channels []string
	fetcher  *BadgeFetcher
	client   *twitch.Client

	mu          sync.Mutex
	badgeImages map[string]string // "name/version" -> image URL
	configured  map[string]string
	missing     map[string]bool
}

// New creates a new Twitch connector. Without an OAuth token it joins
// anonymously and only the configured badge images are known.
func New(username, oauth string, channels []string, badgeImages map[string]string) *Connector {
	c := &Connector{
		username:    username,
		oauth:       oauth,
		channels:    channels,
		badgeImages: make(map[string]string, len(badgeImages)),
		configured:  badgeImages,
		missing:     make(map[string]bool),
	}
	for k, v := range badgeImages {
		c.badgeImages[k] = v
	}
	if oauth != "" {
		c.fetcher = NewBadgeFetcher(oauth)
	}
	return c
}

// loadBadges merges Helix badge images under the configured ones
func (c *Connector) loadBadges(ctx context.Context) {
	if c.fetcher == nil {
		return
	}
	images, err := c.fetcher.Fetch(ctx, c.channels)
	if err != nil {
		log.Error().Err(err).Msg("Trying to download Twitch badges")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range images {
		if _, ok := c.configured[k]; !ok {
			c.badgeImages[k] = v
		}
	}
	log.Info().Int("badges", len(c.badgeImages)).Msg("Loaded Twitch badge images")
}

// Start begins listening to Twitch chat
func (c *Connector) Start(ctx context.Context, messageChan chan<- message.ChatMessage) error {
	c.loadBadges(ctx)

	if c.oauth == "" {
		c.client = twitch.NewAnonymousClient()
	} else {
		c.client = twitch.NewClient(c.username, normalizeOAuth(c.oauth))
	}

	c.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		select {
		case messageChan <- c.convertMessage(msg):
		case <-ctx.Done():
		}
	})

	c.client.OnConnect(func() {
		log.Info().Msg("Connected to Twitch IRC")
	})

	c.client.OnReconnectMessage(func(msg twitch.ReconnectMessage) {
		log.Info().Msg("Reconnecting to Twitch IRC...")
	})

	for _, channel := range c.channels {
		c.client.Join(channel)
		log.Info().Str("channel", channel).Msg("Joined Twitch channel")
	}

	go func() {
		if err := c.client.Connect(); err != nil && err != twitch.ErrClientDisconnected {
			log.Error().Err(err).Msg("Twitch IRC connection error")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Disconnecting from Twitch IRC...")
	c.client.Disconnect()

	return ctx.Err()
}

// convertMessage maps a PRIVMSG to a chat message
func (c *Connector) convertMessage(msg twitch.PrivateMessage) message.ChatMessage {
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	username := msg.User.DisplayName
	if username == "" {
		username = msg.User.Name
	}

	return message.ChatMessage{
		ProviderName: ProviderName,
		Room:         "#" + strings.TrimPrefix(msg.Channel, "#"),
		Username:     username,
		Message:      msg.Message,
		MsgID:        msg.ID,
		Timestamp:    float64(ts.Unix()),
		Badges:       c.resolveBadges(msg.User.Badges),
		Emotes:       convertEmotes(msg.Emotes),
	}
}

// resolveBadges looks up badge images, dropping badges without one.
// Each missing badge is reported once.
func (c *Connector) resolveBadges(badges map[string]int) []message.Badge {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(badges))
	for name := range badges {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []message.Badge
	for _, name := range names {
		vid := fmt.Sprint(badges[name])
		key := name + "/" + vid
		url, ok := c.badgeImages[key]
		if !ok || url == "" {
			if !c.missing[key] {
				c.missing[key] = true
				log.Warn().Str("badge", key).Msg("Unable to find badge image")
			}
			continue
		}
		out = append(out, message.Badge{Name: name, VID: vid, URL: url})
	}
	return out
}

// convertEmotes emits one emote per occurrence in the text
func convertEmotes(emotes []*twitch.Emote) []message.Emote {
	var out []message.Emote
	for _, e := range emotes {
		if e == nil {
			continue
		}
		for _, pos := range e.Positions {
			out = append(out, message.Emote{
				ID:   e.ID,
				From: pos.Start,
				To:   pos.End,
				Name: e.Name,
				URL:  fmt.Sprintf(emoteURL, e.ID),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

func normalizeOAuth(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
