package message

import (
	"strconv"
)

// DefaultProvider is used when a record carries no provider name
const DefaultProvider = "no-provider"

// ChatMessage represents a chat message from any provider (Twitch, Matrix, Kick)
type ChatMessage struct {
	ProviderName string  `json:"provider_name"` // Provider name: "twitch", "matrix", "kick"
	Room         string  `json:"room"`          // Channel or room the message was sent to
	Username     string  `json:"username"`      // User's display name
	Message      string  `json:"message"`       // Raw message text, never escaped
	MsgID        string  `json:"msgid"`         // Provider-specific message ID
	Timestamp    float64 `json:"timestamp"`     // Seconds since the Unix epoch
	Badges       []Badge `json:"badges"`
	Emotes       []Emote `json:"emotes"`
}

// Badge is a user badge shown next to the username
type Badge struct {
	Name string `json:"name"` // broadcaster/1 -> name: broadcaster, vid: 1
	VID  string `json:"vid"`
	URL  string `json:"url"`
}

// Emote is an inline image replacing Name in the message text
type Emote struct {
	ID   string `json:"id"`
	From int    `json:"from"`
	To   int    `json:"to"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Key returns the identity key "timestamp|provider|msgid".
// Keys sort in timestamp order as long as timestamps have the same number of integer digits.
func (m ChatMessage) Key() string {
	return FormatTimestamp(m.Timestamp) + "|" + m.ProviderName + "|" + m.MsgID
}

// FormatTimestamp formats seconds with the shortest exact decimal representation
func FormatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}
