// Package render builds the overlay HTML fragment from the message store.
package render

import (
	"html"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/message"
	"github.com/john/chatoverlay/internal/store"
)

// Options controls pacing and presentation
type Options struct {
	MaxMessageAge float64           // Seconds a message stays visible
	ChatSpeed     float64           // Spacers per second of elapsed time
	MaxSpacers    int               // Upper bound of spacers between two messages
	ProviderTags  map[string]string // provider_name -> on-screen tag
}

// Renderer turns stored messages into markup
type Renderer struct {
	opts Options
}

// New creates a renderer
func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Render returns the fragment for all messages newer than now - MaxMessageAge.
// now is in seconds since the Unix epoch.
func (r *Renderer) Render(s *store.Store, now float64) string {
	var b strings.Builder

	floor := now - r.opts.MaxMessageAge
	last := floor
	for _, key := range s.Keys() {
		msg, ok := s.Get(key)
		if !ok {
			log.Warn().Str("key", key).Msg("Missing data for stored key")
			continue
		}
		if msg.Timestamp < floor {
			continue
		}

		r.writeSpacers(&b, msg.Timestamp-last)
		r.writeMessage(&b, msg)
		last = msg.Timestamp
	}
	r.writeSpacers(&b, now-last)

	return b.String()
}

// Spacers returns how many spacer elements represent delta seconds
func Spacers(delta, speed float64, max int) int {
	n := math.Floor(delta * speed)
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	if n > float64(max) {
		return max
	}
	return int(n)
}

func (r *Renderer) writeSpacers(b *strings.Builder, delta float64) {
	n := Spacers(delta, r.opts.ChatSpeed, r.opts.MaxSpacers)
	if n == 0 {
		return
	}
	b.WriteString(`<div class="spacing_group">`)
	for i := 0; i < n; i++ {
		b.WriteString(`<div class="spacing"></div>`)
	}
	b.WriteString(`</div>`)
}

func (r *Renderer) writeMessage(b *strings.Builder, msg message.ChatMessage) {
	provider := html.EscapeString(msg.ProviderName)

	b.WriteString(`<div class="shadow chatmsg chatmsg-` + provider + `">`)
	b.WriteString(`<div class="provider provider-` + provider + `">`)
	b.WriteString(html.EscapeString(r.ProviderTag(msg.ProviderName)))
	b.WriteString(`</div><div class="badges badges-` + provider + `">`)
	for _, badge := range msg.Badges {
		b.WriteString(`<img src="` + html.EscapeString(badge.URL) + `" alt="` + html.EscapeString(badge.Name) + `" class="badge">`)
	}
	b.WriteString(`</div><div class="username" style="color: ` + UsernameColor(msg.Username) + `">`)
	b.WriteString(html.EscapeString(msg.Username))
	b.WriteString(`</div><span class="separator">:</span><div class="message">`)
	b.WriteString(MessageHTML(msg))
	b.WriteString(`</div></div>`)
}

// ProviderTag returns the configured tag, or "name@" for unknown providers
func (r *Renderer) ProviderTag(provider string) string {
	if tag, ok := r.opts.ProviderTags[provider]; ok {
		return tag
	}
	return provider + "@"
}

// MessageHTML escapes the message text and replaces emote names with images.
// Replacement matches names anywhere in the text; the from/to offsets are ignored.
func MessageHTML(msg message.ChatMessage) string {
	text := html.EscapeString(msg.Message)
	if len(msg.Emotes) == 0 {
		return text
	}

	pairs := make([]string, 0, len(msg.Emotes)*2)
	for _, e := range msg.Emotes {
		if e.Name == "" {
			continue
		}
		img := `<img src="` + html.EscapeString(e.URL) + `" alt="` + html.EscapeString(e.Name) + `" class="emote">`
		pairs = append(pairs, html.EscapeString(e.Name), img)
	}
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// UsernameColor maps a username to a stable HSL colour. The hash runs over
// UTF-16 code units with JavaScript number semantics: only the shift operand
// is truncated to 32 bits, the running value is not.
func UsernameColor(username string) string {
	var hash float64
	for _, c := range utf16.Encode([]rune(username)) {
		shifted := int32(int64(hash)) << 5
		hash = float64(c) + (float64(shifted) - hash)
	}
	hue := int(math.Mod(hash, 360))
	if hue < 0 {
		hue += 360
	}
	return "hsl(" + strconv.Itoa(hue) + ", 80%, 70%)"
}
