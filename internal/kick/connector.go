package kick

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	kickchat "github.com/johanvandegriff/kick-chat-wrapper"
	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/config"
	"github.com/john/chatoverlay/internal/message"
)

// ProviderName is the provider_name of every Kick message
const ProviderName = "kick"

// msgidNamespace scopes the derived Kick message IDs
var msgidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://kick.com/"))

// Connector manages Kick chat connections
type Connector struct {
	channels    []config.KickChannelConfig
	badgeImages map[string]string // badge type -> image URL
	resolver    *Resolver
	idToSlug    map[int]string
	client      *kickchat.Client
}

// New creates a new Kick connector
func New(channels []config.KickChannelConfig, badgeImages map[string]string) *Connector {
	return &Connector{
		channels:    channels,
		badgeImages: badgeImages,
		resolver:    NewResolver(),
		idToSlug:    make(map[int]string),
	}
}

// Start begins listening to Kick chat
func (c *Connector) Start(ctx context.Context, messageChan chan<- message.ChatMessage) error {
	c.resolveChannels(ctx)
	if len(c.idToSlug) == 0 {
		return fmt.Errorf("no valid Kick channels could be resolved")
	}

	client, err := kickchat.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create Kick client: %w", err)
	}
	c.client = client
	log.Info().Msg("Connected to Kick WebSocket")

	for chatroomID, slug := range c.idToSlug {
		if err := c.client.JoinChannelByID(chatroomID); err != nil {
			log.Warn().Err(err).Str("channel", slug).Int("chatroom_id", chatroomID).Msg("Failed to join Kick channel")
			continue
		}
		log.Info().Str("channel", slug).Msg("Joined Kick channel")
	}

	messages := c.client.ListenForMessages()
	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					log.Warn().Msg("Kick message channel closed")
					return
				}
				chatMessage, ok := c.convertMessage(msg)
				if !ok {
					continue
				}
				select {
				case messageChan <- chatMessage:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Disconnecting from Kick chat...")
	c.client.Close()

	return ctx.Err()
}

func (c *Connector) resolveChannels(ctx context.Context) {
	for _, channel := range c.channels {
		if channel.ChatroomID > 0 {
			log.Info().Str("channel", channel.Slug).Int("chatroom_id", channel.ChatroomID).Msg("Using pre-configured Kick channel")
			c.idToSlug[channel.ChatroomID] = channel.Slug
			continue
		}

		info, err := c.resolver.Resolve(ctx, channel.Slug)
		if err != nil {
			log.Warn().Err(err).Str("channel", channel.Slug).Msg("Failed to resolve Kick channel, skipping")
			continue
		}
		log.Info().Str("channel", info.Slug).Int("chatroom_id", info.Chatroom.ID).Msg("Resolved Kick channel")
		c.idToSlug[info.Chatroom.ID] = info.Slug
	}
}

// convertMessage maps a Kick chat event, dropping messages from unknown rooms
func (c *Connector) convertMessage(msg kickchat.ChatMessage) (message.ChatMessage, bool) {
	slug, ok := c.idToSlug[msg.ChatroomID]
	if !ok {
		log.Warn().Int("chatroom_id", msg.ChatroomID).Msg("Received message from unknown chatroom")
		return message.ChatMessage{}, false
	}

	var badges []message.Badge
	for _, b := range msg.Sender.Identity.Badges {
		url, ok := c.badgeImages[b.Type]
		if !ok || url == "" {
			log.Warn().Str("badge", b.Type).Msg("Unable to find badge image")
			continue
		}
		badges = append(badges, message.Badge{Name: b.Type, VID: b.Text, URL: url})
	}

	sent := msg.CreatedAt
	msgid := msg.ID
	if msgid == "" {
		msgid = deriveMsgID(msg.ChatroomID, msg.Sender.ID, sent.UnixNano(), msg.Content)
	}
	return message.ChatMessage{
		ProviderName: ProviderName,
		Room:         slug,
		Username:     msg.Sender.Username,
		Message:      msg.Content,
		MsgID:        msgid,
		Timestamp:    float64(sent.Unix()),
		Badges:       badges,
	}, true
}

// deriveMsgID builds a stable ID for events that arrive without one
func deriveMsgID(chatroomID, senderID int, sentNanos int64, content string) string {
	name := strconv.Itoa(chatroomID) + "/" + strconv.Itoa(senderID) + "/" + strconv.FormatInt(sentNanos, 10) + "/" + content
	return uuid.NewSHA1(msgidNamespace, []byte(name)).String()
}
