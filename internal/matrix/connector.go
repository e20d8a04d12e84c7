// Package matrix follows one Matrix room and emits its text messages.
package matrix

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/john/chatoverlay/internal/config"
	"github.com/john/chatoverlay/internal/message"
)

// ProviderName is the provider_name of every Matrix message
const ProviderName = "matrix"

// Connector restores a session from an access token and syncs the followed rooms
type Connector struct {
	cfg   config.MatrixConfig
	rooms map[id.RoomID]bool
}

// New creates a new Matrix connector
func New(cfg config.MatrixConfig) *Connector {
	rooms := make(map[id.RoomID]bool)
	for _, r := range cfg.Rooms() {
		rooms[id.RoomID(r)] = true
	}
	return &Connector{cfg: cfg, rooms: rooms}
}

// Start syncs until ctx is cancelled
func (c *Connector) Start(ctx context.Context, messageChan chan<- message.ChatMessage) error {
	client, err := mautrix.NewClient(c.cfg.Homeserver, id.UserID(c.cfg.UserID), c.cfg.AccessToken)
	if err != nil {
		return fmt.Errorf("create matrix client: %w", err)
	}

	syncer, ok := client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected matrix syncer %T", client.Syncer)
	}

	ready := false
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		if !ready {
			ready = true
			log.Info().Msg("Receiving Matrix messages")
		}
		msg, ok := c.convertEvent(evt)
		if !ok {
			return
		}
		select {
		case messageChan <- msg:
		case <-ctx.Done():
		}
	})

	log.Info().Str("user", c.cfg.UserID).Strs("rooms", c.cfg.Rooms()).Msg("Waiting for Matrix messages")
	if err := client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync: %w", err)
	}
	return ctx.Err()
}

// convertEvent maps text messages from the followed rooms
func (c *Connector) convertEvent(evt *event.Event) (message.ChatMessage, bool) {
	if !c.rooms[evt.RoomID] {
		log.Debug().Str("room", evt.RoomID.String()).Msg("Ignored message from other room")
		return message.ChatMessage{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return message.ChatMessage{}, false
	}

	username, _, err := evt.Sender.Parse()
	if err != nil || username == "" {
		username = evt.Sender.String()
	}

	return message.ChatMessage{
		ProviderName: ProviderName,
		Room:         evt.RoomID.String(),
		Username:     username,
		Message:      content.Body,
		MsgID:        evt.ID.String(),
		Timestamp:    float64(evt.Timestamp / 1000),
	}, true
}
