package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoMessage is returned for records without a Message envelope
	ErrNoMessage = errors.New("record has no Message field")
	// ErrMissingTimestamp is returned when a message carries no timestamp
	ErrMissingTimestamp = errors.New("message has no timestamp")
	// ErrInvalidTimestamp is returned for negative or non-finite timestamps
	ErrInvalidTimestamp = errors.New("message timestamp is invalid")
)

// Event is one line of the snapshot and log files
type Event struct {
	Message *ChatMessage `json:"Message,omitempty"`
}

type rawEvent struct {
	Message json.RawMessage `json:"Message"`
}

type rawMessage struct {
	ProviderName string   `json:"provider_name"`
	Room         string   `json:"room"`
	Username     string   `json:"username"`
	Message      string   `json:"message"`
	MsgID        string   `json:"msgid"`
	Timestamp    *float64 `json:"timestamp"`
	Badges       []Badge  `json:"badges"`
	Emotes       []Emote  `json:"emotes"`
}

// DecodeLine parses a single JSON line into a ChatMessage
func DecodeLine(line []byte) (ChatMessage, error) {
	var ev rawEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return ChatMessage{}, fmt.Errorf("parse record: %w", err)
	}
	raw := bytes.TrimSpace(ev.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ChatMessage{}, ErrNoMessage
	}

	var rm rawMessage
	if err := json.Unmarshal(raw, &rm); err != nil {
		return ChatMessage{}, fmt.Errorf("parse message: %w", err)
	}
	if rm.Timestamp == nil {
		return ChatMessage{}, ErrMissingTimestamp
	}
	ts := *rm.Timestamp
	if ts < 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, ts)
	}
	if rm.ProviderName == "" {
		rm.ProviderName = DefaultProvider
	}

	return ChatMessage{
		ProviderName: rm.ProviderName,
		Room:         rm.Room,
		Username:     rm.Username,
		Message:      rm.Message,
		MsgID:        rm.MsgID,
		Timestamp:    ts,
		Badges:       rm.Badges,
		Emotes:       rm.Emotes,
	}, nil
}

// EncodeLine serializes a message as a newline-terminated Event record
func EncodeLine(m ChatMessage) ([]byte, error) {
	data, err := json.Marshal(Event{Message: &m})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return append(data, '\n'), nil
}
