package matrix

import (
	"testing"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/john/chatoverlay/internal/config"
)

func textEvent(room, body string, msgType event.MessageType) *event.Event {
	return &event.Event{
		ID:        id.EventID("$abc:matrix.org"),
		RoomID:    id.RoomID(room),
		Sender:    id.UserID("@deavid:matrix.org"),
		Timestamp: 1700000000999,
		Type:      event.EventMessage,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: msgType,
			Body:    body,
		}},
	}
}

func TestConvertEvent(t *testing.T) {
	c := New(config.MatrixConfig{RoomID: "!room:matrix.org"})

	got, ok := c.convertEvent(textEvent("!room:matrix.org", "hello", event.MsgText))
	if !ok {
		t.Fatal("convertEvent() dropped a text message")
	}
	if got.ProviderName != "matrix" || got.Username != "deavid" || got.Message != "hello" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if got.MsgID != "$abc:matrix.org" || got.Timestamp != 1700000000 {
		t.Errorf("MsgID=%q Timestamp=%v", got.MsgID, got.Timestamp)
	}
}

func TestConvertEventFilters(t *testing.T) {
	c := New(config.MatrixConfig{RoomID: "!room:matrix.org"})

	if _, ok := c.convertEvent(textEvent("!other:matrix.org", "hello", event.MsgText)); ok {
		t.Error("expected message from another room to be dropped")
	}
	if _, ok := c.convertEvent(textEvent("!room:matrix.org", "pic.png", event.MsgImage)); ok {
		t.Error("expected non-text message to be dropped")
	}
}

func TestConvertEventSeveralRooms(t *testing.T) {
	c := New(config.MatrixConfig{RoomID: "!room:matrix.org", RoomIDs: []string{"!second:matrix.org"}})

	for _, room := range []string{"!room:matrix.org", "!second:matrix.org"} {
		got, ok := c.convertEvent(textEvent(room, "hello", event.MsgText))
		if !ok {
			t.Errorf("message from %s dropped", room)
			continue
		}
		if got.Room != room {
			t.Errorf("Room = %q, want %q", got.Room, room)
		}
	}
}
