package message

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeLine(t *testing.T) {
	line := `{"Message":{"provider_name":"twitch","room":"#deavidsedice","username":"deavid","message":"hi Kappa","msgid":"abc","timestamp":1700000000,"badges":[{"name":"broadcaster","vid":"1","url":"https://b/1"}],"emotes":[{"id":"25","from":3,"to":7,"name":"Kappa","url":"https://e/25"}]}}`

	msg, err := DecodeLine([]byte(line))
	if err != nil {
		t.Fatalf("DecodeLine() error: %v", err)
	}
	if msg.ProviderName != "twitch" || msg.Username != "deavid" || msg.MsgID != "abc" {
		t.Errorf("unexpected message fields: %+v", msg)
	}
	if msg.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %v, want 1700000000", msg.Timestamp)
	}
	if len(msg.Badges) != 1 || msg.Badges[0].VID != "1" {
		t.Errorf("Badges = %+v", msg.Badges)
	}
	if len(msg.Emotes) != 1 || msg.Emotes[0].Name != "Kappa" || msg.Emotes[0].To != 7 {
		t.Errorf("Emotes = %+v", msg.Emotes)
	}
	if got, want := msg.Key(), "1700000000|twitch|abc"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestDecodeLineErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"no envelope", `{"Other":{}}`, ErrNoMessage},
		{"null envelope", `{"Message":null}`, ErrNoMessage},
		{"missing timestamp", `{"Message":{"msgid":"1"}}`, ErrMissingTimestamp},
		{"negative timestamp", `{"Message":{"msgid":"1","timestamp":-5}}`, ErrInvalidTimestamp},
		{"malformed json", `{"Message":`, nil},
		{"wrong shape", `{"Message":"hello"}`, nil},
		{"not an object", `42`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLine([]byte(tt.line))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeLineDefaultsProvider(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"Message":{"msgid":"x","timestamp":12.5}}`))
	if err != nil {
		t.Fatalf("DecodeLine() error: %v", err)
	}
	if msg.ProviderName != DefaultProvider {
		t.Errorf("ProviderName = %q, want %q", msg.ProviderName, DefaultProvider)
	}
	if got, want := msg.Key(), "12.5|no-provider|x"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestEncodeLineRoundTrip(t *testing.T) {
	in := ChatMessage{ProviderName: "matrix", Username: "bob", Message: "<b>", MsgID: "$ev", Timestamp: 1700000001}

	data, err := EncodeLine(in)
	if err != nil {
		t.Fatalf("EncodeLine() error: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"Message":{`) || !strings.HasSuffix(string(data), "\n") {
		t.Fatalf("unexpected encoding: %q", data)
	}

	out, err := DecodeLine(data)
	if err != nil {
		t.Fatalf("DecodeLine() error: %v", err)
	}
	if out.Key() != in.Key() || out.Message != in.Message {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}
