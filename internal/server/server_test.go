package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealth(t *testing.T) {
	s := New(":0", NewContentSlot(), "content")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", w.Code, w.Body.String())
	}
}

func TestContentAndPage(t *testing.T) {
	slot := NewContentSlot()
	slot.Replace(`<div class="chatmsg">hi</div>`)
	s := New(":0", slot, "content")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/content", nil))
	if w.Body.String() != `<div class="chatmsg">hi</div>` {
		t.Errorf("GET /content = %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	if !strings.Contains(body, `<div id="content"><div class="chatmsg">hi</div></div>`) {
		t.Errorf("page missing container with content:\n%s", body)
	}
	if !strings.Contains(body, `new EventSource("events")`) {
		t.Errorf("page missing event source:\n%s", body)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(":0", NewContentSlot(), "content")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d", w.Code)
	}
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return strings.Join(lines, "\n")
		}
		lines = append(lines, strings.TrimPrefix(line, "data: "))
	}
}

func TestEventsStreamsFragments(t *testing.T) {
	slot := NewContentSlot()
	slot.Replace("first")
	srv := httptest.NewServer(New(":0", slot, "content").Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected Content-Type text/event-stream, got %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	if got := readEvent(t, r); got != "first" {
		t.Errorf("initial event = %q, want first", got)
	}

	slot.Replace("second\nline")
	if got := readEvent(t, r); got != "second\nline" {
		t.Errorf("update event = %q, want multi-line fragment", got)
	}
}

func TestEventsRejectsPost(t *testing.T) {
	s := New(":0", NewContentSlot(), "content")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events", io.NopCloser(strings.NewReader(""))))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /events = %d, want 405", w.Code)
	}
}

func TestSlotKeepsNewestForSlowSubscriber(t *testing.T) {
	slot := NewContentSlot()
	ch, cancel := slot.Subscribe()
	defer cancel()

	slot.Replace("a")
	slot.Replace("b")
	if got := <-ch; got != "b" {
		t.Errorf("pending fragment = %q, want b", got)
	}
	if slot.Fragment() != "b" {
		t.Errorf("Fragment() = %q", slot.Fragment())
	}
}

// parseEventData reads SSE frames the way EventSource does: any of CRLF, LF
// or CR ends a line and data lines of one event are joined with LF.
func parseEventData(frame string) []string {
	lines := strings.Split(strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(frame), "\n")
	var events []string
	var data []string
	for _, l := range lines {
		if l == "" {
			if data != nil {
				events = append(events, strings.Join(data, "\n"))
				data = nil
			}
			continue
		}
		if v, ok := strings.CutPrefix(l, "data: "); ok {
			data = append(data, v)
		}
	}
	return events
}

func TestEncodeEventCarriageReturn(t *testing.T) {
	fragment := "<div class=\"message\">hello\rworld</div>\r\n<div>next message</div>"
	events := parseEventData(string(encodeEvent(fragment)))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %q", len(events), events)
	}
	want := "<div class=\"message\">hello\nworld</div>\n<div>next message</div>"
	if events[0] != want {
		t.Errorf("event data = %q, want %q", events[0], want)
	}
}
