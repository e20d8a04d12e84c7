package server

import (
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server serves the overlay page, its content and health checks
type Server struct {
	server *http.Server
	slot   *ContentSlot
	page   *template.Template
	target string
}

// New creates a new overlay server.
// containerID names the element whose content is replaced on every render.
func New(addr string, slot *ContentSlot, containerID string) *Server {
	s := &Server{
		slot:   slot,
		page:   template.Must(template.New("page").Parse(pageTemplate)),
		target: containerID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/content", s.handleContent)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/", s.handlePage)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Msgf("Overlay server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down overlay server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Target  string
		Content template.HTML
	}{
		Target:  s.target,
		Content: template.HTML(s.slot.Fragment()),
	}
	if err := s.page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Error rendering overlay page")
	}
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(s.slot.Fragment()))
}

// handleEvents streams every new fragment using Server-Sent Events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := s.slot.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case fragment := <-updates:
			if _, err := w.Write(encodeEvent(fragment)); err != nil {
				log.Debug().Err(err).Msg("Failed to write SSE event")
				return
			}
			flusher.Flush()
		}
	}
}

// EventSource ends a line on CRLF, LF or a bare CR
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// encodeEvent frames data as one SSE event, one data line per text line
func encodeEvent(data string) []byte {
	var b strings.Builder
	for _, line := range strings.Split(lineEndings.Replace(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>chat overlay</title>
<style>
body { background: transparent; margin: 0; overflow: hidden; }
#{{.Target}} { position: absolute; bottom: 0; width: 100%; }
.spacing { height: 2px; }
.chatmsg div { display: inline; }
.badge, .emote { height: 1.2em; vertical-align: middle; }
</style>
</head>
<body>
<div id="{{.Target}}">{{.Content}}</div>
<script>
(function () {
  var id = {{.Target}};
  var source = new EventSource("events");
  source.onmessage = function (ev) {
    var content = document.getElementById(id);
    if (content) {
      content.innerHTML = ev.data;
    } else {
      console.log("unable to find #" + id);
    }
  };
})();
</script>
</body>
</html>
`
