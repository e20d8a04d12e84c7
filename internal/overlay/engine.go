// Package overlay reconciles the polled snapshot and log resources into the
// rendered chat fragment.
//
// All engine state is owned by the goroutine running Run. Fetches happen in
// their own goroutines and hand bodies back over a channel, so overlapping
// fetches are applied one at a time in arrival order.
package overlay

import (
	"bytes"
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/message"
	"github.com/john/chatoverlay/internal/metrics"
	"github.com/john/chatoverlay/internal/render"
	"github.com/john/chatoverlay/internal/source"
	"github.com/john/chatoverlay/internal/store"
)

// Resource identifies one of the two polled resources
type Resource string

const (
	Snapshot Resource = "snapshot"
	Log      Resource = "log"
)

// Target receives every fragment that differs from the previous one
type Target interface {
	Replace(fragment string) error
}

// Config holds the engine's limits and timers
type Config struct {
	MaxMessages    int
	PollInterval   time.Duration // Log poll rate
	RenderInterval time.Duration // Re-render rate, drives the scroll pacing
	FetchTimeout   time.Duration // Zero means no timeout
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithChanges makes every signal on ch trigger an extra log poll
func WithChanges(ch <-chan struct{}) Option {
	return func(e *Engine) { e.changes = ch }
}

type fetchResult struct {
	resource Resource
	body     []byte
	started  time.Time
}

// Engine owns the message store and the polling and rendering state
type Engine struct {
	cfg      Config
	sources  map[Resource]source.Source
	renderer *render.Renderer
	target   Target
	now      func() time.Time
	changes  <-chan struct{}

	store           *store.Store
	hashes          map[Resource]uint64
	lineCounts      map[Resource]int
	lastLogLines    int
	lastLogPoll     time.Time
	snapshotPending bool
	lastHTML        string
	rendered        bool
}

// New creates an engine polling snapshot and logSrc and rendering into target
func New(cfg Config, snapshot, logSrc source.Source, renderer *render.Renderer, target Target, opts ...Option) *Engine {
	metrics.Init()

	e := &Engine{
		cfg:        cfg,
		sources:    map[Resource]source.Source{Snapshot: snapshot, Log: logSrc},
		renderer:   renderer,
		target:     target,
		now:        time.Now,
		store:      store.New(),
		hashes:     make(map[Resource]uint64),
		lineCounts: make(map[Resource]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run polls and renders until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	results := make(chan fetchResult, 16)

	// Initial load
	e.fetch(ctx, Snapshot, results)
	e.fetch(ctx, Log, results)

	pollTicker := time.NewTicker(e.cfg.PollInterval)
	defer pollTicker.Stop()
	renderTicker := time.NewTicker(e.cfg.RenderInterval)
	defer renderTicker.Stop()

	log.Info().
		Str("snapshot", e.sources[Snapshot].String()).
		Str("log", e.sources[Log].String()).
		Dur("poll_interval", e.cfg.PollInterval).
		Msg("Overlay engine started")

	for {
		select {
		case <-pollTicker.C:
			e.pollLog(ctx, results)

		case <-e.changes:
			e.pollLog(ctx, results)

		case r := <-results:
			e.apply(r)

		case <-renderTicker.C:
			e.Render()

		case <-ctx.Done():
			log.Info().Msg("Overlay engine shutting down")
			return ctx.Err()
		}
	}
}

// pollLog starts a log fetch, and a snapshot fetch when the log shrank
func (e *Engine) pollLog(ctx context.Context, results chan<- fetchResult) {
	if e.snapshotPending {
		e.snapshotPending = false
		e.fetch(ctx, Snapshot, results)
	}
	if !e.allowLogPoll(e.now()) {
		metrics.PollsSkipped.WithLabelValues(string(Log), "too_soon").Inc()
		return
	}
	e.fetch(ctx, Log, results)
}

// allowLogPoll absorbs timer bursts, e.g. after a suspended process resumes
func (e *Engine) allowLogPoll(now time.Time) bool {
	if e.lastLogPoll.IsZero() {
		return true
	}
	return now.Sub(e.lastLogPoll) >= e.cfg.PollInterval/2
}

func (e *Engine) fetch(ctx context.Context, res Resource, results chan<- fetchResult) {
	src := e.sources[res]
	started := e.now()

	go func() {
		fetchCtx := ctx
		if e.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()
		}

		body, err := src.Fetch(fetchCtx)
		if err != nil {
			metrics.FetchErrors.WithLabelValues(string(res)).Inc()
			log.Debug().Err(err).Str("resource", string(res)).Msg("Fetch failed")
			return
		}

		select {
		case results <- fetchResult{resource: res, body: body, started: started}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) apply(r fetchResult) {
	switch r.resource {
	case Snapshot:
		e.Ingest(Snapshot, r.body)
	case Log:
		e.ApplyLog(r.body)
		if r.started.After(e.lastLogPoll) {
			e.lastLogPoll = r.started
		}
	}
}

// ApplyLog ingests a log body and schedules a snapshot fetch for the next
// poll cycle when the log has fewer lines than the previous one.
func (e *Engine) ApplyLog(body []byte) int {
	lines := e.Ingest(Log, body)
	if lines < e.lastLogLines {
		log.Info().
			Int("lines", lines).
			Int("previous", e.lastLogLines).
			Msg("Log shrank, reloading snapshot")
		e.snapshotPending = true
	}
	e.lastLogLines = lines
	return lines
}

// Ingest merges a response body into the store and renders.
// A body identical to the previous one for the same resource is skipped
// entirely. It returns the number of lines in the body.
func (e *Engine) Ingest(res Resource, body []byte) int {
	h := xxhash.Sum64(body)
	if prev, ok := e.hashes[res]; ok && prev == h {
		metrics.PollsSkipped.WithLabelValues(string(res), "unchanged").Inc()
		return e.lineCounts[res]
	}
	e.hashes[res] = h
	metrics.PollsTotal.WithLabelValues(string(res)).Inc()

	lines := bytes.Split(body, []byte("\n"))
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		msg, err := message.DecodeLine(line)
		if err != nil {
			metrics.LinesRejected.Inc()
			log.Debug().Err(err).Str("resource", string(res)).Msg("Skipping line")
			continue
		}

		if e.store.Insert(msg) {
			metrics.MessagesIngested.Inc()
			log.Info().Msgf("#%s::%s> %s", msg.ProviderName, msg.Username, msg.Message)
		}
	}

	if evicted := e.store.Trim(e.cfg.MaxMessages); len(evicted) > 0 {
		metrics.MessagesEvicted.Add(float64(len(evicted)))
	}
	metrics.StoreSize.Set(float64(e.store.Len()))

	e.lineCounts[res] = len(lines)
	e.Render()
	return len(lines)
}

// Render rebuilds the fragment and hands it to the target if it changed.
// It reports whether the target was written.
func (e *Engine) Render() bool {
	now := float64(e.now().UnixNano()) / float64(time.Second)
	fragment := e.renderer.Render(e.store, now)
	if e.rendered && fragment == e.lastHTML {
		return false
	}

	if e.target == nil {
		log.Error().Msg("Unable to find render target")
		return false
	}
	if err := e.target.Replace(fragment); err != nil {
		log.Error().Err(err).Msg("Error replacing rendered content")
		return false
	}

	e.lastHTML = fragment
	e.rendered = true
	metrics.RenderWrites.Inc()
	return true
}

// Store exposes the message store for inspection
func (e *Engine) Store() *store.Store {
	return e.store
}
