package yarrdb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/message"
	"github.com/john/chatoverlay/internal/metrics"
)

const finalUploadTimeout = 10 * time.Second

// FinalUploader uploads a file before the recorder returns
type FinalUploader interface {
	UploadWithRetry(ctx context.Context, localPath string) error
}

// Recorder feeds provider messages into the database and reports changed
// files to the uploader
type Recorder struct {
	db       *Log
	fileChan chan<- string
	final    FinalUploader
}

// RecorderOption customizes a Recorder
type RecorderOption func(*Recorder)

// WithFinalUpload uploads the final checkpoint and log synchronously on
// shutdown, the upload queue is no longer drained by then
func WithFinalUpload(u FinalUploader) RecorderOption {
	return func(r *Recorder) { r.final = u }
}

// NewRecorder creates a recorder. fileChan may be nil when nothing uploads.
func NewRecorder(db *Log, fileChan chan<- string, opts ...RecorderOption) *Recorder {
	r := &Recorder{db: db, fileChan: fileChan}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads the database and records messages until ctx is cancelled
func (r *Recorder) Start(ctx context.Context, messageChan <-chan message.ChatMessage) error {
	if err := r.db.Load(); err != nil {
		log.Error().Err(err).Msg("Couldn't load the database")
	}
	for _, m := range r.db.Messages() {
		printMessage(m)
	}
	r.queue(true)

	for {
		select {
		case msg := <-messageChan:
			r.record(msg)

		case <-ctx.Done():
			log.Info().Msg("Recorder shutting down, writing checkpoint...")
			if err := r.db.Checkpoint(); err != nil {
				log.Error().Err(err).Msg("Error writing final checkpoint")
			}
			if err := r.db.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing database")
			}
			r.uploadFinal()
			return ctx.Err()
		}
	}
}

func (r *Recorder) record(msg message.ChatMessage) {
	before := r.db.Checkpoints()
	outcome, err := r.db.Push(msg)
	if err != nil {
		log.Error().Err(err).Msg("Error writing message to log")
		return
	}
	metrics.MessagesRecorded.WithLabelValues(msg.ProviderName, outcome.String()).Inc()

	if outcome != Accepted {
		log.Info().Str("reason", outcome.String()).Str("key", msg.Key()).Msg("Ignored message")
		return
	}
	printMessage(msg)
	r.queue(r.db.Checkpoints() != before)
}

// queue reports the log file, and the checkpoint too when it was rewritten
func (r *Recorder) queue(checkpointed bool) {
	if r.fileChan == nil {
		return
	}
	logPath, checkpointPath := r.db.Paths()
	paths := []string{logPath}
	if checkpointed {
		paths = append([]string{checkpointPath}, paths...)
	}
	for _, p := range paths {
		select {
		case r.fileChan <- p:
		default:
			log.Warn().Str("file", p).Msg("Upload queue full, skipping")
		}
	}
}

func printMessage(m message.ChatMessage) {
	log.Info().Msgf("#%s::%s> %s", m.ProviderName, m.Username, m.Message)
}

func (r *Recorder) uploadFinal() {
	if r.final == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalUploadTimeout)
	defer cancel()

	logPath, checkpointPath := r.db.Paths()
	for _, p := range []string{checkpointPath, logPath} {
		if err := r.final.UploadWithRetry(ctx, p); err != nil {
			log.Error().Err(err).Str("file", p).Msg("Final upload failed")
		}
	}
}
