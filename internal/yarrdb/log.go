// Package yarrdb is the collector's message database: a checkpoint file
// holding every retained message plus an append-only log of messages
// accepted since that checkpoint. The overlay polls both files.
package yarrdb

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/message"
	"github.com/john/chatoverlay/internal/metrics"
)

// Checkpoint when the log passed a tenth of maxSize and this much time went by
const checkpointAge = 60 * time.Second

// Outcome is the result of pushing a message
type Outcome int

const (
	Accepted Outcome = iota
	Duplicated
	TooOld
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicated:
		return "duplicated"
	case TooOld:
		return "too_old"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// eventID orders messages by time first, then provider and msgid
type eventID struct {
	timestamp float64
	provider  string
	msgid     string
}

func idOf(m message.ChatMessage) eventID {
	return eventID{timestamp: m.Timestamp, provider: m.ProviderName, msgid: m.MsgID}
}

func (a eventID) less(b eventID) bool {
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp
	}
	if a.provider != b.provider {
		return a.provider < b.provider
	}
	return a.msgid < b.msgid
}

type entry struct {
	line []byte
	msg  message.ChatMessage
}

// Log holds up to maxSize messages backed by the checkpoint and log files
type Log struct {
	maxSize        int
	logPath        string
	checkpointPath string
	now            func() time.Time

	data           map[eventID]entry
	logLines       int
	lastCheckpoint time.Time
	checkpoints    int
	file           *os.File
	writer         *bufio.Writer
}

// New creates an empty database. Nothing touches disk until Load or Push.
func New(maxSize int, logPath, checkpointPath string) *Log {
	metrics.Init()
	return &Log{
		maxSize:        maxSize,
		logPath:        logPath,
		checkpointPath: checkpointPath,
		now:            time.Now,
		data:           make(map[eventID]entry),
		lastCheckpoint: time.Now(),
	}
}

// Paths returns the log and checkpoint file paths
func (l *Log) Paths() (logPath, checkpointPath string) {
	return l.logPath, l.checkpointPath
}

// Len returns the number of retained messages
func (l *Log) Len() int { return len(l.data) }

// LogLines returns the lines appended since the last checkpoint
func (l *Log) LogLines() int { return l.logLines }

// Checkpoints returns how many checkpoints were written so far
func (l *Log) Checkpoints() int { return l.checkpoints }

// Messages returns the retained messages in time order
func (l *Log) Messages() []message.ChatMessage {
	ids := l.sortedIDs()
	out := make([]message.ChatMessage, len(ids))
	for i, id := range ids {
		out[i] = l.data[id].msg
	}
	return out
}

// Load reads the checkpoint and then the log, and writes a fresh checkpoint.
// Missing files and unparsable lines are logged and skipped.
func (l *Log) Load() error {
	l.closeWriter()
	for _, path := range []string{l.checkpointPath, l.logPath} {
		if err := l.loadFile(path); err != nil {
			return err
		}
	}
	return l.Checkpoint()
}

func (l *Log) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("file", path).Msg("Database file not found, starting empty")
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, err := message.DecodeLine(line)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msgf("Skipping unparsable line: %q", line)
			continue
		}
		if err := l.insert(msg); err != nil {
			log.Error().Err(err).Msg("Error loading message")
		}
	}
	return nil
}

// insert adds a message evicting the oldest ones, without the TooOld check
func (l *Log) insert(msg message.ChatMessage) error {
	line, err := message.EncodeLine(msg)
	if err != nil {
		return err
	}
	for len(l.data) >= l.maxSize && len(l.data) > 0 {
		delete(l.data, l.oldest())
	}
	l.data[idOf(msg)] = entry{line: line, msg: msg}
	return nil
}

// Push stores a new message and appends it to the log. Retained messages are
// only evicted once the new one is on disk.
func (l *Log) Push(msg message.ChatMessage) (Outcome, error) {
	id := idOf(msg)
	if _, ok := l.data[id]; ok {
		return Duplicated, nil
	}
	if len(l.data) >= l.maxSize && l.maxSize > 0 {
		if first := l.oldest(); msg.Timestamp < first.timestamp {
			return TooOld, nil
		}
	}

	line, err := message.EncodeLine(msg)
	if err != nil {
		return Accepted, err
	}
	if err := l.append(line); err != nil {
		return Accepted, err
	}
	for len(l.data) >= l.maxSize && len(l.data) > 0 {
		delete(l.data, l.oldest())
	}
	l.data[id] = entry{line: line, msg: msg}

	if l.shouldCheckpoint() {
		log.Info().Msgf("Checkpointing DB: %d/%d (%s)", l.logLines, l.maxSize, humanDuration(l.now().Sub(l.lastCheckpoint)))
		if err := l.Checkpoint(); err != nil {
			return Accepted, err
		}
	}
	return Accepted, nil
}

func (l *Log) shouldCheckpoint() bool {
	if l.logLines > l.maxSize {
		return true
	}
	return l.logLines > l.maxSize/10+1 && l.now().Sub(l.lastCheckpoint) > checkpointAge
}

func (l *Log) append(line []byte) error {
	if l.writer == nil {
		if err := l.Checkpoint(); err != nil {
			return err
		}
	}
	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	// Flush every line, the overlay reads the file while it grows
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush log: %w", err)
	}
	l.logLines++
	return nil
}

// Checkpoint rewrites the checkpoint file with every retained message and
// truncates the log
func (l *Log) Checkpoint() error {
	l.closeWriter()

	var buf bytes.Buffer
	for _, id := range l.sortedIDs() {
		buf.Write(l.data[id].line)
	}
	if err := writeFileAtomic(l.checkpointPath, buf.Bytes()); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	file, err := os.Create(l.logPath)
	if err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	l.logLines = 0
	l.lastCheckpoint = l.now()
	l.checkpoints++
	metrics.Checkpoints.Inc()
	return nil
}

// Close flushes and closes the log file
func (l *Log) Close() error {
	if l.writer == nil {
		return nil
	}
	err := l.writer.Flush()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file, l.writer = nil, nil
	return err
}

func (l *Log) closeWriter() {
	if err := l.Close(); err != nil {
		log.Error().Err(err).Str("file", l.logPath).Msg("Error closing log file")
	}
}

func (l *Log) oldest() eventID {
	var first eventID
	found := false
	for id := range l.data {
		if !found || id.less(first) {
			first, found = id, true
		}
	}
	return first
}

func (l *Log) sortedIDs() []eventID {
	ids := make([]eventID, 0, len(l.data))
	for id := range l.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	return ids
}

// writeFileAtomic replaces path so readers never see a half-written checkpoint
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func humanDuration(d time.Duration) string {
	t := int64(d / time.Second)
	if t < 120 {
		return fmt.Sprintf("%ds", t)
	}
	t /= 60
	if t < 120 {
		return fmt.Sprintf("%dm", t)
	}
	t /= 60
	if t < 48 {
		return fmt.Sprintf("%dh", t)
	}
	return fmt.Sprintf("%dd", t/24)
}
