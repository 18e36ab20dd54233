package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/reconcile"
)

// EventType represents the type of event
type EventType string

const (
	EventScan      EventType = "scan"
	EventNew       EventType = "new"
	EventUpdated   EventType = "updated"
	EventRelinked  EventType = "relinked"
	EventDuplicate EventType = "duplicate"
	EventMissing   EventType = "missing"
	EventMerge     EventType = "merge"
	EventSplit     EventType = "split"
	EventDelete    EventType = "delete"
	EventLocate    EventType = "locate"
	EventEdit      EventType = "edit"
	EventVocab     EventType = "vocab"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(s string) EventLevel {
	if _, ok := levelPriority[EventLevel(s)]; ok {
		return EventLevel(s)
	}
	return LevelInfo
}

// Event represents a single catalog event
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	TrackID    string            `json:"track_id,omitempty"`
	ClusterID  string            `json:"cluster_id,omitempty"`
	VirtualKey string            `json:"virtual_key,omitempty"`
	Path       string            `json:"path,omitempty"`
	OldPath    string            `json:"old_path,omitempty"`
	SHA1       string            `json:"sha1,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Count      int               `json:"count,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Append so two runs in the same second share one file
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

func trackEvent(level EventLevel, typ EventType, t *catalog.Track) *Event {
	e := &Event{Level: level, Event: typ}
	if t != nil {
		e.TrackID = t.TrackID.String()
		e.ClusterID = t.ClusterID.String()
		e.VirtualKey = t.VirtualKey
		e.Path = t.OriginalPath
		e.SHA1 = t.Fingerprint.SHA1
	}
	return e
}

// LogChange logs one change of a reconciliation pass
func (l *EventLogger) LogChange(ch reconcile.Change) error {
	level := LevelInfo
	typ := EventType(ch.Kind)
	switch ch.Kind {
	case reconcile.ChangeUpdated:
		level = LevelDebug
	case reconcile.ChangeDuplicate, reconcile.ChangeMissing:
		level = LevelWarning
	}

	e := trackEvent(level, typ, ch.Track)
	e.OldPath = ch.OldPath
	e.Reason = ch.Reason
	if ch.OldSHA1 != "" {
		e.Extra = map[string]string{"old_sha1": ch.OldSHA1}
	}
	if ch.Kind == reconcile.ChangeDuplicate && ch.Track != nil && ch.Track.DuplicateOf != nil {
		if e.Extra == nil {
			e.Extra = map[string]string{}
		}
		e.Extra["duplicate_of"] = ch.Track.DuplicateOf.String()
	}
	return l.Log(e)
}

// LogScan logs the summary of a reconciliation pass
func (l *EventLogger) LogScan(root string, s *reconcile.Summary, duration time.Duration) error {
	e := &Event{
		Level:    LevelInfo,
		Event:    EventScan,
		Path:     root,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"new":        fmt.Sprintf("%d", s.New),
			"updated":    fmt.Sprintf("%d", s.Updated),
			"relinked":   fmt.Sprintf("%d", s.Relinked),
			"duplicates": fmt.Sprintf("%d", s.Duplicates),
			"missing":    fmt.Sprintf("%d", s.Missing),
		},
	}
	if s.Scan != nil {
		e.Count = s.Scan.Files
		e.Extra["hashed"] = fmt.Sprintf("%d", s.Scan.Hashed)
		e.Extra["bytes_hashed"] = fmt.Sprintf("%d", s.Scan.BytesHashed)
	}
	return l.Log(e)
}

// LogMerge logs a cluster merge
func (l *EventLogger) LogMerge(target, source string, moved int) error {
	return l.Log(&Event{
		Level:     LevelInfo,
		Event:     EventMerge,
		ClusterID: target,
		Count:     moved,
		Extra:     map[string]string{"source_cluster_id": source},
	})
}

// LogSplit logs a cluster split
func (l *EventLogger) LogSplit(source, created, name string, moved int) error {
	return l.Log(&Event{
		Level:     LevelInfo,
		Event:     EventSplit,
		ClusterID: created,
		Count:     moved,
		Reason:    name,
		Extra:     map[string]string{"source_cluster_id": source},
	})
}

// LogTrack logs an explicit edit of one track
func (l *EventLogger) LogTrack(typ EventType, t *catalog.Track, oldPath, reason string) error {
	e := trackEvent(LevelInfo, typ, t)
	e.OldPath = oldPath
	e.Reason = reason
	return l.Log(e)
}

// LogVocab logs a vocabulary change
func (l *EventLogger) LogVocab(action, subject string, affected int) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventVocab,
		Reason: action,
		Count:  affected,
		Extra:  map[string]string{"subject": subject},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
