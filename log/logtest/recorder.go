/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/storescrape/scrapekit/log"
)

// RecordedEntry is a logged entry kept by Recorder.
// Fields contain the fields bound with With first, then the fields of the call.
type RecordedEntry struct {
	Fields []log.Field
	Level  log.Level
	Time   time.Time
	Text   string
}

// FindField returns the first field with the key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// FieldString returns the value of a string field.
func (re *RecordedEntry) FieldString(key string) (string, bool) {
	f, ok := re.FindField(key)
	if !ok || (f.Type != logf.FieldTypeBytesToString && f.Type != logf.FieldTypeRawBytes) {
		return "", false
	}
	return string(f.Bytes), true
}

// FieldInt returns the value of an integer or duration field.
func (re *RecordedEntry) FieldInt(key string) (int64, bool) {
	f, ok := re.FindField(key)
	if !ok || (f.Type != logf.FieldTypeInt64 && f.Type != logf.FieldTypeDuration) {
		return 0, false
	}
	return f.Int, true
}

// entryStore is shared by a Recorder and all loggers derived from it.
type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic // logf.EntryWriter passes entries by value.
func (s *entryStore) WriteEntry(e logf.Entry) {
	entry := RecordedEntry{
		Fields: make([]log.Field, 0, len(e.DerivedFields)+len(e.Fields)),
		Level:  levelOf(e.Level),
		Time:   e.Time,
		Text:   e.Text,
	}
	entry.Fields = append(append(entry.Fields, e.DerivedFields...), e.Fields...)

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *entryStore) filter(accept func(entry RecordedEntry) bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RecordedEntry
	for _, entry := range s.entries {
		if accept == nil || accept(entry) {
			res = append(res, entry)
		}
	}
	return res
}

func (s *entryStore) reset() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Recorder is a log.FieldLogger that keeps every entry of every level in memory, so tests can inspect them.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{LogfAdapter: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store: store}
}

// With returns a Recorder that adds fs to every entry and records into the same store.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.With(fs...).(*log.LogfAdapter), store: r.store}
}

// WithLevel returns a Recorder that drops entries below level and records into the same store.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), store: r.store}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	return r.store.filter(nil)
}

// FindEntry returns the first entry with the message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	entries := r.FindEntries(msg)
	if len(entries) == 0 {
		return RecordedEntry{}, false
	}
	return entries[0], true
}

// FindEntries returns all entries with the message.
func (r *Recorder) FindEntries(msg string) []RecordedEntry {
	return r.store.filter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntriesByLevel returns all entries logged at the level.
func (r *Recorder) FindEntriesByLevel(level log.Level) []RecordedEntry {
	return r.store.filter(func(entry RecordedEntry) bool { return entry.Level == level })
}

// FindAllEntriesByFilter returns all entries accepted by filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.store.filter(filter)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.reset()
}

func levelOf(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
