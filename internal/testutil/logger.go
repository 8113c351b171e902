package testutil

import (
	"fmt"
	"strings"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

// Entry is one line written through a RecordingLogger
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

type journal struct {
	mu      sync.Mutex
	entries []Entry
}

// RecordingLogger keeps every line in memory, children made by WithField share the same journal
type RecordingLogger struct {
	j      *journal
	fields map[string]interface{}
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{j: &journal{}}
}

// Logger returns a fresh recorder for tests that do not look at the output
func Logger() logger.Logger {
	return NewRecordingLogger()
}

func (r *RecordingLogger) write(level, msg string) {
	r.j.mu.Lock()
	r.j.entries = append(r.j.entries, Entry{Level: level, Msg: msg, Fields: r.fields})
	r.j.mu.Unlock()
}

func (r *RecordingLogger) Debug(msg string) { r.write("debug", msg) }
func (r *RecordingLogger) Debugf(format string, args ...interface{}) {
	r.write("debug", fmt.Sprintf(format, args...))
}
func (r *RecordingLogger) Info(msg string) { r.write("info", msg) }
func (r *RecordingLogger) Infof(format string, args ...interface{}) {
	r.write("info", fmt.Sprintf(format, args...))
}
func (r *RecordingLogger) Warn(msg string) { r.write("warn", msg) }
func (r *RecordingLogger) Warnf(format string, args ...interface{}) {
	r.write("warn", fmt.Sprintf(format, args...))
}
func (r *RecordingLogger) Error(msg string) { r.write("error", msg) }
func (r *RecordingLogger) Errorf(format string, args ...interface{}) {
	r.write("error", fmt.Sprintf(format, args...))
}

// Fatal and Panic are recorded only, a test must never exit through the logger
func (r *RecordingLogger) Fatal(msg string) { r.write("fatal", msg) }
func (r *RecordingLogger) Fatalf(format string, args ...interface{}) {
	r.write("fatal", fmt.Sprintf(format, args...))
}
func (r *RecordingLogger) Panic(msg string) { r.write("panic", msg) }
func (r *RecordingLogger) Panicf(format string, args ...interface{}) {
	r.write("panic", fmt.Sprintf(format, args...))
}

func (r *RecordingLogger) WithField(key string, value interface{}) logger.Logger {
	return r.WithFields(map[string]interface{}{key: value})
}

func (r *RecordingLogger) WithFields(fields map[string]interface{}) logger.Logger {
	merged := make(map[string]interface{}, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &RecordingLogger{j: r.j, fields: merged}
}

// Entries returns a copy of everything written so far
func (r *RecordingLogger) Entries() []Entry {
	r.j.mu.Lock()
	defer r.j.mu.Unlock()
	return append([]Entry(nil), r.j.entries...)
}

// Contains reports whether a line of the given level includes substr
func (r *RecordingLogger) Contains(level, substr string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}

// Count returns how many lines of the given level include substr
func (r *RecordingLogger) Count(level, substr string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			n++
		}
	}
	return n
}
