package logging

import (
	"fmt"
	"sync"

	"github.com/sadlil/gologger"
)

// Logger is the logging surface handed to every component.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type goLogger struct {
	l gologger.GoLogger
}

// New logs to fileLog when set, otherwise to a colored console.
func New(fileLog string) Logger {
	if fileLog != "" {
		return &goLogger{l: gologger.GetLogger(gologger.FILE, fileLog)}
	}
	return &goLogger{l: gologger.GetLogger(gologger.CONSOLE, gologger.ColoredLog)}
}

func (g *goLogger) Info(format string, args ...interface{}) {
	g.l.Info(fmt.Sprintf(format, args...))
}

func (g *goLogger) Warn(format string, args ...interface{}) {
	g.l.Warn(fmt.Sprintf(format, args...))
}

func (g *goLogger) Error(format string, args ...interface{}) {
	g.l.Error(fmt.Sprintf(format, args...))
}

func (g *goLogger) Debug(format string, args ...interface{}) {
	g.l.Debug(fmt.Sprintf(format, args...))
}

type nop struct{}

func (nop) Info(string, ...interface{})  {}
func (nop) Warn(string, ...interface{})  {}
func (nop) Error(string, ...interface{}) {}
func (nop) Debug(string, ...interface{}) {}

// Nop discards everything.
func Nop() Logger { return nop{} }

// Entry is one line captured by a Recorder.
type Entry struct {
	Level   string
	Message string
}

// Recorder keeps log lines in memory. Handy in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) add(level, format string, args []interface{}) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: fmt.Sprintf(format, args...)})
	r.mu.Unlock()
}

func (r *Recorder) Info(format string, args ...interface{})  { r.add("info", format, args) }
func (r *Recorder) Warn(format string, args ...interface{})  { r.add("warn", format, args) }
func (r *Recorder) Error(format string, args ...interface{}) { r.add("error", format, args) }
func (r *Recorder) Debug(format string, args ...interface{}) { r.add("debug", format, args) }

// Entries returns a copy of what was logged so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many lines were logged at level.
func (r *Recorder) Count(level string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
