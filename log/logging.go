/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package log implements the kernel's structured logger: RFC 5424 syslog
// messages carrying structured data parameters, built on
// github.com/crewjam/rfc5424. Grounded on, and substantially trimmed
// from, the teacher's ingest/log package: this kernel never relays logs
// over UDP, never needs raw/printf-style output or stderr file-descriptor
// redirection, so only the structured KV logging path survives.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level is a syslog severity, ordered low-to-high by urgency the way
// rfc5424.Priority is.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	FATAL
)

// DEFAULT_DEPTH is the caller-skip depth outputStructured uses when
// reporting its own call site, kept the same name and value the teacher
// uses so KVLogger's callers don't need to know this changed.
const DEFAULT_DEPTH = 3

var levelNames = map[Level]string{
	OFF: "OFF", DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN",
	ERROR: "ERROR", CRITICAL: "CRITICAL", FATAL: "FATAL",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid reports whether l is a recognized level.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.Debug
	case INFO:
		return rfc5424.Info
	case WARN:
		return rfc5424.Warning
	case ERROR:
		return rfc5424.Error
	case CRITICAL:
		return rfc5424.Crit
	case FATAL:
		return rfc5424.Emergency
	default:
		return rfc5424.Info
	}
}

// LevelFromString parses a level name case-insensitively.
func LevelFromString(s string) (Level, error) {
	for l, n := range levelNames {
		if equalFold(s, n) {
			return l, nil
		}
	}
	return OFF, fmt.Errorf("log: unknown level %q", s)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Logger writes RFC 5424 structured log messages to one or more
// io.WriteClosers, tagged with a hostname/appname pair the way every
// syslog relay expects.
type Logger struct {
	mtx      sync.Mutex
	hostname string
	appname  string
	wtrs     []io.WriteCloser
	lvl      Level
}

// New wraps an already-open writer as a Logger's only output.
func New(appname string, w io.WriteCloser) (*Logger, error) {
	host, _ := os.Hostname()
	return &Logger{
		hostname: host,
		appname:  appname,
		wtrs:     []io.WriteCloser{w},
		lvl:      INFO,
	}, nil
}

// NewFile opens path for appending and returns a Logger that writes to
// it.
func NewFile(appname, path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, err
	}
	return New(appname, f)
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }

// NewDiscardLogger returns a Logger that throws every message away,
// useful in tests that exercise code paths requiring a non-nil *Logger.
func NewDiscardLogger() *Logger {
	l, _ := New("discard", discardCloser{})
	l.lvl = OFF
	return l
}

// Close closes every underlying writer.
func (l *Logger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	var first error
	for _, w := range l.wtrs {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetLevel sets the minimum level that will actually be written.
func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return errors.New("log: invalid level")
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

// SetLevelString is SetLevel via LevelFromString, for config-file values.
func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	return l.SetLevel(lvl)
}

// GetLevel returns the logger's current minimum level.
func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

func (l *Logger) ready(lvl Level) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl != OFF && lvl >= l.lvl
}

// KV builds a structured data parameter, the kernel-wide replacement for
// a cprintf format specifier: log.KV("pid", p.Pid).
func KV(name string, value interface{}) rfc5424.SDParam {
	return rfc5424.SDParam{Name: name, Value: fmt.Sprintf("%v", value)}
}

// KVErr is KV("error", err); when err is nil the value is "<nil>".
func KVErr(err error) rfc5424.SDParam {
	if err == nil {
		return rfc5424.SDParam{Name: "error", Value: "<nil>"}
	}
	return rfc5424.SDParam{Name: "error", Value: err.Error()}
}

func (l *Logger) outputStructured(depth int, lvl Level, msg string, sds ...rfc5424.SDParam) error {
	if !l.ready(lvl) {
		return nil
	}
	_, file, line, ok := runtime.Caller(depth)
	loc := "???"
	if ok {
		loc = fmt.Sprintf("%s:%d", trimPathLength(file), line)
	}
	sds = append([]rfc5424.SDParam{{Name: "loc", Value: loc}}, sds...)

	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: time.Now(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		Message:   []byte(msg),
		StructuredData: []rfc5424.StructuredData{
			{ID: "kv@0", Params: sds},
		},
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	b = append(b, '\n')

	l.mtx.Lock()
	defer l.mtx.Unlock()
	var first error
	for _, w := range l.wtrs {
		if _, werr := w.Write(b); werr != nil && first == nil {
			first = werr
		}
	}
	return first
}

func trimPathLength(p string) string {
	const max = 40
	if len(p) <= max {
		return p
	}
	return "..." + p[len(p)-max:]
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) error {
	return l.outputStructured(DEFAULT_DEPTH, DEBUG, msg, sds...)
}
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam) error {
	return l.outputStructured(DEFAULT_DEPTH, INFO, msg, sds...)
}
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam) error {
	return l.outputStructured(DEFAULT_DEPTH, WARN, msg, sds...)
}
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) error {
	return l.outputStructured(DEFAULT_DEPTH, ERROR, msg, sds...)
}
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) error {
	return l.outputStructured(DEFAULT_DEPTH, CRITICAL, msg, sds...)
}

// Fatal logs at FATAL and panics — this kernel's realization of xv6's
// panic(): logging never substitutes for actually halting.
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.outputStructured(DEFAULT_DEPTH, FATAL, msg, sds...)
	panic(msg)
}

// FatalCode is Fatal plus an explicit KV("code", code) parameter, for
// panics the caller wants taggable by a stable identifier.
func (l *Logger) FatalCode(code int, msg string, sds ...rfc5424.SDParam) {
	l.Fatal(msg, append(sds, KV("code", code))...)
}

// Write implements io.Writer so a *Logger can stand in for a plain log
// destination, writing each call through at INFO.
func (l *Logger) Write(b []byte) (int, error) {
	if err := l.outputStructured(DEFAULT_DEPTH, INFO, string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}
