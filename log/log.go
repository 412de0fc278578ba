// Package log is a small leveled logger. Records are formatted and written by
// a single background goroutine so that callers on the navigation path never
// block on output.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	logChanBufSize = 1024
	timeFormat     = "2006-01-02 15:04:05"
)

// Level represents a log level type
type Level int

// ExitHandler is executed after a fatal record has been written.
// Default. It will exit with error code 1 (unix catch all error code)
var ExitHandler = func() {
	os.Exit(1)
}

const (
	// DebugLevel represents DEBUG log level
	DebugLevel Level = iota

	// InfoLevel represents INFO log level
	InfoLevel

	// WarningLevel represents WARNING log level
	WarningLevel

	// ErrorLevel represents ERROR log level
	ErrorLevel

	// FatalLevel represents FATAL log level
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarningLevel:
		return "warning"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Logger represents a common logger interface.
type Logger interface {
	io.Closer

	Level() Level
	Run()
	IsRunning() bool
	Log(level Level, pkg string, file string, line int, format string, args ...interface{})
}

// Debugf writes a 'debug' message to configured logger.
func Debugf(format string, args ...interface{}) {
	logf(DebugLevel, format, args...)
}

// Infof writes a 'info' message to configured logger.
func Infof(format string, args ...interface{}) {
	logf(InfoLevel, format, args...)
}

// Warnf writes a 'warn' message to configured logger.
func Warnf(format string, args ...interface{}) {
	logf(WarningLevel, format, args...)
}

// Errorf writes an 'error' message to configured logger.
func Errorf(format string, args ...interface{}) {
	logf(ErrorLevel, format, args...)
}

// Fatalf writes a 'fatal' message to configured logger and calls ExitHandler.
func Fatalf(format string, args ...interface{}) {
	logf(FatalLevel, format, args...)
}

// Error writes an error value to configured logger.
func Error(err error) {
	logf(ErrorLevel, "%v", err)
}

// Fatal writes an error value to the configured logger and calls ExitHandler.
func Fatal(err error) {
	logf(FatalLevel, "%v", err)
}

// logf must be called directly by the exported helpers; the caller lookup
// skips exactly two frames.
func logf(level Level, format string, args ...interface{}) {
	if inst := instance(); inst.Level() <= level {
		ci := getCallerInfo()
		inst.Log(level, ci.pkg, ci.filename, ci.line, format, args...)
	}
}

var (
	instMu sync.RWMutex
	inst   Logger
)

// Set replaces the global logger, closing the previous one.
func Set(logger Logger) {
	instMu.Lock()
	_ = inst.Close()
	inst = logger
	instMu.Unlock()
}

func instance() Logger {
	instMu.RLock()
	l := inst
	instMu.RUnlock()
	if !l.IsRunning() {
		l.Run()
	}
	return l
}

type logger struct {
	level   Level
	out     io.Writer
	files   []io.WriteCloser
	b       strings.Builder
	running atomic.Bool
	closed  atomic.Bool
	recMu   sync.RWMutex
	recCh   chan record
	done    chan struct{}
}

type record struct {
	level      Level
	time       time.Time
	pkg        string
	file       string
	line       int
	log        string
	continueCh chan struct{}
}

type callerInfo struct {
	pkg      string
	filename string
	line     int
}

func init() {
	// Set default stderr logger
	inst = newLogger(InfoLevel, os.Stderr, nil)
}

func newLogger(level Level, out io.Writer, files []io.WriteCloser) *logger {
	return &logger{
		level: level,
		out:   out,
		files: files,
		recCh: make(chan record, logChanBufSize),
		done:  make(chan struct{}),
	}
}

// New returns a logger writing to out and to every file. Files are closed
// together with the logger.
func New(level string, out io.Writer, files ...io.WriteCloser) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := newLogger(lvl, out, files)
	l.Run()
	return l, nil
}

func (l *logger) Level() Level {
	return l.level
}

func (l *logger) IsRunning() bool {
	return l.running.Load()
}

// Run starts the writer goroutine. Calling it again is a no-op.
func (l *logger) Run() {
	if l.running.CompareAndSwap(false, true) {
		go l.mainLoop()
	}
}

func (l *logger) Log(level Level, pkg string, file string, line int, format string, args ...interface{}) {
	entity := record{
		level:      level,
		time:       time.Now(),
		pkg:        pkg,
		file:       file,
		line:       line,
		log:        fmt.Sprintf(format, args...),
		continueCh: make(chan struct{}),
	}

	l.recMu.RLock()
	defer l.recMu.RUnlock()
	if l.closed.Load() {
		return
	}

	select {
	case l.recCh <- entity:
		if level == FatalLevel {
			<-entity.continueCh // wait until done
		}
	default:
		// drop rather than block the caller
	}
}

// Close stops accepting records, writes the ones already queued and closes
// the attached files.
func (l *logger) Close() error {
	l.recMu.Lock()
	if l.closed.Swap(true) {
		l.recMu.Unlock()
		return nil
	}
	close(l.recCh)
	l.recMu.Unlock()

	if l.IsRunning() {
		<-l.done
	} else {
		l.closeFiles()
	}
	return nil
}

func (l *logger) closeFiles() {
	for _, w := range l.files {
		_ = w.Close()
	}
}

func (l *logger) mainLoop() {
	defer close(l.done)

	for rec := range l.recCh {
		line := l.format(rec)
		fmt.Fprint(l.out, line)
		for _, w := range l.files {
			fmt.Fprint(w, line)
		}

		if rec.level == FatalLevel {
			ExitHandler()
		}

		close(rec.continueCh)
	}

	l.closeFiles()
}

func (l *logger) format(rec record) string {
	l.b.Reset()
	l.b.WriteString(rec.time.Format(timeFormat))
	l.b.WriteString(" [")
	l.b.WriteString(logLevelAbbreviation(rec.level))
	l.b.WriteString("] ")

	l.b.WriteString(rec.pkg)
	if len(rec.pkg) > 0 {
		l.b.WriteString("/")
	}
	l.b.WriteString(rec.file)
	l.b.WriteString(":")
	l.b.WriteString(strconv.Itoa(rec.line))
	l.b.WriteString(" - ")
	l.b.WriteString(rec.log)
	l.b.WriteString("\n")
	return l.b.String()
}

func getCallerInfo() callerInfo {
	c := callerInfo{}
	_, file, line, ok := runtime.Caller(3)
	if ok {
		c.pkg = filepath.Base(path.Dir(file))
		filename := filepath.Base(file)
		c.filename = strings.TrimSuffix(filename, filepath.Ext(filename))
		c.line = line
	} else {
		c.pkg = "???"
		c.filename = "???"
	}

	return c
}

func logLevelAbbreviation(level Level) string {
	switch level {
	case DebugLevel:
		return "DBG"
	case InfoLevel:
		return "INF"
	case WarningLevel:
		return "WRN"
	case ErrorLevel:
		return "ERR"
	case FatalLevel:
		return "FTL"
	default:
		return ""
	}
}

// ParseLevel converts a level name as used in configuration files.
// The empty string means info.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarningLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	}

	return Level(-1), fmt.Errorf("log: unrecognized log level: %s", level)
}
