package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Logger writes printf-style lines tagged with a level and, for child
// loggers, a component prefix.
type Logger struct {
	logger   *log.Logger
	minLevel Level
	prefix   string
}

func New(minLevel Level) *Logger {
	return NewWithWriter(os.Stdout, minLevel)
}

func NewWithWriter(w io.Writer, minLevel Level) *Logger {
	return &Logger{
		logger:   log.New(w, "", log.LstdFlags),
		minLevel: minLevel,
	}
}

// Discard returns a logger that drops everything, for tests and tools.
func Discard() *Logger {
	return NewWithWriter(io.Discard, ERROR+1)
}

// With returns a child logger sharing the output whose lines carry
// [component] after the level tag.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		logger:   l.logger,
		minLevel: l.minLevel,
		prefix:   l.prefix + "[" + component + "] ",
	}
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.logger.Fatalf("[FATAL] "+l.prefix+msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.printf(DEBUG, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.printf(INFO, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.printf(WARN, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.printf(ERROR, msg, args...)
}

func (l *Logger) printf(level Level, msg string, args ...any) {
	if l.minLevel <= level {
		l.logger.Printf("["+level.String()+"] "+l.prefix+msg, args...)
	}
}

func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q (valid: DEBUG, INFO, WARN, ERROR)", s)
	}
}
