// Package logger provides structured JSON logging with optional PII redaction.
//
// Call sites use key/value pairs:
//
//	logger.Warn("response details missing", "request_id", id)
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu        sync.RWMutex
	base      = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	redactPII = true
)

// Init configures the default logger. level is a zerolog level name
// ("debug", "info", "warn", "error"); unknown names fall back to info.
func Init(level string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stderr
	}
	mu.Lock()
	base = zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	mu.Unlock()
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	mu.Lock()
	redactPII = r
	mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { emit(zerolog.DebugLevel, msg, fields) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { emit(zerolog.InfoLevel, msg, fields) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { emit(zerolog.WarnLevel, msg, fields) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { emit(zerolog.ErrorLevel, msg, fields) }

func emit(level zerolog.Level, msg string, fields []interface{}) {
	mu.RLock()
	l := base
	redact := redactPII
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case int:
			ev = ev.Int(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case error:
			ev = ev.Str(key, redactValue(redact, key, v.Error()))
		default:
			ev = ev.Str(key, redactValue(redact, key, fmt.Sprintf("%v", v)))
		}
	}
	ev.Msg(msg)
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactValue(enabled bool, key, val string) string {
	if !enabled {
		return val
	}
	key = strings.ToLower(key)
	if strings.Contains(key, "email") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
