package logging

import (
	"fmt"
	"time"
)

type LoggerEntry struct {
	Messages  []string
	Timestamp time.Time
}

// Logger sends prefixed entries to a shared channel consumed by the UI.
// Sends are dropped when the channel is full so a stalled consumer can
// never block a node's processing loop.
type Logger struct {
	Logs   chan LoggerEntry
	prefix string
}

func CreateLogger(prefix string, logs chan LoggerEntry) *Logger {
	return &Logger{
		Logs:   logs,
		prefix: prefix,
	}
}

func (logg *Logger) Log(message string) {
	logg.send(LoggerEntry{
		Messages: []string{
			fmt.Sprintf("%s %s", logg.prefix, message),
		},
		Timestamp: time.Now(),
	})
}

func (logg *Logger) Logf(format string, args ...interface{}) {
	logg.Log(fmt.Sprintf(format, args...))
}

func (logg *Logger) LogMultiple(messages []string) {
	prefixed := make([]string, len(messages))
	for idx, message := range messages {
		prefixed[idx] = fmt.Sprintf("%s %s", logg.prefix, message)
	}
	logg.send(LoggerEntry{
		Messages:  prefixed,
		Timestamp: time.Now(),
	})
}

func (logg *Logger) send(entry LoggerEntry) {
	select {
	case logg.Logs <- entry:
	default:
	}
}
