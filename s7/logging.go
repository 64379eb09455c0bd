package s7

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger is the structured-event sink a Session emits debug and error
// altitude events to. It is injected at construction time rather than kept
// as process-wide state, so a program hosting multiple sessions can route
// each one's events independently (or discard them entirely).
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger discards every event. It is the zero-value default so logging
// is always optional.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{}) {}

// LogrusLogger adapts a *logrus.Logger to Logger.
type LogrusLogger struct {
	L *logrus.Logger
}

// NewLogrusLogger wraps l as a Logger. A nil l yields a logger that discards
// every event.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{L: l}
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	if l == nil || l.L == nil {
		return
	}
	l.L.Debugf(format, args...)
}

func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	if l == nil || l.L == nil {
		return
	}
	l.L.Errorf(format, args...)
}

// hexDump renders data as an offset/hex/ASCII dump, one 16-byte row per
// line, for debug-altitude TX/RX logging.
func hexDump(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var out string
	for offset := 0; offset < len(data); offset += 16 {
		out += fmt.Sprintf("%04X: ", offset)
		for i := 0; i < 16; i++ {
			if offset+i < len(data) {
				out += fmt.Sprintf("%02X ", data[offset+i])
			} else {
				out += "   "
			}
		}
		out += " "
		for i := 0; i < 16 && offset+i < len(data); i++ {
			b := data[offset+i]
			if b >= 32 && b < 127 {
				out += string(b)
			} else {
				out += "."
			}
		}
		out += "\n"
	}
	return out
}
