package notify

import (
	"go.uber.org/zap"
)

// Sink delivers rendered trade messages. Send must not block the caller on
// network I/O.
type Sink interface {
	Send(message string, correlationID string)
}

// LogSink writes messages to the logger. It is used when Telegram is not
// configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(message string, correlationID string) {
	s.logger.Info("trade", zap.String("tx", correlationID), zap.String("message", message))
}

// SplitChunks cuts s into pieces of at most max characters.
func SplitChunks(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	chunks := make([]string, 0, len(runes)/max+1)
	for i := 0; i < len(runes); i += max {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
