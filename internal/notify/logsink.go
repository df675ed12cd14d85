package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Compile-time check that LogSink implements Sink.
var _ Sink = (*LogSink)(nil)

// LogSink is a Sink that writes notifications to the structured log. It is
// the default when no chat transport is attached, and doubles as a readable
// trace of what users would see.
type LogSink struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send logs the message and fabricates a reference from a local sequence.
func (s *LogSink) Send(_ context.Context, channelID, text string) (MessageRef, error) {
	ref := MessageRef{
		ChannelID: channelID,
		MessageID: fmt.Sprintf("log-%d", s.seq.Add(1)),
	}
	s.logger.Info("notification sent",
		slog.String("channel", channelID),
		slog.String("message_id", ref.MessageID),
		slog.String("text", text),
	)
	return ref, nil
}

// Edit logs the updated text for the referenced message.
func (s *LogSink) Edit(_ context.Context, ref MessageRef, text string) error {
	s.logger.Info("notification edited",
		slog.String("channel", ref.ChannelID),
		slog.String("message_id", ref.MessageID),
		slog.String("text", text),
	)
	return nil
}

// SendArtifact logs the artifact delivery.
func (s *LogSink) SendArtifact(_ context.Context, channelID, locator, caption string) error {
	s.logger.Info("artifact delivered",
		slog.String("channel", channelID),
		slog.String("locator", locator),
		slog.String("caption", caption),
	)
	return nil
}
