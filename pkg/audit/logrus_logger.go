package audit

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as JSON lines through logrus
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates an audit logger writing JSON to out
func NewLogrusLogger(out io.Writer) *LogrusLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{logger: logger}
}

// Log implements Logger
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	enrich(ctx, event)

	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.Type),
		"status":     string(event.Status),
		"request_id": event.RequestID,
		"ip_address": event.IPAddress,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields).WithTime(event.Timestamp)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close implements Logger
func (l *LogrusLogger) Close() error {
	return nil
}
