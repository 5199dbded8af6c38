package logsink

import (
	"context"
	"log/slog"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
)

const maxText = 50

// Sink logs every published envelope.
type Sink struct {
	Logger *slog.Logger
}

func (s Sink) Handle(ctx context.Context, env bus.Envelope) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ev := env.Event

	attrs := []any{
		"id", env.ID,
		"source", env.Source,
		"msisdn", ev.MSISDN(),
		"to", ev.To(),
		"message_id", ev.MessageID(),
		"type", ev.Type(),
		"fields", ev.Len(),
	}
	if info, ok := ev.Concat(); ok {
		attrs = append(attrs, "concat_ref", info.Ref, "concat_part", info.Part, "concat_total", info.Total)
	}
	if ts, ok := ev.MessageTimestamp(); ok {
		attrs = append(attrs, "message_timestamp", ts)
	}
	if !ev.IsBinary() {
		attrs = append(attrs, "text", truncate(ev.Text()))
	}

	logger.InfoContext(ctx, "inbound sms", attrs...)
	return nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxText {
		return s
	}
	return string(r[:maxText]) + "..."
}

var _ bus.Listener = Sink{}
