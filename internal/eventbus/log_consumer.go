package eventbus

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogConsumer logs every event.
type LogConsumer struct{}

func NewLogConsumer() *LogConsumer { return &LogConsumer{} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt Event) error {
	log.Info().
		Str("event", evt.Type).
		Str("id", evt.ID).
		Str("report_id", evt.ReportID).
		Int("documents", len(evt.DocumentIDs)).
		Msg("event")
	return nil
}
