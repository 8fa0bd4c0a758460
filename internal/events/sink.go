package events

import (
	"context"

	"github.com/rs/zerolog"
)

// Sink receives committed events. Deliver may be called again with events
// it has already seen; implementations deduplicate on Event.CallID.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evs []Event) error
}

// Closer is implemented by sinks that hold resources.
type Closer interface {
	Close() error
}

// LogSink writes every event to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, evs []Event) error {
	for i := range evs {
		ev := &evs[i]
		e := s.logger.Info().
			Str("call_id", ev.CallID.String()).
			Uint64("seq", ev.Seq).
			Str("kind", string(ev.Kind)).
			Str("contract", ev.Contract.String())
		for role, addr := range ev.Accounts {
			e = e.Str(role, addr.String())
		}
		for role, amt := range ev.Amounts {
			e = e.Uint64(role, amt)
		}
		e.Msg("ledger event")
	}
	return nil
}
