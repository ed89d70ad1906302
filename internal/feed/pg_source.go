package feed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const DefaultChannel = "tasks_changes"

// PGSource listens for task change notifications published by the
// tasks_notify_change trigger.
type PGSource struct {
	dsn     string
	channel string
	log     zerolog.Logger
}

func NewPGSource(dsn, channel string, log zerolog.Logger) *PGSource {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGSource{
		dsn:     dsn,
		channel: channel,
		log:     log.With().Str("component", "pg_source").Str("channel", channel).Logger(),
	}
}

func (s *PGSource) Listen(ctx context.Context, subscribed func(), handle func(Event)) error {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect change feed: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", s.channel, err)
	}
	s.log.Info().Msg("subscribed to task changes")
	subscribed()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		ev, err := ParseEvent([]byte(n.Payload))
		if err != nil {
			s.log.Warn().Err(err).Msg("ignoring malformed change event")
			continue
		}
		handle(ev)
	}
}
