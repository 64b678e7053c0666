package middleware

import (
	"context"
	"time"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLoggingMiddleware logs the conversation size before and the reply after inference.
func NewLoggingMiddleware(logger zerolog.Logger, name string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error) {
			lg := logger
			// fall back to global if uninitialized
			if lg.GetLevel() == zerolog.NoLevel {
				lg = log.Logger
			}

			lg = lg.With().
				Str("engine", name).
				Str("run_id", events.RunIDFromContext(ctx)).
				Int("message_count", conv.Len()).
				Logger()

			lg.Debug().Msg("inference: starting")
			start := time.Now()

			msg, err := next(ctx, conv)
			if err != nil {
				lg.Error().Err(err).Dur("duration", time.Since(start)).Msg("inference: failed")
				return msg, err
			}

			lg.Debug().
				Dur("duration", time.Since(start)).
				Int("reply_length", len(msg.Content)).
				Str("reply", msg.Preview(80)).
				Msg("inference: completed")
			return msg, nil
		}
	}
}
