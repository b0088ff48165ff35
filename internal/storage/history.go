package storage

import (
	"context"

	"github.com/keshon/modkit/pkg/cmd"
)

// RecordHistory consumes command execution events from ch and appends guild
// invocations to their guild's history. It returns when ctx is done or ch is
// closed.
func (s *Storage) RecordHistory(ctx context.Context, ch <-chan any) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			e, ok := ev.(cmd.Executed)
			if !ok || e.GuildID == "" {
				continue
			}
			err := s.AppendCommandToHistory(e.GuildID, CommandHistoryRecord{
				InvocationID: e.InvocationID,
				ChannelID:    e.ChannelID,
				UserID:       e.CallerID,
				Command:      e.Command.String(),
				Module:       e.Module,
				Duration:     e.Duration,
				Datetime:     e.At,
			})
			if err != nil {
				s.log.Warn().Err(err).Str("event", "storage.history_failed").Str("guild", e.GuildID).Msg("could not record command")
			}
		}
	}
}
