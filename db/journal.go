package db

import (
	"context"
	"fmt"

	"axiom/voice"
)

// Journal stores answered exchanges.
type Journal struct {
	queries *Queries
}

func NewJournal(queries *Queries) *Journal {
	return &Journal{queries: queries}
}

func (j *Journal) Record(ctx context.Context, ex voice.Exchange) error {
	err := j.queries.InsertExchange(ctx, InsertExchangeParams{
		ID:         ex.ID,
		GuildID:    ex.GuildID,
		ChannelID:  ex.ChannelID,
		UserID:     ex.UserID,
		Source:     string(ex.Source),
		Question:   ex.Question,
		Answer:     ex.Answer,
		Status:     ex.Status,
		DurationMs: ex.Duration.Milliseconds(),
		CreatedAt:  ex.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

func (j *Journal) Recent(ctx context.Context, guildID string, limit int) ([]Exchange, error) {
	exchanges, err := j.queries.RecentExchanges(ctx, RecentExchangesParams{
		GuildID: guildID,
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("recent exchanges: %w", err)
	}
	return exchanges, nil
}
