package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type Exchange struct {
	ID         string
	GuildID    string
	ChannelID  string
	UserID     string
	Source     string
	Question   string
	Answer     string
	Status     string
	DurationMs int64
	CreatedAt  time.Time
}

type ConfigValue struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

const insertExchange = `
INSERT INTO exchanges (
    id, guild_id, channel_id, user_id, source,
    question, answer, status, duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    answer = EXCLUDED.answer,
    status = EXCLUDED.status,
    duration_ms = EXCLUDED.duration_ms
`

type InsertExchangeParams = Exchange

func (q *Queries) InsertExchange(ctx context.Context, arg InsertExchangeParams) error {
	_, err := q.db.Exec(ctx, insertExchange,
		arg.ID,
		arg.GuildID,
		arg.ChannelID,
		arg.UserID,
		arg.Source,
		arg.Question,
		arg.Answer,
		arg.Status,
		arg.DurationMs,
		arg.CreatedAt,
	)
	return err
}

const recentExchanges = `
SELECT id, guild_id, channel_id, user_id, source,
       question, answer, status, duration_ms, created_at
FROM exchanges
WHERE ($1::text = '' OR guild_id = $1)
ORDER BY created_at DESC
LIMIT $2
`

type RecentExchangesParams struct {
	GuildID string
	Limit   int32
}

func (q *Queries) RecentExchanges(ctx context.Context, arg RecentExchangesParams) ([]Exchange, error) {
	rows, err := q.db.Query(ctx, recentExchanges, arg.GuildID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Exchange
	for rows.Next() {
		var i Exchange
		if err := rows.Scan(
			&i.ID,
			&i.GuildID,
			&i.ChannelID,
			&i.UserID,
			&i.Source,
			&i.Question,
			&i.Answer,
			&i.Status,
			&i.DurationMs,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getAllConfig = `
SELECT key, value, updated_at FROM config_values ORDER BY key
`

func (q *Queries) GetAllConfig(ctx context.Context) ([]ConfigValue, error) {
	rows, err := q.db.Query(ctx, getAllConfig)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ConfigValue
	for rows.Next() {
		var i ConfigValue
		if err := rows.Scan(&i.Key, &i.Value, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getConfigValue = `
SELECT value FROM config_values WHERE key = $1
`

func (q *Queries) GetConfigValue(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRow(ctx, getConfigValue, key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const setConfigValue = `
INSERT INTO config_values (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`

type SetConfigValueParams struct {
	Key   string
	Value string
}

func (q *Queries) SetConfigValue(ctx context.Context, arg SetConfigValueParams) error {
	_, err := q.db.Exec(ctx, setConfigValue, arg.Key, arg.Value)
	return err
}
