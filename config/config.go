package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"

	"axiom/db"
)

type Queries interface {
	GetAllConfig(ctx context.Context) ([]db.ConfigValue, error)
	GetConfigValue(ctx context.Context, key string) (string, error)
	SetConfigValue(ctx context.Context, arg db.SetConfigValueParams) error
}

// Config layers overrides stored in the database on top of viper.
type Config struct {
	queries Queries
}

func New(queries Queries) *Config {
	return &Config{queries: queries}
}

func (c *Config) Load(ctx context.Context) error {
	configs, err := c.queries.GetAllConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, cfg := range configs {
		viper.Set(cfg.Key, cfg.Value)
	}

	return nil
}

func (c *Config) Get(ctx context.Context, key string) (string, error) {
	value, err := c.queries.GetConfigValue(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("config key not found: %s", key)
		}
		return "", fmt.Errorf("failed to get config value: %w", err)
	}
	return value, nil
}

func (c *Config) Set(ctx context.Context, key, value string) error {
	err := c.queries.SetConfigValue(ctx, db.SetConfigValueParams{
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to set config value: %w", err)
	}
	viper.Set(key, value)
	return nil
}
