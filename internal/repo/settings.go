package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"questpilot/internal/config"
)

// SettingsRepo stores the single settings row as config JSON.
type SettingsRepo struct {
	DB *sql.DB
}

func (r SettingsRepo) Get(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM settings WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (r SettingsRepo) Upsert(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO settings(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		string(payload), now, now)
	return err
}
