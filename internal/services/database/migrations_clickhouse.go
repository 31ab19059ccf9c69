package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunClickHouseMigrations creates the gateway tables on ClickHouse. There are
// no unique indexes here; request id dedup relies on the services' pre-insert checks.
func RunClickHouseMigrations(db *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id String,
			plan String DEFAULT 'free',
			monthly_token_used Int64 DEFAULT 0,
			usage_period_start DateTime,
			created_at DateTime DEFAULT now(),
			updated_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id`,

		`CREATE TABLE IF NOT EXISTS usage_records (
			id UInt64,
			user_id String,
			request_id Nullable(String),
			provider String,
			model String,
			tokens_in Int32,
			tokens_out Int32,
			cost_usd Float64,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS provider_metrics (
			id UInt64,
			provider String,
			model String,
			latency_ms Int64,
			cost_usd Float64,
			success UInt8,
			error_code String,
			user_id String,
			request_id Nullable(String),
			tokens_in Int32,
			tokens_out Int32,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (provider, created_at)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id String,
			user_id String,
			title String,
			created_at DateTime DEFAULT now(),
			updated_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id`,

		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id UInt64,
			conversation_id String,
			role String,
			content String,
			provider String,
			model String,
			tokens_in Int32,
			tokens_out Int32,
			created_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (conversation_id, created_at)`,
	}

	for _, query := range queries {
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}
