// Package tracker persists per-request provider usage to SQLite so cost and
// throughput survive restarts.
package tracker

import (
	"database/sql"
	"time"
)

// Record is one row of provider usage
type Record struct {
	ID         int       `json:"id" db:"id"`
	WikiID     string    `json:"wiki_id" db:"wiki_id"`
	PageID     string    `json:"page_id" db:"page_id"`
	Provider   string    `json:"provider" db:"provider"`
	Model      string    `json:"model" db:"model"`
	Tokens     *int      `json:"tokens,omitempty" db:"tokens"`
	Cost       *float64  `json:"cost,omitempty" db:"cost"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	Success    bool      `json:"success" db:"success"`
	ErrorMsg   *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Stats aggregates usage over a time window
type Stats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	TotalTokens        int64   `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
	SuccessRate        float64 `json:"success_rate"`
}

// ProviderBreakdown is per-provider aggregate usage
type ProviderBreakdown struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	RequestCount  int     `json:"request_count"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Tracker records provider usage rows
type Tracker struct {
	db *sql.DB
}

// New creates a usage tracker over an open database handle
func New(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Migrate creates the usage table if it does not exist
func (t *Tracker) Migrate() error {
	_, err := t.db.Exec(`
		CREATE TABLE IF NOT EXISTS provider_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wiki_id TEXT NOT NULL,
			page_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			tokens INTEGER,
			cost REAL,
			duration_ms INTEGER NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// Track inserts one usage record
func (t *Tracker) Track(rec *Record) error {
	query := `
		INSERT INTO provider_usage (
			wiki_id, page_id, provider, model, tokens, cost,
			duration_ms, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.Exec(query,
		rec.WikiID, rec.PageID, rec.Provider, rec.Model,
		rec.Tokens, rec.Cost, rec.DurationMS, rec.Success, rec.ErrorMsg,
	)
	return err
}

// GetStats returns aggregate usage since the given time
func (t *Tracker) GetStats(since time.Time) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(tokens, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT model) as unique_models
		FROM provider_usage
		WHERE created_at >= ?`

	var stats Stats
	err := t.db.QueryRow(query, since).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)
	if err != nil {
		return nil, err
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// GetBreakdown returns per-provider usage since the given time
func (t *Tracker) GetBreakdown(since time.Time) ([]ProviderBreakdown, error) {
	query := `
		SELECT
			provider,
			model,
			COUNT(*) as request_count,
			SUM(COALESCE(tokens, 0)) as total_tokens,
			SUM(COALESCE(cost, 0)) as total_cost,
			AVG(duration_ms) as avg_duration_ms
		FROM provider_usage
		WHERE created_at >= ? AND success = 1
		GROUP BY provider, model
		ORDER BY total_cost DESC`

	rows, err := t.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breakdown []ProviderBreakdown
	for rows.Next() {
		var pb ProviderBreakdown
		if err := rows.Scan(&pb.Provider, &pb.Model, &pb.RequestCount,
			&pb.TotalTokens, &pb.TotalCost, &pb.AvgDurationMS); err != nil {
			continue
		}
		breakdown = append(breakdown, pb)
	}
	return breakdown, rows.Err()
}
