// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/senna-project/senninha/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch stores an extracted batch as received, before evaluation.
func (r *SQLRepository) SaveBatch(ctx context.Context, batch *domain.Batch) error {
	if batch.ID == "" {
		return fmt.Errorf("%w: batch id is required", ErrInvalidInput)
	}

	lines, err := json.Marshal(batch.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode batch lines: %w", err)
	}

	query := `INSERT INTO batches (id, created_at, lines) VALUES (?, ?, ?)`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		batch.ID, time.Now().UTC(), string(lines))
	return err
}

// GetBatch retrieves a batch by ID.
func (r *SQLRepository) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	query := `SELECT id, lines FROM batches WHERE id = ?`

	var batch domain.Batch
	var lines string

	err := r.db.QueryRowContext(ctx, r.rebind(query), batchID).Scan(&batch.ID, &lines)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(lines), &batch.Lines); err != nil {
		return nil, fmt.Errorf("failed to parse batch lines: %w", err)
	}

	return &batch, nil
}

// SaveEvaluation stores an evaluation result and materializes the evaluated
// lines into debt_lines so per-client reads do not re-derive anything.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	if eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	lines, _ := json.Marshal(eval.Lines)
	summaries, _ := json.Marshal(eval.Summaries)
	metadata, _ := json.Marshal(eval.Metadata)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO evaluations (id, batch_id, timestamp, lines, summaries, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.BatchID, eval.Timestamp,
		string(lines), string(summaries), string(metadata)); err != nil {
		return err
	}

	// Re-evaluating a batch replaces its materialized lines.
	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM debt_lines WHERE batch_id = ?`), eval.BatchID); err != nil {
		return err
	}

	now := time.Now().UTC()
	lineQuery := `
		INSERT INTO debt_lines (batch_id, nif, position, line, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	for i := range eval.Lines {
		l := &eval.Lines[i]
		encoded, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to encode debt line %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(lineQuery),
			eval.BatchID, l.TaxID, i, string(encoded), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.Evaluation, error) {
	query := `
		SELECT id, batch_id, timestamp, lines, summaries, metadata
		FROM evaluations
		WHERE id = ?
	`

	var eval domain.Evaluation
	var lines, summaries, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), evalID).Scan(
		&eval.ID, &eval.BatchID, &eval.Timestamp,
		&lines, &summaries, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(lines), &eval.Lines)
	json.Unmarshal([]byte(summaries), &eval.Summaries)
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}

// SaveClientSummary upserts one client's rollup for a batch.
func (r *SQLRepository) SaveClientSummary(ctx context.Context, summary *domain.ClientSummary) error {
	if summary.TaxID == "" {
		return fmt.Errorf("%w: nif is required", ErrInvalidInput)
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	query := `
		INSERT INTO client_summaries (nif, batch_id, summary, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(nif, batch_id) DO UPDATE SET
			summary = excluded.summary,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		summary.TaxID, summary.BatchID, string(encoded), time.Now().UTC())
	return err
}

// GetClientSummary retrieves the most recent rollup for a client.
func (r *SQLRepository) GetClientSummary(ctx context.Context, taxID string) (*domain.ClientSummary, error) {
	query := `
		SELECT summary
		FROM client_summaries
		WHERE nif = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var encoded string
	err := r.db.QueryRowContext(ctx, r.rebind(query), taxID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var summary domain.ClientSummary
	if err := json.Unmarshal([]byte(encoded), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}

	return &summary, nil
}

// GetClientLines retrieves a client's evaluated lines, most recent batch
// first, in batch order within a batch.
func (r *SQLRepository) GetClientLines(ctx context.Context, taxID string) ([]domain.DebtLine, error) {
	query := `
		SELECT line
		FROM debt_lines
		WHERE nif = ?
		ORDER BY created_at DESC, position ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), taxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.DebtLine
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, err
		}
		var line domain.DebtLine
		if err := json.Unmarshal([]byte(encoded), &line); err != nil {
			return nil, fmt.Errorf("failed to parse debt line: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// SaveRuleConfig upserts a custom exclusion rule.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Reason, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a custom exclusion rule by ID.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, reason, enabled
		FROM rule_configs
		WHERE id = ?
	`

	var cfg domain.RuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Expression, &cfg.Reason, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled custom exclusion rules.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, reason, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
			&cfg.Expression, &cfg.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteRuleConfig soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, ruleID string) error {
	query := `
		UPDATE rule_configs
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
