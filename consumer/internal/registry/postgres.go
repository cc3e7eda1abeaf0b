package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry stores sources in the sources / source_data_types tables
// created by consumer/migrations.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(ctx context.Context, connString string) (*PostgresRegistry, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRegistry{pool: pool}, nil
}

func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

// Ping reports database reachability for health checks.
func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const selectSourceColumns = `
	SELECT id, name, kind, brokers, topic, group_id, auto_offset_reset,
	       enable_auto_commit, auto_commit_interval_ms, session_timeout_ms,
	       is_active, created_at, updated_at
	FROM sources`

// ListActiveSources returns active sources, oldest first.
func (r *PostgresRegistry) ListActiveSources(ctx context.Context) ([]SourceConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.querySources(ctx, selectSourceColumns+` WHERE is_active = true ORDER BY created_at ASC`)
}

// ListSources returns every source, oldest first.
func (r *PostgresRegistry) ListSources(ctx context.Context) ([]SourceConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.querySources(ctx, selectSourceColumns+` ORDER BY created_at ASC`)
}

// GetSource retrieves one source by ID.
func (r *PostgresRegistry) GetSource(ctx context.Context, id uuid.UUID) (*SourceConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sources, err := r.querySources(ctx, selectSourceColumns+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrSourceNotFound
	}
	return &sources[0], nil
}

func (r *PostgresRegistry) querySources(ctx context.Context, query string, args ...any) ([]SourceConfig, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceConfig
	for rows.Next() {
		var (
			s         SourceConfig
			kind      string
			commitMs  int64
			timeoutMs int64
		)
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&kind,
			&s.Brokers,
			&s.Topic,
			&s.GroupID,
			&s.AutoOffsetReset,
			&s.EnableAutoCommit,
			&commitMs,
			&timeoutMs,
			&s.Active,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		s.Kind = Kind(kind)
		s.AutoCommitInterval = time.Duration(commitMs) * time.Millisecond
		s.SessionTimeout = time.Duration(timeoutMs) * time.Millisecond
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}

	return sources, nil
}

// GetSourceTypeMapping returns the declared data type of every mapped source.
func (r *PostgresRegistry) GetSourceTypeMapping(ctx context.Context) (map[uuid.UUID]DataType, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT source_id, data_type FROM source_data_types`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source data types: %w", err)
	}
	defer rows.Close()

	mapping := make(map[uuid.UUID]DataType)
	for rows.Next() {
		var (
			id       uuid.UUID
			dataType string
		)
		if err := rows.Scan(&id, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan source data type: %w", err)
		}
		mapping[id] = DataType(dataType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source data types: %w", err)
	}

	return mapping, nil
}

// UpsertSource inserts src or updates the row with the same ID.
func (r *PostgresRegistry) UpsertSource(ctx context.Context, src *SourceConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	src.ApplyDefaults()
	if err := src.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO sources
		(id, name, kind, brokers, topic, group_id, auto_offset_reset,
		 enable_auto_commit, auto_commit_interval_ms, session_timeout_ms, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			brokers = EXCLUDED.brokers,
			topic = EXCLUDED.topic,
			group_id = EXCLUDED.group_id,
			auto_offset_reset = EXCLUDED.auto_offset_reset,
			enable_auto_commit = EXCLUDED.enable_auto_commit,
			auto_commit_interval_ms = EXCLUDED.auto_commit_interval_ms,
			session_timeout_ms = EXCLUDED.session_timeout_ms,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		src.ID,
		src.Name,
		string(src.Kind),
		src.Brokers,
		src.Topic,
		src.GroupID,
		src.AutoOffsetReset,
		src.EnableAutoCommit,
		src.AutoCommitInterval.Milliseconds(),
		src.SessionTimeout.Milliseconds(),
		src.Active,
	).Scan(&src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	return nil
}

// SetDataType maps id to dataType. DataTypeNone removes the mapping.
func (r *PostgresRegistry) SetDataType(ctx context.Context, id uuid.UUID, dataType DataType) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := ParseDataType(string(dataType)); err != nil {
		return err
	}
	if _, err := r.GetSource(ctx, id); err != nil {
		return err
	}

	if dataType == DataTypeNone {
		if _, err := r.pool.Exec(ctx, `DELETE FROM source_data_types WHERE source_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear source data type: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO source_data_types (source_id, data_type)
		VALUES ($1, $2)
		ON CONFLICT (source_id) DO UPDATE SET data_type = EXCLUDED.data_type, updated_at = NOW()
	`, id, string(dataType))
	if err != nil {
		return fmt.Errorf("failed to set source data type: %w", err)
	}
	return nil
}

// SetActive toggles whether the orchestrator consumes from the source.
func (r *PostgresRegistry) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE sources SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// DeleteSource removes a source and its data type mapping.
func (r *PostgresRegistry) DeleteSource(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}
