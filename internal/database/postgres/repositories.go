package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HeaderRepository handles confirmed-header persistence
type HeaderRepository struct {
	db *sql.DB
}

// NewHeaderRepository creates a new header repository
func NewHeaderRepository(db *sql.DB) *HeaderRepository {
	return &HeaderRepository{db: db}
}

// UpsertHeader inserts a header row or replaces the row at its height.
// Replacement at the same height only happens when a follower reconnects
// after a shallow reorganization.
func (r *HeaderRepository) UpsertHeader(ctx context.Context, header *Header) error {
	query := `
		INSERT INTO headers (height, hash, prev_hash, time, bits, difficulty, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (height) DO UPDATE SET
			hash = EXCLUDED.hash,
			prev_hash = EXCLUDED.prev_hash,
			time = EXCLUDED.time,
			bits = EXCLUDED.bits,
			difficulty = EXCLUDED.difficulty,
			inserted_at = EXCLUDED.inserted_at`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		header.Height, header.Hash, header.PrevHash,
		header.Time, header.Bits, header.Difficulty, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert header at height %d: %w", header.Height, err)
	}

	header.InsertedAt = now
	return nil
}

// GetHeaderByHeight retrieves the header at a height
func (r *HeaderRepository) GetHeaderByHeight(ctx context.Context, height int64) (*Header, error) {
	query := `
		SELECT height, hash, prev_hash, time, bits, difficulty, inserted_at
		FROM headers WHERE height = $1`

	header := &Header{}
	err := r.db.QueryRowContext(ctx, query, height).Scan(
		&header.Height, &header.Hash, &header.PrevHash,
		&header.Time, &header.Bits, &header.Difficulty, &header.InsertedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no header at height %d", height)
		}
		return nil, fmt.Errorf("failed to get header: %w", err)
	}

	return header, nil
}

// GetHeadersRange retrieves headers with heights in [from, to], ascending.
// Used to rebuild the in-memory index at startup.
func (r *HeaderRepository) GetHeadersRange(ctx context.Context, from, to int64) ([]Header, error) {
	query := `
		SELECT height, hash, prev_hash, time, bits, difficulty, inserted_at
		FROM headers
		WHERE height >= $1 AND height <= $2
		ORDER BY height ASC`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query header range [%d, %d]: %w", from, to, err)
	}
	defer rows.Close()

	var headers []Header
	for rows.Next() {
		var header Header
		if err := rows.Scan(
			&header.Height, &header.Hash, &header.PrevHash,
			&header.Time, &header.Bits, &header.Difficulty, &header.InsertedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan header row: %w", err)
		}
		headers = append(headers, header)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading header rows: %w", err)
	}

	return headers, nil
}

// GetTipHeight returns the highest persisted height, or -1 when the table
// is empty.
func (r *HeaderRepository) GetTipHeight(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(height), -1) FROM headers`

	var height int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&height); err != nil {
		return -1, fmt.Errorf("failed to get tip height: %w", err)
	}
	return height, nil
}

// PruneBelow deletes headers below a height, keeping the table bounded to
// the backfill window the service actually needs.
func (r *HeaderRepository) PruneBelow(ctx context.Context, height int64) (int64, error) {
	query := `DELETE FROM headers WHERE height < $1`

	result, err := r.db.ExecContext(ctx, query, height)
	if err != nil {
		return 0, fmt.Errorf("failed to prune headers below %d: %w", height, err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned headers: %w", err)
	}
	return pruned, nil
}

// RetargetRepository handles difficulty adjustment history
type RetargetRepository struct {
	db *sql.DB
}

// NewRetargetRepository creates a new retarget repository
func NewRetargetRepository(db *sql.DB) *RetargetRepository {
	return &RetargetRepository{db: db}
}

// CreateRetarget records a difficulty adjustment
func (r *RetargetRepository) CreateRetarget(ctx context.Context, retarget *Retarget) error {
	query := `
		INSERT INTO retargets (height, old_bits, new_bits, actual_timespan, target_timespan, fork_activation, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		retarget.Height, retarget.OldBits, retarget.NewBits,
		retarget.ActualTimespan, retarget.TargetTimespan,
		retarget.ForkActivation, retarget.OccurredAt,
	).Scan(&retarget.ID)
	if err != nil {
		return fmt.Errorf("failed to create retarget record: %w", err)
	}

	return nil
}

// ListRecentRetargets returns the most recent retargets, newest first
func (r *RetargetRepository) ListRecentRetargets(ctx context.Context, limit int) ([]Retarget, error) {
	query := `
		SELECT id, height, old_bits, new_bits, actual_timespan, target_timespan, fork_activation, occurred_at
		FROM retargets
		ORDER BY height DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query retargets: %w", err)
	}
	defer rows.Close()

	var retargets []Retarget
	for rows.Next() {
		var rt Retarget
		if err := rows.Scan(
			&rt.ID, &rt.Height, &rt.OldBits, &rt.NewBits,
			&rt.ActualTimespan, &rt.TargetTimespan,
			&rt.ForkActivation, &rt.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan retarget row: %w", err)
		}
		retargets = append(retargets, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading retarget rows: %w", err)
	}

	return retargets, nil
}
