package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/waba-sync/internal/repository"
)

type cycleLockRepository struct {
	BaseRepository
}

func NewCycleLockRepository(base BaseRepository) repository.CycleLockRepository {
	return &cycleLockRepository{base}
}

// TryAcquire performs one atomic conditional upsert: the insert wins when
// no lock row exists, the conflict update wins only when the current lease
// has expired. Never a read-then-write pair, so two concurrent callers
// cannot both succeed.
func (r *cycleLockRepository) TryAcquire(ctx context.Context, name string, lease time.Duration) (bool, error) {
	query := `
		INSERT INTO cycle_locks (name, held_until)
		VALUES ($1, NOW() + $2 * INTERVAL '1 second')
		ON CONFLICT (name) DO UPDATE
		SET held_until = EXCLUDED.held_until
		WHERE cycle_locks.held_until < NOW()
	`
	result, err := r.db.ExecContext(ctx, query, name, lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Release moves the lease into the past so the lock is immediately
// acquirable again.
func (r *cycleLockRepository) Release(ctx context.Context, name string) error {
	query := `
		UPDATE cycle_locks
		SET held_until = TO_TIMESTAMP(0)
		WHERE name = $1
	`
	if _, err := r.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}
