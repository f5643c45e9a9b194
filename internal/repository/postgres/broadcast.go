package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type broadcastRepository struct {
	BaseRepository
}

func NewBroadcastRepository(base BaseRepository) repository.BroadcastRepository {
	return &broadcastRepository{base}
}

// FindContactsByMessageIDs resolves all receipt wamids against the contact
// ledger in one query, avoiding an N+1 lookup per receipt.
func (r *broadcastRepository) FindContactsByMessageIDs(ctx context.Context, wamids []string) ([]*model.BroadcastContact, error) {
	if len(wamids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, broadcast_id, phone, message_id, status, error, created_at, sent_at
		FROM broadcast_contacts
		WHERE message_id = ANY($1)
	`
	var contacts []*model.BroadcastContact
	if err := r.db.SelectContext(ctx, &contacts, query, pq.Array(wamids)); err != nil {
		return nil, fmt.Errorf("failed to resolve broadcast contacts: %w", err)
	}
	return contacts, nil
}

// ApplyContactUpdates writes contact statuses unordered; one failing row
// does not stop the rest.
func (r *broadcastRepository) ApplyContactUpdates(ctx context.Context, updates []model.ContactStatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	query := `
		UPDATE broadcast_contacts
		SET status = $2, error = COALESCE($3, error)
		WHERE id = $1
	`
	var errs []error
	for _, u := range updates {
		if _, err := r.db.ExecContext(ctx, query, u.ContactID, u.Status, u.Error); err != nil {
			errs = append(errs, fmt.Errorf("failed to update broadcast contact %s: %w", u.ContactID, err))
		}
	}
	return errors.Join(errs...)
}

// IncrementCounters applies one accumulated delta per broadcast. Counters
// are plain additive updates, safe under concurrent increments.
func (r *broadcastRepository) IncrementCounters(ctx context.Context, deltas map[uuid.UUID]model.BroadcastCounterDelta) error {
	query := `
		UPDATE broadcasts
		SET delivered_count = delivered_count + $2,
			read_count = read_count + $3,
			error_count = error_count + $4,
			success_count = success_count + $5
		WHERE id = $1
	`
	var errs []error
	for id, d := range deltas {
		if d.IsZero() {
			continue
		}
		if _, err := r.db.ExecContext(ctx, query, id, d.Delivered, d.Read, d.Failed, d.Success); err != nil {
			errs = append(errs, fmt.Errorf("failed to increment counters for broadcast %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
