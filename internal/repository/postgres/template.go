package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type templateRepository struct {
	BaseRepository
}

func NewTemplateRepository(base BaseRepository) repository.TemplateRepository {
	return &templateRepository{base}
}

func (r *templateRepository) FindByMetaID(ctx context.Context, metaID string) (*model.Template, error) {
	query := `
		SELECT id, project_id, meta_id, name, status, quality_score, created_at, updated_at
		FROM templates
		WHERE meta_id = $1
	`
	var template model.Template
	err := r.db.GetContext(ctx, &template, query, metaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find template: %w", err)
	}
	return &template, nil
}

// UpdateStatus returns the number of rows changed so callers can notify
// only on an actual transition.
func (r *templateRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	query := `
		UPDATE templates
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IS DISTINCT FROM $2
	`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return 0, fmt.Errorf("failed to update template status: %w", err)
	}
	return result.RowsAffected()
}

func (r *templateRepository) UpdateQualityScore(ctx context.Context, id uuid.UUID, score string) (int64, error) {
	query := `
		UPDATE templates
		SET quality_score = $2, updated_at = NOW()
		WHERE id = $1 AND quality_score IS DISTINCT FROM $2
	`
	result, err := r.db.ExecContext(ctx, query, id, score)
	if err != nil {
		return 0, fmt.Errorf("failed to update template quality: %w", err)
	}
	return result.RowsAffected()
}
