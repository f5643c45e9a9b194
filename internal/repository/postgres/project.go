package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type projectRepository struct {
	BaseRepository
}

func NewProjectRepository(base BaseRepository) repository.ProjectRepository {
	return &projectRepository{base}
}

const projectColumns = `id, name, waba_id, access_token, review_status, messages_per_second, phone_numbers, created_at, updated_at`

func (r *projectRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM projects
		WHERE id = $1
	`, projectColumns)

	var project model.Project
	err := r.db.GetContext(ctx, &project, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (r *projectRepository) FindByWABAID(ctx context.Context, wabaID string) (*model.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM projects
		WHERE waba_id = $1
	`, projectColumns)

	var project model.Project
	err := r.db.GetContext(ctx, &project, query, wabaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project by waba id: %w", err)
	}
	return &project, nil
}

// FindByWABAOrPhoneNumberID matches a project either by its account ID or
// by one of its channel numbers, mirroring how webhook changes may carry
// only the phone number ID.
func (r *projectRepository) FindByWABAOrPhoneNumberID(ctx context.Context, wabaID, phoneNumberID string) (*model.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM projects
		WHERE waba_id = $1
		   OR ($2 <> '' AND phone_numbers @> jsonb_build_array(jsonb_build_object('id', $2::text)))
		LIMIT 1
	`, projectColumns)

	var project model.Project
	err := r.db.GetContext(ctx, &project, query, wabaID, phoneNumberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return &project, nil
}

// Upsert is the atomic find-or-create keyed on waba_id. Refreshable fields
// are overwritten on conflict; messages_per_second and created_at are
// creation-only, so concurrent provisioning attempts converge on one row.
func (r *projectRepository) Upsert(ctx context.Context, project *model.Project) (*model.Project, error) {
	query := fmt.Sprintf(`
		INSERT INTO projects (
			id, name, waba_id, access_token, review_status,
			messages_per_second, phone_numbers, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (waba_id) DO UPDATE
		SET name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			review_status = EXCLUDED.review_status,
			phone_numbers = EXCLUDED.phone_numbers,
			updated_at = NOW()
		RETURNING %s
	`, projectColumns)

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()

	var saved model.Project
	err := r.db.GetContext(ctx, &saved, query,
		project.ID,
		project.Name,
		project.WABAID,
		project.AccessToken,
		project.ReviewStatus,
		project.MessagesPerSecond,
		project.PhoneNumbers,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project: %w", err)
	}
	return &saved, nil
}

func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM projects WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// UpdatePhoneNumberQuality rewrites the matching element of the
// phone_numbers array with the new quality rating and, when present, the
// new throughput level. Rows affected is zero when the number is not on
// the project, which callers use to skip notifications.
func (r *projectRepository) UpdatePhoneNumberQuality(ctx context.Context, projectID uuid.UUID, displayPhoneNumber, quality, throughputLevel string) (int64, error) {
	query := `
		UPDATE projects
		SET phone_numbers = (
			SELECT jsonb_agg(
				CASE WHEN elem->>'display_phone_number' = $2
					THEN elem
						|| jsonb_build_object('quality_rating', $3::text)
						|| CASE WHEN $4::text <> ''
							THEN jsonb_build_object('throughput', jsonb_build_object('level', $4::text))
							ELSE '{}'::jsonb END
					ELSE elem
				END
			)
			FROM jsonb_array_elements(phone_numbers) AS elem
		),
		updated_at = NOW()
		WHERE id = $1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(phone_numbers) AS e
			WHERE e->>'display_phone_number' = $2
		  )
	`
	result, err := r.db.ExecContext(ctx, query, projectID, displayPhoneNumber, quality, throughputLevel)
	if err != nil {
		return 0, fmt.Errorf("failed to update phone number quality: %w", err)
	}
	return result.RowsAffected()
}

// UpdatePhoneNumberVerifiedName sets the verified name on the matching
// phone_numbers element.
func (r *projectRepository) UpdatePhoneNumberVerifiedName(ctx context.Context, projectID uuid.UUID, displayPhoneNumber, verifiedName string) (int64, error) {
	query := `
		UPDATE projects
		SET phone_numbers = (
			SELECT jsonb_agg(
				CASE WHEN elem->>'display_phone_number' = $2
					THEN elem || jsonb_build_object('verified_name', $3::text)
					ELSE elem
				END
			)
			FROM jsonb_array_elements(phone_numbers) AS elem
		),
		updated_at = NOW()
		WHERE id = $1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(phone_numbers) AS e
			WHERE e->>'display_phone_number' = $2
		  )
	`
	result, err := r.db.ExecContext(ctx, query, projectID, displayPhoneNumber, verifiedName)
	if err != nil {
		return 0, fmt.Errorf("failed to update phone number name: %w", err)
	}
	return result.RowsAffected()
}
