package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
)

// All repository interfaces in one file
type (
	// WebhookEventRepository handles the durable inbound event queue.
	WebhookEventRepository interface {
		Create(ctx context.Context, event *model.WebhookEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error)
		GetPending(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
		MarkProcessing(ctx context.Context, ids []uuid.UUID) error
		MarkOutcomes(ctx context.Context, outcomes []model.EventOutcome) error
		Requeue(ctx context.Context, id uuid.UUID) (bool, error)
		List(ctx context.Context, query string, limit, offset int) ([]*model.WebhookEvent, int, error)
	}

	// CycleLockRepository guards the drain cycle with a leased singleton
	// lock row. TryAcquire must be a single atomic conditional write.
	CycleLockRepository interface {
		TryAcquire(ctx context.Context, name string, lease time.Duration) (bool, error)
		Release(ctx context.Context, name string) error
	}

	ProjectRepository interface {
		FindByID(ctx context.Context, id uuid.UUID) (*model.Project, error)
		FindByWABAID(ctx context.Context, wabaID string) (*model.Project, error)
		FindByWABAOrPhoneNumberID(ctx context.Context, wabaID, phoneNumberID string) (*model.Project, error)
		Upsert(ctx context.Context, project *model.Project) (*model.Project, error)
		Delete(ctx context.Context, id uuid.UUID) error
		UpdatePhoneNumberQuality(ctx context.Context, projectID uuid.UUID, displayPhoneNumber, quality, throughputLevel string) (int64, error)
		UpdatePhoneNumberVerifiedName(ctx context.Context, projectID uuid.UUID, displayPhoneNumber, verifiedName string) (int64, error)
	}

	// MessageRepository is the outbound message ledger.
	MessageRepository interface {
		ApplyStatusUpdates(ctx context.Context, updates []model.MessageStatusUpdate) error
	}

	// BroadcastRepository covers the campaign-contact ledger and the
	// per-campaign aggregate counters.
	BroadcastRepository interface {
		FindContactsByMessageIDs(ctx context.Context, wamids []string) ([]*model.BroadcastContact, error)
		ApplyContactUpdates(ctx context.Context, updates []model.ContactStatusUpdate) error
		IncrementCounters(ctx context.Context, deltas map[uuid.UUID]model.BroadcastCounterDelta) error
	}

	TemplateRepository interface {
		FindByMetaID(ctx context.Context, metaID string) (*model.Template, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status string) (int64, error)
		UpdateQualityScore(ctx context.Context, id uuid.UUID, score string) (int64, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
	}

	// ChatRepository handles inbound conversation state.
	ChatRepository interface {
		UpsertContact(ctx context.Context, contact *model.ChatContact) (*model.ChatContact, error)
		CreateIncomingMessage(ctx context.Context, msg *model.IncomingMessage) error
	}
)
