package webhook

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/waba-sync/internal/email"
	"github.com/jwalitptl/waba-sync/internal/meta"
	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
	"github.com/jwalitptl/waba-sync/pkg/logger"
	"github.com/jwalitptl/waba-sync/pkg/metrics"
	"github.com/jwalitptl/waba-sync/pkg/view"
)

// Config carries the drain-cycle and provisioning settings the service
// needs; everything is externally supplied, nothing is a contract of the
// pipeline itself.
type Config struct {
	BatchSize       int
	LockLease       time.Duration
	SystemUserToken string
}

// Service is the reconciliation core: it drains the webhook event queue
// under a leased lock, routes each decoded event, and keeps the message
// ledger, the campaign-contact ledger and the campaign aggregates in step.
type Service struct {
	events        repository.WebhookEventRepository
	locks         repository.CycleLockRepository
	projects      repository.ProjectRepository
	messages      repository.MessageRepository
	broadcasts    repository.BroadcastRepository
	templates     repository.TemplateRepository
	notifications repository.NotificationRepository
	chats         repository.ChatRepository
	meta          meta.Client
	email         email.Service
	views         view.Invalidator
	logger        *logger.Logger
	metrics       *metrics.Metrics
	cfg           Config

	// resolved projects, keyed by WABA ID
	projectCache *cache.Cache
}

type Repositories struct {
	Events        repository.WebhookEventRepository
	Locks         repository.CycleLockRepository
	Projects      repository.ProjectRepository
	Messages      repository.MessageRepository
	Broadcasts    repository.BroadcastRepository
	Templates     repository.TemplateRepository
	Notifications repository.NotificationRepository
	Chats         repository.ChatRepository
}

func NewService(
	repos Repositories,
	metaClient meta.Client,
	emailSvc email.Service,
	views view.Invalidator,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 2 * time.Minute
	}

	return &Service{
		events:        repos.Events,
		locks:         repos.Locks,
		projects:      repos.Projects,
		messages:      repos.Messages,
		broadcasts:    repos.Broadcasts,
		templates:     repos.Templates,
		notifications: repos.Notifications,
		chats:         repos.Chats,
		meta:          metaClient,
		email:         emailSvc,
		views:         views,
		logger:        logger,
		metrics:       metrics,
		cfg:           cfg,
		projectCache:  cache.New(15*time.Minute, time.Hour),
	}
}

// notify appends a dashboard notification and flags the feed stale.
func (s *Service) notify(ctx context.Context, project *model.Project, message, link, eventType string) error {
	n := &model.Notification{
		ProjectID: project.ID,
		WABAID:    project.WABAID,
		Message:   message,
		Link:      link,
		EventType: eventType,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return err
	}
	s.views.Invalidate(ctx, view.Notifications)
	return nil
}
