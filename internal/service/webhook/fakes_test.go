package webhook

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/email"
	"github.com/jwalitptl/waba-sync/internal/meta"
	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/pkg/logger"
	"github.com/jwalitptl/waba-sync/pkg/metrics"
)

// In-memory fakes for the repository surface. They keep just enough state
// to assert the pipeline's observable behavior.

type fakeEventRepo struct {
	mu            sync.Mutex
	events        []*model.WebhookEvent
	outcomes      []model.EventOutcome
	processingIDs []uuid.UUID
	getPendingErr error
	markBatchErr  error
	claimDelay    time.Duration
}

func (f *fakeEventRepo) Create(_ context.Context, event *model.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = uuid.New()
	event.Status = model.WebhookEventStatusPending
	event.CreatedAt = time.Now()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) Get(_ context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeEventRepo) GetPending(_ context.Context, limit int) ([]*model.WebhookEvent, error) {
	if f.claimDelay > 0 {
		time.Sleep(f.claimDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPendingErr != nil {
		return nil, f.getPendingErr
	}
	var out []*model.WebhookEvent
	for _, e := range f.events {
		if e.Status == model.WebhookEventStatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) MarkProcessing(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markBatchErr != nil {
		return f.markBatchErr
	}
	f.processingIDs = append(f.processingIDs, ids...)
	for _, e := range f.events {
		for _, id := range ids {
			if e.ID == id {
				e.Status = model.WebhookEventStatusProcessing
			}
		}
	}
	return nil
}

func (f *fakeEventRepo) MarkOutcomes(_ context.Context, outcomes []model.EventOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcomes...)
	for _, o := range outcomes {
		for _, e := range f.events {
			if e.ID == o.ID {
				e.Status = o.Status
				e.Error = o.Error
			}
		}
	}
	return nil
}

func (f *fakeEventRepo) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id && (e.Status == model.WebhookEventStatusCompleted || e.Status == model.WebhookEventStatusFailed) {
			e.Status = model.WebhookEventStatusPending
			e.Error = nil
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventRepo) List(_ context.Context, search string, limit, offset int) ([]*model.WebhookEvent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WebhookEvent
	for _, e := range f.events {
		if search == "" || strings.Contains(e.SearchableText, search) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

// fakeLockRepo mirrors the conditional-upsert semantics: acquire succeeds
// only when no unexpired lease exists.
type fakeLockRepo struct {
	mu         sync.Mutex
	heldUntil  time.Time
	acquireErr error
	releases   int
	releaseErr error
}

func (f *fakeLockRepo) TryAcquire(_ context.Context, _ string, lease time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if time.Now().Before(f.heldUntil) {
		return false, nil
	}
	f.heldUntil = time.Now().Add(lease)
	return true, nil
}

func (f *fakeLockRepo) Release(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.heldUntil = time.Time{}
	return nil
}

type fakeProjectRepo struct {
	mu          sync.Mutex
	byWABA      map[string]*model.Project
	upsertCalls int
	qualityRows int64
	nameRows    int64
	qualityArgs []string
	findErr     error
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{byWABA: make(map[string]*model.Project), qualityRows: 1, nameRows: 1}
}

func (f *fakeProjectRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byWABA {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeProjectRepo) FindByWABAID(_ context.Context, wabaID string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byWABA[wabaID], nil
}

func (f *fakeProjectRepo) FindByWABAOrPhoneNumberID(_ context.Context, wabaID, phoneNumberID string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if p, ok := f.byWABA[wabaID]; ok {
		return p, nil
	}
	if phoneNumberID != "" {
		for _, p := range f.byWABA {
			for _, n := range p.PhoneNumbers {
				if n.ID == phoneNumberID {
					return p, nil
				}
			}
		}
	}
	return nil, nil
}

func (f *fakeProjectRepo) Upsert(_ context.Context, project *model.Project) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if existing, ok := f.byWABA[project.WABAID]; ok {
		existing.Name = project.Name
		existing.AccessToken = project.AccessToken
		existing.ReviewStatus = project.ReviewStatus
		existing.PhoneNumbers = project.PhoneNumbers
		return existing, nil
	}
	project.ID = uuid.New()
	f.byWABA[project.WABAID] = project
	return project, nil
}

func (f *fakeProjectRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for waba, p := range f.byWABA {
		if p.ID == id {
			delete(f.byWABA, waba)
		}
	}
	return nil
}

func (f *fakeProjectRepo) UpdatePhoneNumberQuality(_ context.Context, _ uuid.UUID, displayPhoneNumber, quality, throughputLevel string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qualityArgs = []string{displayPhoneNumber, quality, throughputLevel}
	return f.qualityRows, nil
}

func (f *fakeProjectRepo) UpdatePhoneNumberVerifiedName(_ context.Context, _ uuid.UUID, displayPhoneNumber, verifiedName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nameRows, nil
}

// fakeMessageRepo applies updates with upsert-and-merge semantics like the
// real ledger, so idempotence is observable.
type fakeMessageRepo struct {
	mu       sync.Mutex
	records  map[string]*model.MessageRecord
	applyErr error
	applied  int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{records: make(map[string]*model.MessageRecord)}
}

func (f *fakeMessageRepo) ApplyStatusUpdates(_ context.Context, updates []model.MessageStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied += len(updates)
	for _, u := range updates {
		rec, ok := f.records[u.WAMID]
		if !ok {
			rec = &model.MessageRecord{
				ID:               uuid.New(),
				WAMID:            u.WAMID,
				StatusTimestamps: model.StatusTimestamps{},
			}
			f.records[u.WAMID] = rec
		}
		rec.Status = u.Status
		rec.StatusTimestamps[u.Status] = u.Timestamp
		if u.Error != nil {
			rec.Error = u.Error
		}
	}
	return nil
}

type fakeBroadcastRepo struct {
	mu         sync.Mutex
	contacts   []*model.BroadcastContact
	counters   map[uuid.UUID]model.BroadcastCounterDelta
	findErr    error
	contactErr error
}

func newFakeBroadcastRepo() *fakeBroadcastRepo {
	return &fakeBroadcastRepo{counters: make(map[uuid.UUID]model.BroadcastCounterDelta)}
}

func (f *fakeBroadcastRepo) FindContactsByMessageIDs(_ context.Context, wamids []string) ([]*model.BroadcastContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	wanted := make(map[string]bool, len(wamids))
	for _, id := range wamids {
		wanted[id] = true
	}
	var out []*model.BroadcastContact
	for _, c := range f.contacts {
		if c.MessageID != nil && wanted[*c.MessageID] {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeBroadcastRepo) ApplyContactUpdates(_ context.Context, updates []model.ContactStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contactErr != nil {
		return f.contactErr
	}
	for _, u := range updates {
		for _, c := range f.contacts {
			if c.ID == u.ContactID {
				c.Status = u.Status
				if u.Error != nil {
					c.Error = u.Error
				}
			}
		}
	}
	return nil
}

func (f *fakeBroadcastRepo) IncrementCounters(_ context.Context, deltas map[uuid.UUID]model.BroadcastCounterDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range deltas {
		agg := f.counters[id]
		agg.Delivered += d.Delivered
		agg.Read += d.Read
		agg.Failed += d.Failed
		agg.Success += d.Success
		f.counters[id] = agg
	}
	return nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[string]*model.Template
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[string]*model.Template)}
}

func (f *fakeTemplateRepo) FindByMetaID(_ context.Context, metaID string) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates[metaID], nil
}

func (f *fakeTemplateRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.templates {
		if t.ID == id && t.Status != status {
			t.Status = status
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeTemplateRepo) UpdateQualityScore(_ context.Context, id uuid.UUID, score string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.templates {
		if t.ID == id && t.QualityScore != score {
			t.QualityScore = score
			return 1, nil
		}
	}
	return 0, nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []*model.Notification
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotificationRepo) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notifications))
	for i, n := range f.notifications {
		out[i] = n.Message
	}
	return out
}

type fakeChatRepo struct {
	mu       sync.Mutex
	contacts map[string]*model.ChatContact
	incoming []*model.IncomingMessage
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{contacts: make(map[string]*model.ChatContact)}
}

func (f *fakeChatRepo) UpsertContact(_ context.Context, contact *model.ChatContact) (*model.ChatContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := contact.ProjectID.String() + "/" + contact.WaID
	if existing, ok := f.contacts[key]; ok {
		existing.Name = contact.Name
		existing.LastMessage = contact.LastMessage
		existing.LastMessageTimestamp = contact.LastMessageTimestamp
		existing.UnreadCount++
		return existing, nil
	}
	contact.ID = uuid.New()
	contact.UnreadCount = 1
	f.contacts[key] = contact
	return contact, nil
}

func (f *fakeChatRepo) CreateIncomingMessage(_ context.Context, msg *model.IncomingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.New()
	f.incoming = append(f.incoming, msg)
	return nil
}

type fakeMetaClient struct {
	account    *meta.AccountDetails
	numbers    []model.PhoneNumber
	accountErr error
	numbersErr error
	calls      int
}

func (f *fakeMetaClient) GetAccountDetails(context.Context, string) (*meta.AccountDetails, error) {
	f.calls++
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return f.account, nil
}

func (f *fakeMetaClient) ListPhoneNumbers(context.Context, string) ([]model.PhoneNumber, error) {
	if f.numbersErr != nil {
		return nil, f.numbersErr
	}
	return f.numbers, nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	views []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, views ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, views...)
}

type recordingEmail struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingEmail) SendAlert(_ context.Context, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

// testEnv bundles the service under test with every fake it talks to.
type testEnv struct {
	svc           *Service
	events        *fakeEventRepo
	locks         *fakeLockRepo
	projects      *fakeProjectRepo
	messages      *fakeMessageRepo
	broadcasts    *fakeBroadcastRepo
	templates     *fakeTemplateRepo
	notifications *fakeNotificationRepo
	chats         *fakeChatRepo
	meta          *fakeMetaClient
	views         *recordingInvalidator
	email         *recordingEmail
}

func newTestEnv(cfg Config) *testEnv {
	env := &testEnv{
		events:        &fakeEventRepo{},
		locks:         &fakeLockRepo{},
		projects:      newFakeProjectRepo(),
		messages:      newFakeMessageRepo(),
		broadcasts:    newFakeBroadcastRepo(),
		templates:     newFakeTemplateRepo(),
		notifications: &fakeNotificationRepo{},
		chats:         newFakeChatRepo(),
		meta:          &fakeMetaClient{},
		views:         &recordingInvalidator{},
		email:         &recordingEmail{},
	}
	if cfg.SystemUserToken == "" {
		cfg.SystemUserToken = "system-token"
	}

	quiet := logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})

	env.svc = NewService(
		Repositories{
			Events:        env.events,
			Locks:         env.locks,
			Projects:      env.projects,
			Messages:      env.messages,
			Broadcasts:    env.broadcasts,
			Templates:     env.templates,
			Notifications: env.notifications,
			Chats:         env.chats,
		},
		env.meta,
		env.email,
		env.views,
		quiet,
		metrics.New("test"),
		cfg,
	)
	return env
}

var _ email.Service = (*recordingEmail)(nil)
