package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/waba-sync/internal/model"
	webhookService "github.com/jwalitptl/waba-sync/internal/service/webhook"
	"github.com/jwalitptl/waba-sync/pkg/logger"
)

type stubEventRepo struct {
	created  []*model.WebhookEvent
	events   map[uuid.UUID]*model.WebhookEvent
	requeued []uuid.UUID
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{events: make(map[uuid.UUID]*model.WebhookEvent)}
}

func (s *stubEventRepo) Create(_ context.Context, event *model.WebhookEvent) error {
	event.ID = uuid.New()
	event.Status = model.WebhookEventStatusPending
	event.CreatedAt = time.Now()
	s.created = append(s.created, event)
	s.events[event.ID] = event
	return nil
}

func (s *stubEventRepo) Get(_ context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	return s.events[id], nil
}

func (s *stubEventRepo) GetPending(context.Context, int) ([]*model.WebhookEvent, error) {
	return nil, nil
}

func (s *stubEventRepo) MarkProcessing(context.Context, []uuid.UUID) error { return nil }

func (s *stubEventRepo) MarkOutcomes(context.Context, []model.EventOutcome) error { return nil }

func (s *stubEventRepo) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	evt, ok := s.events[id]
	if !ok || evt.Status == model.WebhookEventStatusPending {
		return false, nil
	}
	evt.Status = model.WebhookEventStatusPending
	s.requeued = append(s.requeued, id)
	return true, nil
}

func (s *stubEventRepo) List(context.Context, string, int, int) ([]*model.WebhookEvent, int, error) {
	out := make([]*model.WebhookEvent, 0, len(s.created))
	out = append(out, s.created...)
	return out, len(out), nil
}

type stubDrainer struct {
	result *webhookService.CycleResult
	err    error
}

func (s *stubDrainer) RunCycle(context.Context) (*webhookService.CycleResult, error) {
	return s.result, s.err
}

func newTestRouter(events *stubEventRepo, drainer Drainer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	quiet := logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	h := NewHandler(events, drainer, "verify-secret", quiet)
	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestVerifySubscription(t *testing.T) {
	r := newTestRouter(newStubEventRepo(), &stubDrainer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/webhooks/meta?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())
}

func TestVerifySubscriptionWrongToken(t *testing.T) {
	r := newTestRouter(newStubEventRepo(), &stubDrainer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/webhooks/meta?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReceiveEnqueuesEvent(t *testing.T) {
	events := newStubEventRepo()
	r := newTestRouter(events, &stubDrainer{})

	body := `{"object":"whatsapp_business_account","entry":[{"id":"waba-1","changes":[{"field":"messages","value":{"statuses":[{"id":"wamid-1","status":"delivered","timestamp":"1700000000","recipient_id":"15550001111"}]}}]}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/meta", strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, events.created, 1)
	evt := events.created[0]
	assert.Equal(t, model.WebhookEventStatusPending, evt.Status)
	assert.JSONEq(t, body, string(evt.Payload))
	assert.Contains(t, evt.SearchableText, "Status update: delivered")
	assert.Contains(t, evt.SearchableText, "wamid-1")
}

func TestReceiveUnparseablePayloadStillQueued(t *testing.T) {
	events := newStubEventRepo()
	r := newTestRouter(events, &stubDrainer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/meta", strings.NewReader("not json at all"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, events.created, 1)
	assert.Contains(t, events.created[0].SearchableText, "unrecognized payload")
}

func TestReceiveEmptyBody(t *testing.T) {
	events := newStubEventRepo()
	r := newTestRouter(events, &stubDrainer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/meta", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, events.created)
}

func TestDrainReturnsCycleResult(t *testing.T) {
	r := newTestRouter(newStubEventRepo(), &stubDrainer{
		result: &webhookService.CycleResult{Processed: 5, Succeeded: 4, Failed: 1},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/drain", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":5`)
	assert.Contains(t, w.Body.String(), `"failed":1`)
}

func TestDrainError(t *testing.T) {
	r := newTestRouter(newStubEventRepo(), &stubDrainer{err: errors.New("lock table unreachable")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/drain", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReprocessEvent(t *testing.T) {
	events := newStubEventRepo()
	evt := &model.WebhookEvent{Payload: []byte(`{}`)}
	require.NoError(t, events.Create(context.Background(), evt))
	evt.Status = model.WebhookEventStatusFailed

	r := newTestRouter(events, &stubDrainer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/events/"+evt.ID.String()+"/reprocess", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.WebhookEventStatusPending, evt.Status)

	// A pending event cannot be requeued again.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/events/"+evt.ID.String()+"/reprocess", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReprocessInvalidID(t *testing.T) {
	r := newTestRouter(newStubEventRepo(), &stubDrainer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/events/not-a-uuid/reprocess", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
