package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/handler"
	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
	webhookService "github.com/jwalitptl/waba-sync/internal/service/webhook"
	apperrors "github.com/jwalitptl/waba-sync/pkg/errors"
	"github.com/jwalitptl/waba-sync/pkg/logger"
)

func respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.StatusCode(), handler.NewErrorResponse(err.Error()))
}

// Drainer runs one drain cycle on demand. Satisfied by the webhook
// service; narrowed to an interface so the handler can be tested without
// the full pipeline.
type Drainer interface {
	RunCycle(ctx context.Context) (*webhookService.CycleResult, error)
}

type Handler struct {
	events      repository.WebhookEventRepository
	drainer     Drainer
	verifyToken string
	logger      *logger.Logger
}

func NewHandler(events repository.WebhookEventRepository, drainer Drainer, verifyToken string, logger *logger.Logger) *Handler {
	return &Handler{
		events:      events,
		drainer:     drainer,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.GET("/meta", h.VerifySubscription)
		webhooks.POST("/meta", h.Receive)
		webhooks.POST("/drain", h.Drain)
		webhooks.GET("/events", h.ListEvents)
		webhooks.POST("/events/:id/reprocess", h.ReprocessEvent)
	}
}

// VerifySubscription answers the provider's one-time subscription
// handshake: echo the challenge when the verify token matches.
func (h *Handler) VerifySubscription(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// Receive enqueues the raw delivery and returns immediately. The provider
// retries on non-2xx, so enqueue failure is the only error surfaced;
// payloads that do not even parse are still queued and settled later by
// the drain cycle.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		respondError(c, apperrors.BadRequest("empty request body", err))
		return
	}

	summary := "unrecognized payload"
	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		summary = payload.Summary()
	}

	event := &model.WebhookEvent{
		Payload:        body,
		SearchableText: summary + " " + string(body),
	}
	if err := h.events.Create(c.Request.Context(), event); err != nil {
		h.logger.Error(err, "failed to enqueue webhook event")
		respondError(c, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": event.ID}))
}

// Drain triggers one drain cycle and reports its outcome. Safe to call
// from cron and by hand at the same time; the loser reports
// already_running.
func (h *Handler) Drain(c *gin.Context) {
	result, err := h.drainer.RunCycle(c.Request.Context())
	if err != nil {
		h.logger.Error(err, "drain cycle failed")
		respondError(c, apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

type listEventsQuery struct {
	Search string `form:"search"`
	Limit  int    `form:"limit,default=20" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

func (h *Handler) ListEvents(c *gin.Context) {
	var q listEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apperrors.BadRequest("invalid query parameters", err))
		return
	}

	events, total, err := h.events.List(c.Request.Context(), q.Search, q.Limit, q.Offset)
	if err != nil {
		respondError(c, apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"events": events,
		"total":  total,
	}))
}

// ReprocessEvent puts a settled event back on the queue; the next cycle
// picks it up.
func (h *Handler) ReprocessEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.BadRequest("invalid event ID", err))
		return
	}

	requeued, err := h.events.Requeue(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.Internal(err))
		return
	}
	if !requeued {
		respondError(c, apperrors.Conflict("event is not in a reprocessable state", nil))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
