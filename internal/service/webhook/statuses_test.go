package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/pkg/view"
)

func addContact(env *testEnv, broadcastID uuid.UUID, wamid string, status model.BroadcastContactStatus) *model.BroadcastContact {
	contact := &model.BroadcastContact{
		ID:          uuid.New(),
		BroadcastID: broadcastID,
		Phone:       "15550001111",
		MessageID:   &wamid,
		Status:      status,
	}
	env.broadcasts.contacts = append(env.broadcasts.contacts, contact)
	return contact
}

func receipt(wamid, status string) model.StatusEvent {
	return model.StatusEvent{ID: wamid, Status: status, Timestamp: "1700000000"}
}

func TestApplyStatusesLedgerOnlyForUnknownWamid(t *testing.T) {
	env := newTestEnv(Config{})

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{receipt("wamid-1", "delivered")})
	require.NoError(t, err)

	rec := env.messages.records["wamid-1"]
	require.NotNil(t, rec)
	assert.Equal(t, "delivered", rec.Status)
	assert.Contains(t, rec.StatusTimestamps, "delivered")

	assert.Empty(t, env.broadcasts.counters)
	assert.Contains(t, env.views.views, view.Chat)
	assert.NotContains(t, env.views.views, view.Broadcasts)
}

func TestApplyStatusesProgressionAndCounters(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	contact := addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusSent)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{receipt("wamid-1", "delivered")})
	require.NoError(t, err)

	assert.Equal(t, model.BroadcastContactStatusDelivered, contact.Status)
	assert.Equal(t, model.BroadcastCounterDelta{Delivered: 1}, env.broadcasts.counters[broadcastID])
	assert.Contains(t, env.views.views, view.Broadcasts)
	assert.Contains(t, env.views.views, view.BroadcastDetail)
}

func TestApplyStatusesIdempotentAcrossCycles(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusSent)

	events := []model.StatusEvent{receipt("wamid-1", "delivered")}
	require.NoError(t, env.svc.ApplyStatuses(context.Background(), events))
	// Redelivered receipt: the contact already progressed, so the guard
	// suppresses both the update and the counter increment.
	require.NoError(t, env.svc.ApplyStatuses(context.Background(), events))

	assert.Equal(t, model.BroadcastCounterDelta{Delivered: 1}, env.broadcasts.counters[broadcastID])
	assert.Equal(t, "delivered", env.messages.records["wamid-1"].Status)
}

func TestApplyStatusesNeverRegresses(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	read := addContact(env, broadcastID, "wamid-read", model.BroadcastContactStatusRead)
	queued := addContact(env, broadcastID, "wamid-queued", model.BroadcastContactStatusQueued)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{
		receipt("wamid-read", "delivered"),
		receipt("wamid-queued", "delivered"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.BroadcastContactStatusRead, read.Status)
	// Contacts outside the ranked progression are never moved by receipts.
	assert.Equal(t, model.BroadcastContactStatusQueued, queued.Status)
	assert.Empty(t, env.broadcasts.counters)
}

func TestApplyStatusesFailedOverride(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	contact := addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusRead)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{{
		ID:        "wamid-1",
		Status:    "failed",
		Timestamp: "1700000000",
		Errors:    []model.StatusError{{Code: 131026, Title: "Undeliverable", Details: "recipient opted out"}},
	}})
	require.NoError(t, err)

	// FAILED overrides even a READ contact.
	assert.Equal(t, model.BroadcastContactStatusFailed, contact.Status)
	require.NotNil(t, contact.Error)
	assert.Equal(t, "Undeliverable (Code: 131026): recipient opted out", *contact.Error)
	assert.Equal(t, model.BroadcastCounterDelta{Failed: 1}, env.broadcasts.counters[broadcastID])
}

func TestApplyStatusesFailedWithoutDetails(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	contact := addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusPending)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{receipt("wamid-1", "failed")})
	require.NoError(t, err)

	require.NotNil(t, contact.Error)
	assert.Equal(t, "Unknown Failure (Code: N/A)", *contact.Error)
}

func TestApplyStatusesSentToFailedReversesSuccess(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusSent)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{receipt("wamid-1", "failed")})
	require.NoError(t, err)

	assert.Equal(t, model.BroadcastCounterDelta{Failed: 1, Success: -1}, env.broadcasts.counters[broadcastID])
}

func TestApplyStatusesFailedIsTerminal(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	contact := addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusFailed)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{
		receipt("wamid-1", "delivered"),
		receipt("wamid-1", "failed"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.BroadcastContactStatusFailed, contact.Status)
	assert.Empty(t, env.broadcasts.counters)
}

func TestApplyStatusesDuplicatesInOneBatchEachCount(t *testing.T) {
	env := newTestEnv(Config{})
	broadcastID := uuid.New()
	addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusSent)

	// Within one batch the contact snapshot does not move, so repeated
	// receipts each pass the guard. Counters only ever increase.
	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{
		receipt("wamid-1", "delivered"),
		receipt("wamid-1", "delivered"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.BroadcastCounterDelta{Delivered: 2}, env.broadcasts.counters[broadcastID])
}

func TestApplyStatusesSkipsBlankWamid(t *testing.T) {
	env := newTestEnv(Config{})

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{
		{ID: "", Status: "delivered", Timestamp: "1700000000"},
		receipt("wamid-1", "delivered"),
	})
	require.NoError(t, err)

	assert.NotContains(t, env.messages.records, "")
	assert.Contains(t, env.messages.records, "wamid-1")
}

func TestApplyStatusesWriteGroupsAreIndependent(t *testing.T) {
	env := newTestEnv(Config{})
	env.messages.applyErr = errors.New("message ledger down")
	broadcastID := uuid.New()
	contact := addContact(env, broadcastID, "wamid-1", model.BroadcastContactStatusSent)

	err := env.svc.ApplyStatuses(context.Background(), []model.StatusEvent{receipt("wamid-1", "delivered")})
	require.Error(t, err)

	// The contact ledger and counters were still written.
	assert.Equal(t, model.BroadcastContactStatusDelivered, contact.Status)
	assert.Equal(t, model.BroadcastCounterDelta{Delivered: 1}, env.broadcasts.counters[broadcastID])
}
