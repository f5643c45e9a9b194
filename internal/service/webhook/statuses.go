package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/pkg/view"
)

// ApplyStatuses fans one batch of delivery receipts out to the three
// denormalized ledgers: the message ledger keyed by wamid, the campaign
// contact ledger, and the per-campaign aggregate counters. The three write
// groups are independent; a failure in one never blocks the others, and
// the caller gets the joined errors.
func (s *Service) ApplyStatuses(ctx context.Context, statuses []model.StatusEvent) error {
	if len(statuses) == 0 {
		return nil
	}

	wamids := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if st.ID == "" {
			continue
		}
		wamids = append(wamids, st.ID)
	}
	contacts, err := s.broadcasts.FindContactsByMessageIDs(ctx, wamids)
	if err != nil {
		return err
	}
	byWamid := make(map[string]*model.BroadcastContact, len(contacts))
	for _, c := range contacts {
		if c.MessageID != nil {
			byWamid[*c.MessageID] = c
		}
	}

	messageUpdates := make([]model.MessageStatusUpdate, 0, len(statuses))
	contactUpdates := make([]model.ContactStatusUpdate, 0, len(statuses))
	deltas := make(map[uuid.UUID]model.BroadcastCounterDelta)

	for _, st := range statuses {
		// A receipt without a wamid can key nothing.
		if st.ID == "" {
			continue
		}
		failed := strings.EqualFold(st.Status, "failed")

		var errText *string
		if failed {
			text := "Unknown Failure (Code: N/A)"
			if len(st.Errors) > 0 {
				text = st.Errors[0].String()
			}
			errText = &text
		}

		// The message ledger takes every receipt as-is; idempotence comes
		// from the wamid upsert and the per-status timestamp key.
		messageUpdates = append(messageUpdates, model.MessageStatusUpdate{
			WAMID:     st.ID,
			Status:    st.Status,
			Timestamp: st.Time(),
			Error:     errText,
		})

		contact, ok := byWamid[st.ID]
		if !ok {
			// Not a campaign message (e.g. a direct send): ledger-only.
			continue
		}

		if failed {
			if contact.Status == model.BroadcastContactStatusFailed {
				continue
			}
			delta := deltas[contact.BroadcastID]
			delta.Failed++
			if contact.Status == model.BroadcastContactStatusSent {
				// This send was already counted as a success; take it back.
				delta.Success--
			}
			deltas[contact.BroadcastID] = delta
			contactUpdates = append(contactUpdates, model.ContactStatusUpdate{
				ContactID: contact.ID,
				Status:    model.BroadcastContactStatusFailed,
				Error:     errText,
			})
			continue
		}

		next := model.BroadcastContactStatus(strings.ToUpper(st.Status))
		nextRank, rankedNext := next.Rank()
		curRank, rankedCur := contact.Status.Rank()
		// Forward-only: receipts never regress a contact, and contacts
		// outside the ranked progression (QUEUED, PROCESSING, FAILED) are
		// never moved by a receipt.
		if !rankedNext || !rankedCur || nextRank <= curRank {
			continue
		}

		delta := deltas[contact.BroadcastID]
		switch next {
		case model.BroadcastContactStatusDelivered:
			delta.Delivered++
		case model.BroadcastContactStatusRead:
			delta.Read++
		}
		deltas[contact.BroadcastID] = delta
		contactUpdates = append(contactUpdates, model.ContactStatusUpdate{
			ContactID: contact.ID,
			Status:    next,
		})
	}

	var errs []error
	if err := s.messages.ApplyStatusUpdates(ctx, messageUpdates); err != nil {
		errs = append(errs, err)
	}
	if len(contactUpdates) > 0 {
		if err := s.broadcasts.ApplyContactUpdates(ctx, contactUpdates); err != nil {
			errs = append(errs, err)
		}
	}
	if len(deltas) > 0 {
		if err := s.broadcasts.IncrementCounters(ctx, deltas); err != nil {
			errs = append(errs, err)
		}
	}

	s.views.Invalidate(ctx, view.Chat)
	if len(contactUpdates) > 0 || len(deltas) > 0 {
		s.views.Invalidate(ctx, view.Broadcasts, view.BroadcastDetail)
	}
	return errors.Join(errs...)
}
