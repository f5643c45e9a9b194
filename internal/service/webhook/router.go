package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/waba-sync/internal/model"
)

// Route dispatches one decoded webhook payload. Delivery receipts are
// fanned out to the ledgers whatever the change's field, and the field
// handler still runs afterwards; only the inbound-message arm is skipped
// for a change carrying receipts, since the provider tags receipt
// deliveries with the messages field. Unknown change fields are logged and
// dropped; routing continues across changes so a single bad change does
// not hide the rest.
func (s *Service) Route(ctx context.Context, payload *model.WebhookPayload) error {
	if payload.Object != model.ObjectWhatsAppBusinessAccount {
		s.logger.Warn("ignoring webhook for unexpected object", "object", payload.Object)
		return nil
	}

	var errs []error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if err := s.routeChange(ctx, entry.ID, change); err != nil {
				errs = append(errs, fmt.Errorf("change %q: %w", change.Field, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) routeChange(ctx context.Context, wabaID string, change model.Change) error {
	s.metrics.EventsByField.WithLabelValues(change.Field).Inc()

	var errs []error
	if len(change.Value.Statuses) > 0 {
		if err := s.ApplyStatuses(ctx, change.Value.Statuses); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.dispatchField(ctx, wabaID, change); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) dispatchField(ctx context.Context, wabaID string, change model.Change) error {
	switch change.Field {
	case model.FieldMessages:
		if len(change.Value.Statuses) > 0 {
			// Receipt delivery, not an inbound message.
			return nil
		}
		project, err := s.resolveProject(ctx, wabaID, change)
		if err != nil || project == nil {
			return err
		}
		return s.handleInboundMessages(ctx, project, change.Value)

	case model.FieldPhoneNumberQualityUpdate:
		project, err := s.resolveProject(ctx, wabaID, change)
		if err != nil || project == nil {
			return err
		}
		return s.handleNumberQuality(ctx, project, change.Value)

	case model.FieldPhoneNumberNameUpdate:
		project, err := s.resolveProject(ctx, wabaID, change)
		if err != nil || project == nil {
			return err
		}
		return s.handleNumberName(ctx, project, change.Value)

	case model.FieldTemplateStatusUpdate, model.FieldMessageTemplateStatusUpdate:
		// Template events carry no usable account reference; the owning
		// project comes from the template row itself.
		return s.handleTemplateStatus(ctx, change.Value)

	case model.FieldMessageTemplateQualityUpdate:
		return s.handleTemplateQuality(ctx, change.Value)

	case model.FieldAccountUpdate:
		return s.handleAccountUpdate(ctx, wabaID, change.Value)

	default:
		s.logger.Info("no handler for webhook change field", "field", change.Field, "waba_id", wabaID)
		return nil
	}
}

// resolveProject finds the tenant for a change, consulting the cache first
// and auto-provisioning when the change's field permits it. A missing
// project is not an error: the caller skips the change.
func (s *Service) resolveProject(ctx context.Context, wabaID string, change model.Change) (*model.Project, error) {
	var phoneNumberID string
	if change.Value.Metadata != nil {
		phoneNumberID = change.Value.Metadata.PhoneNumberID
	}

	project, err := s.Resolve(ctx, wabaID, phoneNumberID)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	if !autoProvisionFields[change.Field] {
		s.logger.Warn("no project for webhook change, field not provisionable",
			"waba_id", wabaID, "field", change.Field)
		return nil, nil
	}
	return s.Provision(ctx, wabaID), nil
}
