package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/pkg/view"
)

// qualityFromEvent maps a quality-update event name onto the provider's
// traffic-light rating by substring, since the provider emits variants
// like FLAGGED, AGE_RESTRICTED_FLAGGED and UPGRADE_GREEN.
func qualityFromEvent(event string) string {
	e := strings.ToUpper(event)
	switch {
	case strings.Contains(e, "FLAGGED"):
		return "RED"
	case strings.Contains(e, "WARNED"):
		return "YELLOW"
	case strings.Contains(e, "GREEN"), strings.Contains(e, "ONBOARDING"):
		return "GREEN"
	default:
		return "UNKNOWN"
	}
}

// humanizeLimit renders a TIER_1K style messaging limit for notification
// text.
func humanizeLimit(limit string) string {
	if limit == "" {
		return "N/A"
	}
	return strings.ToLower(strings.ReplaceAll(limit, "_", " "))
}

func (s *Service) handleNumberQuality(ctx context.Context, project *model.Project, value model.ChangeValue) error {
	quality := qualityFromEvent(value.Event)

	rows, err := s.projects.UpdatePhoneNumberQuality(ctx, project.ID, value.DisplayPhoneNumber, quality, value.CurrentLimit)
	if err != nil {
		return err
	}
	if rows == 0 {
		s.logger.Warn("quality update for a phone number not on the project",
			"project_id", project.ID.String(), "display_phone_number", value.DisplayPhoneNumber)
		return nil
	}

	msg := fmt.Sprintf("Quality rating for %s changed to %s.", value.DisplayPhoneNumber, quality)
	if value.CurrentLimit != "" {
		msg = fmt.Sprintf("Quality rating for %s changed to %s. Messaging limit changed from %s to %s.",
			value.DisplayPhoneNumber, quality, humanizeLimit(value.OldLimit), humanizeLimit(value.CurrentLimit))
	}
	if err := s.notify(ctx, project, msg, "/dashboard/numbers", "phone_number_quality_update"); err != nil {
		return err
	}
	s.views.Invalidate(ctx, view.Numbers, view.Dashboard)

	if quality == "RED" {
		subject := fmt.Sprintf("Quality alert: %s is now RED", value.DisplayPhoneNumber)
		body := fmt.Sprintf("Phone number %s on project %q was flagged by the provider (event %s). Messaging limits may be reduced.",
			value.DisplayPhoneNumber, project.Name, value.Event)
		if err := s.email.SendAlert(ctx, subject, body); err != nil {
			s.logger.Error(err, "failed to send quality alert mail",
				"project_id", project.ID.String(), "display_phone_number", value.DisplayPhoneNumber)
		}
	}
	return nil
}

func (s *Service) handleNumberName(ctx context.Context, project *model.Project, value model.ChangeValue) error {
	name := value.NewVerifiedName
	if name == "" {
		name = value.RequestedVerifiedName
	}

	if strings.EqualFold(value.Decision, "APPROVED") {
		rows, err := s.projects.UpdatePhoneNumberVerifiedName(ctx, project.ID, value.DisplayPhoneNumber, name)
		if err != nil {
			return err
		}
		if rows == 0 {
			s.logger.Warn("name update for a phone number not on the project",
				"project_id", project.ID.String(), "display_phone_number", value.DisplayPhoneNumber)
			return nil
		}
		msg := fmt.Sprintf("Display name for %s was approved as %q.", value.DisplayPhoneNumber, name)
		if err := s.notify(ctx, project, msg, "/dashboard/numbers", "phone_number_name_update"); err != nil {
			return err
		}
		s.views.Invalidate(ctx, view.Numbers)
		return nil
	}

	msg := fmt.Sprintf("Display name request %q for %s was %s.", name, value.DisplayPhoneNumber, strings.ToLower(value.Decision))
	if value.RejectionReason != "" && !strings.EqualFold(value.RejectionReason, "NONE") {
		msg += fmt.Sprintf(" Reason: %s.", value.RejectionReason)
	}
	return s.notify(ctx, project, msg, "/dashboard/numbers", "phone_number_name_update")
}

func (s *Service) handleTemplateStatus(ctx context.Context, value model.ChangeValue) error {
	tmpl, err := s.templates.FindByMetaID(ctx, value.MessageTemplateID.String())
	if err != nil {
		return err
	}
	if tmpl == nil {
		s.logger.Warn("status update for unknown template",
			"meta_id", value.MessageTemplateID.String(), "name", value.MessageTemplateName)
		return nil
	}

	rows, err := s.templates.UpdateStatus(ctx, tmpl.ID, value.Event)
	if err != nil {
		return err
	}
	if rows == 0 {
		// Redelivered event, status already current: stay quiet.
		return nil
	}

	project, err := s.projects.FindByID(ctx, tmpl.ProjectID)
	if err != nil || project == nil {
		return err
	}
	msg := fmt.Sprintf("Template %q status changed to %s.", tmpl.Name, value.Event)
	if value.Reason != "" && !strings.EqualFold(value.Reason, "NONE") {
		msg += fmt.Sprintf(" Reason: %s.", value.Reason)
	}
	if err := s.notify(ctx, project, msg, "/dashboard/templates", "template_status_update"); err != nil {
		return err
	}
	s.views.Invalidate(ctx, view.Templates)
	return nil
}

func (s *Service) handleTemplateQuality(ctx context.Context, value model.ChangeValue) error {
	tmpl, err := s.templates.FindByMetaID(ctx, value.MessageTemplateID.String())
	if err != nil {
		return err
	}
	if tmpl == nil {
		s.logger.Warn("quality update for unknown template",
			"meta_id", value.MessageTemplateID.String(), "name", value.MessageTemplateName)
		return nil
	}

	rows, err := s.templates.UpdateQualityScore(ctx, tmpl.ID, value.NewQualityScore)
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	project, err := s.projects.FindByID(ctx, tmpl.ProjectID)
	if err != nil || project == nil {
		return err
	}
	msg := fmt.Sprintf("Template %q quality is now %s.", tmpl.Name, value.NewQualityScore)
	if err := s.notify(ctx, project, msg, "/dashboard/templates", "template_quality_update"); err != nil {
		return err
	}
	s.views.Invalidate(ctx, view.Templates)
	return nil
}

func (s *Service) handleAccountUpdate(ctx context.Context, wabaID string, value model.ChangeValue) error {
	if value.WABAInfo != nil && value.WABAInfo.WABAID != "" {
		wabaID = value.WABAInfo.WABAID
	}

	switch value.Event {
	case "PARTNER_ADDED":
		project, err := s.Resolve(ctx, wabaID, "")
		if err != nil {
			return err
		}
		if project == nil {
			s.Provision(ctx, wabaID)
			return nil
		}
		return s.notify(ctx, project,
			fmt.Sprintf("Account %s was re-shared with this application.", wabaID),
			"/dashboard", "account_update")

	case "PARTNER_REMOVED":
		project, err := s.Resolve(ctx, wabaID, "")
		if err != nil {
			return err
		}
		if project == nil {
			return nil
		}
		if err := s.notify(ctx, project,
			fmt.Sprintf("Access to account %s was revoked; project %q was removed.", wabaID, project.Name),
			"/dashboard", "account_update"); err != nil {
			return err
		}
		if err := s.projects.Delete(ctx, project.ID); err != nil {
			return err
		}
		s.projectCache.Delete(project.WABAID)
		s.views.Invalidate(ctx, view.Dashboard)
		return nil

	default:
		s.logger.Info("unhandled account update event", "event", value.Event, "waba_id", wabaID)
		return nil
	}
}

// handleInboundMessages stores user messages against the chat contact,
// incrementing the unread counter through the contact upsert. Each message
// is independent; one bad message does not drop the rest.
func (s *Service) handleInboundMessages(ctx context.Context, project *model.Project, value model.ChangeValue) error {
	namesByWaID := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		namesByWaID[c.WaID] = c.Profile.Name
	}
	var phoneNumberID string
	if value.Metadata != nil {
		phoneNumberID = value.Metadata.PhoneNumberID
	}

	var errs []error
	for _, msg := range value.Messages {
		name := namesByWaID[msg.From]
		if name == "" {
			name = msg.From
		}

		contact, err := s.chats.UpsertContact(ctx, &model.ChatContact{
			ProjectID:            project.ID,
			WaID:                 msg.From,
			Name:                 name,
			PhoneNumberID:        phoneNumberID,
			LastMessage:          msg.Preview(),
			LastMessageTimestamp: msg.Time(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.ID, err))
			continue
		}

		if err := s.chats.CreateIncomingMessage(ctx, &model.IncomingMessage{
			ProjectID:        project.ID,
			ContactID:        contact.ID,
			WAMID:            msg.ID,
			Type:             msg.Type,
			Content:          msg.Content(),
			MessageTimestamp: msg.Time(),
		}); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.ID, err))
			continue
		}

		if err := s.notify(ctx, project,
			fmt.Sprintf("New message from %s: %s", name, msg.Preview()),
			"/dashboard/chat", "message_received"); err != nil {
			errs = append(errs, err)
		}
	}

	if len(value.Messages) > 0 {
		s.views.Invalidate(ctx, view.Chat, view.Contacts)
	}
	return errors.Join(errs...)
}
