package webhook

import (
	"context"
	"fmt"

	"github.com/jwalitptl/waba-sync/internal/model"
)

// autoProvisionFields is the closed set of change fields allowed to create
// a project on first contact. Account lifecycle events are excluded on
// purpose: a PARTNER_REMOVED for an unknown account must not create one.
var autoProvisionFields = map[string]bool{
	model.FieldMessages:                     true,
	model.FieldPhoneNumberQualityUpdate:     true,
	model.FieldPhoneNumberNameUpdate:        true,
	model.FieldMessageTemplateQualityUpdate: true,
	model.FieldMessageTemplateStatusUpdate:  true,
	model.FieldTemplateStatusUpdate:         true,
}

// Resolve looks up the project for a WABA ID (or, failing that, one of its
// phone number IDs). Hits are cached by WABA ID; a nil project with a nil
// error means the tenant is simply unknown.
func (s *Service) Resolve(ctx context.Context, wabaID, phoneNumberID string) (*model.Project, error) {
	if cached, ok := s.projectCache.Get(wabaID); ok {
		return cached.(*model.Project), nil
	}

	project, err := s.projects.FindByWABAOrPhoneNumberID(ctx, wabaID, phoneNumberID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project: %w", err)
	}
	if project != nil {
		s.projectCache.SetDefault(project.WABAID, project)
	}
	return project, nil
}

// Provision creates a tenant for a WABA seen for the first time, pulling
// its name and channel numbers from the Graph API with the system-user
// credential. Best effort only: any failure logs, counts, and returns nil
// so the triggering event completes without the project.
func (s *Service) Provision(ctx context.Context, wabaID string) *model.Project {
	if s.cfg.SystemUserToken == "" {
		s.logger.Debug("auto-provisioning disabled, no system user token", "waba_id", wabaID)
		return nil
	}

	account, err := s.meta.GetAccountDetails(ctx, wabaID)
	if err != nil {
		s.metrics.ProvisionFailures.Inc()
		s.logger.Error(err, "failed to fetch account details for auto-provisioning", "waba_id", wabaID)
		return nil
	}
	numbers, err := s.meta.ListPhoneNumbers(ctx, wabaID)
	if err != nil {
		s.metrics.ProvisionFailures.Inc()
		s.logger.Error(err, "failed to fetch phone numbers for auto-provisioning", "waba_id", wabaID)
		return nil
	}

	name := account.Name
	if name == "" {
		name = "Project " + wabaID
	}

	project, err := s.projects.Upsert(ctx, &model.Project{
		Name:              name,
		WABAID:            wabaID,
		AccessToken:       s.cfg.SystemUserToken,
		ReviewStatus:      "ACTIVE",
		MessagesPerSecond: 80,
		PhoneNumbers:      numbers,
	})
	if err != nil {
		s.metrics.ProvisionFailures.Inc()
		s.logger.Error(err, "failed to upsert auto-provisioned project", "waba_id", wabaID)
		return nil
	}

	s.metrics.ProjectsProvisioned.Inc()
	s.logger.Info("auto-provisioned project from webhook event",
		"waba_id", wabaID, "project_id", project.ID.String(), "name", project.Name)

	msg := fmt.Sprintf("New project '%s' was automatically created from a webhook event.", project.Name)
	if err := s.notify(ctx, project, msg, "/dashboard", "project_auto_created"); err != nil {
		s.logger.Error(err, "failed to record auto-provision notification", "waba_id", wabaID)
	}

	s.projectCache.SetDefault(project.WABAID, project)
	return project
}
