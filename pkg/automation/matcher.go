package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sleng75/slimail/pkg/eventbus"
	"github.com/sleng75/slimail/pkg/events"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/protocol"
)

// TriggerMatcher maps inbound contact events to the active workflows whose
// trigger matches, decides (re-)enrollment eligibility, and creates
// enrollments at the workflow root.
type TriggerMatcher struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	contacts    protocol.ContactProvider
	bus         eventbus.EventPublisher
	now         func() time.Time
}

func NewTriggerMatcher(
	logger *slog.Logger,
	persist persistence.Persistence,
	contacts protocol.ContactProvider,
	bus eventbus.EventPublisher,
) *TriggerMatcher {
	return &TriggerMatcher{
		logger:      logger.With("module", "trigger_matcher"),
		persistence: persist,
		contacts:    contacts,
		bus:         bus,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Match returns the active workflows whose trigger type equals the event type
// and whose trigger config is satisfied by the event payload.
func (m *TriggerMatcher) Match(ctx context.Context, eventType models.TriggerType, payload map[string]any) ([]*models.Workflow, error) {
	active, err := m.persistence.WorkflowRepository().GetByStatus(ctx, models.WorkflowStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}

	matched := make([]*models.Workflow, 0)

	for _, workflow := range active {
		if workflow.TriggerType != eventType {
			continue
		}

		if triggerConfigMatches(workflow, payload) {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func triggerConfigMatches(workflow *models.Workflow, payload map[string]any) bool {
	switch workflow.TriggerType {
	case models.TriggerTypeListSubscription:
		return configKeyMatches(workflow.TriggerConfig, payload, "list_id")
	case models.TriggerTypeTagAdded, models.TriggerTypeTagRemoved:
		return configKeyMatches(workflow.TriggerConfig, payload, "tag_id")
	default:
		// manual and date_based carry no payload filter here; eligibility
		// and date matching are checked at enrollment time.
		return true
	}
}

func configKeyMatches(config, payload map[string]any, key string) bool {
	want, ok := config[key]
	if !ok {
		return false
	}

	return fmt.Sprintf("%v", want) == fmt.Sprintf("%v", payload[key])
}

// IsEligible reports whether the contact may be enrolled right now: the
// workflow must be active, no live enrollment may exist, and a prior terminal
// enrollment blocks re-entry unless the workflow allows it and the re-entry
// delay has elapsed since the terminal enrollment ended.
func (m *TriggerMatcher) IsEligible(ctx context.Context, workflow *models.Workflow, contactID string) error {
	if workflow.Status != models.WorkflowStatusActive {
		return fmt.Errorf("%w: workflow %s is %s", ErrNotEligible, workflow.ID, workflow.Status)
	}

	existing, err := m.persistence.EnrollmentRepository().FindByWorkflowAndContact(ctx, workflow.ID, contactID)
	if err != nil {
		return fmt.Errorf("failed to check existing enrollments: %w", err)
	}

	var latestEnded *time.Time

	for _, enrollment := range existing {
		if enrollment.IsLive() {
			return fmt.Errorf("%w: live enrollment %s exists", ErrNotEligible, enrollment.ID)
		}

		if enrollment.EndedAt != nil && (latestEnded == nil || enrollment.EndedAt.After(*latestEnded)) {
			latestEnded = enrollment.EndedAt
		}
	}

	if len(existing) > 0 {
		if !workflow.AllowReentry {
			return fmt.Errorf("%w: %s", ErrNotEligible, models.ExitReasonReentryBlocked)
		}

		if latestEnded != nil && m.now().Sub(*latestEnded) < workflow.ReentryDelay {
			return fmt.Errorf("%w: re-entry delay has not elapsed", ErrNotEligible)
		}
	}

	return nil
}

// Enroll creates an enrollment at the workflow root with status active and
// next_action_at now, or fails with ErrNotEligible.
func (m *TriggerMatcher) Enroll(ctx context.Context, workflow *models.Workflow, contactID, source string) (*models.Enrollment, error) {
	if err := m.IsEligible(ctx, workflow, contactID); err != nil {
		return nil, err
	}

	contact, err := m.contacts.GetContact(ctx, contactID)
	if err != nil {
		return nil, NewCollaboratorError("get_contact", err)
	}

	if contact.Status != models.ContactStatusSubscribed {
		return nil, fmt.Errorf("%w: contact is %s", ErrNotEligible, contact.Status)
	}

	now := m.now()
	enrollment := &models.Enrollment{
		WorkflowID:    workflow.ID,
		ContactID:     contactID,
		Status:        models.EnrollmentStatusActive,
		CurrentStepID: workflow.RootStepID,
		EnrolledAt:    now,
		NextActionAt:  &now,
		Source:        source,
	}

	if err := m.persistence.EnrollmentRepository().Create(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	delta := models.WorkflowCounters{TotalEnrolled: 1, Active: 1}
	if err := m.persistence.WorkflowRepository().IncrementCounters(ctx, workflow.ID, delta); err != nil {
		m.logger.Warn("Failed to update workflow counters",
			"workflow_id", workflow.ID, "error", err)
	}

	m.logger.Info("Contact enrolled",
		"workflow_id", workflow.ID,
		"enrollment_id", enrollment.ID,
		"contact_id", contactID,
		"source", source)

	if m.bus != nil {
		event := events.EnrollmentCreated{
			BaseEvent:    events.NewBaseEvent(events.EnrollmentCreatedEvent, workflow.TenantID),
			EnrollmentID: enrollment.ID,
			WorkflowID:   workflow.ID,
			ContactID:    contactID,
			Source:       source,
		}
		if err := m.bus.Publish(ctx, enrollment.ID, event); err != nil {
			m.logger.Warn("Failed to publish enrollment created event", "error", err)
		}
	}

	return enrollment, nil
}

// HandleContactEvent is the bus handler for inbound contact activity. Matched
// workflows get an enrollment attempt each; ineligible contacts are skipped.
func (m *TriggerMatcher) HandleContactEvent(ctx context.Context, event any) error {
	var (
		triggerType models.TriggerType
		contactID   string
		payload     map[string]any
		source      events.EventType
	)

	switch e := event.(type) {
	case *events.ContactSubscribedToList:
		triggerType = models.TriggerTypeListSubscription
		contactID = e.ContactID
		payload = map[string]any{"list_id": e.ListID}
		source = e.GetType()
	case *events.ContactTagAdded:
		triggerType = models.TriggerTypeTagAdded
		contactID = e.ContactID
		payload = map[string]any{"tag_id": e.TagID}
		source = e.GetType()
	case *events.ContactTagRemoved:
		triggerType = models.TriggerTypeTagRemoved
		contactID = e.ContactID
		payload = map[string]any{"tag_id": e.TagID}
		source = e.GetType()
	case *events.ContactUnsubscribed:
		return m.stopLiveEnrollments(ctx, e.ContactID)
	default:
		return nil
	}

	matched, err := m.Match(ctx, triggerType, payload)
	if err != nil {
		return err
	}

	for _, workflow := range matched {
		_, err := m.Enroll(ctx, workflow, contactID, string(source))
		if err != nil {
			if errors.Is(err, ErrNotEligible) {
				m.logger.Debug("Enrollment skipped",
					"workflow_id", workflow.ID, "contact_id", contactID, "reason", err)

				continue
			}

			m.logger.Error("Enrollment failed",
				"workflow_id", workflow.ID, "contact_id", contactID, "error", err)
		}
	}

	return nil
}

// stopLiveEnrollments flags every live enrollment of the contact for the
// processor to pick up. The processor re-reads the contact snapshot and exits
// with the unsubscribed reason.
func (m *TriggerMatcher) stopLiveEnrollments(ctx context.Context, contactID string) error {
	workflows, err := m.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	enrollmentRepo := m.persistence.EnrollmentRepository()

	for _, workflow := range workflows {
		enrollments, err := enrollmentRepo.FindByWorkflowAndContact(ctx, workflow.ID, contactID)
		if err != nil {
			return err
		}

		for _, enrollment := range enrollments {
			if !enrollment.IsLive() {
				continue
			}

			if err := enrollmentRepo.RequestStop(ctx, enrollment.ID); err != nil {
				m.logger.Error("Failed to flag enrollment for stop",
					"enrollment_id", enrollment.ID, "error", err)
			}
		}
	}

	return nil
}

// contactLister is the optional collaborator capability the daily date sweep
// needs. Providers that cannot enumerate contacts simply skip the sweep.
type contactLister interface {
	ListContactIDs(ctx context.Context) ([]string, error)
}

// DateSweep evaluates date_based triggers for every known contact. Intended
// to run once a day from the engine cron.
func (m *TriggerMatcher) DateSweep(ctx context.Context, today time.Time) error {
	matched, err := m.Match(ctx, models.TriggerTypeDateBased, nil)
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		return nil
	}

	lister, ok := m.contacts.(contactLister)
	if !ok {
		m.logger.Debug("Contact provider cannot enumerate contacts, skipping date sweep")

		return nil
	}

	contactIDs, err := lister.ListContactIDs(ctx)
	if err != nil {
		return NewCollaboratorError("list_contacts", err)
	}

	for _, contactID := range contactIDs {
		contact, err := m.contacts.GetContact(ctx, contactID)
		if err != nil {
			m.logger.Warn("Failed to load contact during date sweep",
				"contact_id", contactID, "error", err)

			continue
		}

		for _, workflow := range matched {
			if !dateTriggerMatches(contact, workflow.TriggerConfig, today) {
				continue
			}

			_, err := m.Enroll(ctx, workflow, contactID, "date_sweep")
			if err != nil && !errors.Is(err, ErrNotEligible) {
				m.logger.Error("Date sweep enrollment failed",
					"workflow_id", workflow.ID, "contact_id", contactID, "error", err)
			}
		}
	}

	return nil
}

// dateTriggerMatches applies anniversary semantics: the configured contact
// date field, shifted by offset_days, falls on today's month and day.
func dateTriggerMatches(contact *models.ContactSnapshot, config map[string]any, today time.Time) bool {
	field, _ := config["field"].(string)
	if field == "" {
		field = "created_at"
	}

	var base time.Time

	if field == "created_at" {
		base = contact.CreatedAt
	} else {
		raw, ok := contact.Attributes[field]
		if !ok {
			return false
		}

		parsed, err := parseDate(raw)
		if err != nil {
			return false
		}

		base = parsed
	}

	offsetDays := 0
	if raw, ok := config["offset_days"]; ok {
		switch v := raw.(type) {
		case float64:
			offsetDays = int(v)
		case int:
			offsetDays = v
		}
	}

	target := base.AddDate(0, 0, offsetDays)

	return target.Month() == today.Month() && target.Day() == today.Day()
}

func parseDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return parsed, nil
		}

		return time.Parse("2006-01-02", v)
	default:
		return time.Time{}, fmt.Errorf("cannot interpret %T as a date", value)
	}
}
