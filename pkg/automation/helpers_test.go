package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/persistence/file"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/registry"
	"github.com/sleng75/slimail/pkg/steps"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a mutable clock wired into the matcher and processor via their
// now fields.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fakeContacts struct {
	mu       sync.Mutex
	contacts map[string]*models.ContactSnapshot
	getErr   error
}

func newFakeContacts(contacts ...*models.ContactSnapshot) *fakeContacts {
	byID := make(map[string]*models.ContactSnapshot, len(contacts))
	for _, contact := range contacts {
		byID[contact.ID] = contact
	}

	return &fakeContacts{contacts: byID}
}

func (f *fakeContacts) GetContact(_ context.Context, contactID string) (*models.ContactSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	contact, ok := f.contacts[contactID]
	if !ok {
		return nil, fmt.Errorf("contact %s not found", contactID)
	}

	return contact, nil
}

func (f *fakeContacts) ListContactIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.contacts))
	for id := range f.contacts {
		ids = append(ids, id)
	}

	return ids, nil
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string // subjects, in send order
	err  error
}

func (f *fakeEmail) Send(_ context.Context, _ *models.ContactSnapshot, subject, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	f.sent = append(f.sent, subject)

	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeEmail) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.sent...)
}

type fakeMutator struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeMutator) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, op)

	return nil
}

func (f *fakeMutator) AddTag(_ context.Context, contactID, tagID string) error {
	return f.record("add_tag:" + contactID + ":" + tagID)
}

func (f *fakeMutator) RemoveTag(_ context.Context, contactID, tagID string) error {
	return f.record("remove_tag:" + contactID + ":" + tagID)
}

func (f *fakeMutator) AddToList(_ context.Context, contactID, listID string) error {
	return f.record("add_to_list:" + contactID + ":" + listID)
}

func (f *fakeMutator) RemoveFromList(_ context.Context, contactID, listID string) error {
	return f.record("remove_from_list:" + contactID + ":" + listID)
}

func (f *fakeMutator) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ops...)
}

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry(testLogger())
	steps.RegisterDefaults(reg)

	return reg
}

func newTestProcessor(
	t *testing.T,
	persist persistence.Persistence,
	contacts *fakeContacts,
	email *fakeEmail,
	mutator *fakeMutator,
	clock *testClock,
) *EnrollmentProcessor {
	t.Helper()

	processor := NewEnrollmentProcessor(testLogger(), persist, testRegistry(), protocol.Collaborators{
		Contacts: contacts,
		Email:    email,
		Mutator:  mutator,
	}, nil, ProcessorConfig{WorkerID: "test-worker"})

	if clock != nil {
		processor.now = clock.Now
	}

	return processor
}

func newTestMatcher(t *testing.T, persist persistence.Persistence, contacts *fakeContacts, clock *testClock) *TriggerMatcher {
	t.Helper()

	matcher := NewTriggerMatcher(testLogger(), persist, contacts, nil)

	if clock != nil {
		matcher.now = clock.Now
	}

	return matcher
}

func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func subscribedContact(id string, tags ...string) *models.ContactSnapshot {
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}

	return &models.ContactSnapshot{
		ID:        id,
		Email:     id + "@example.com",
		Status:    models.ContactStatusSubscribed,
		Tags:      tagSet,
		CreatedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func saveWorkflow(t *testing.T, persist persistence.Persistence, workflow *models.Workflow) {
	t.Helper()

	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))
}

func createEnrollment(t *testing.T, persist persistence.Persistence, enrollment *models.Enrollment) {
	t.Helper()

	require.NoError(t, persist.EnrollmentRepository().Create(context.Background(), enrollment))
}

func reloadEnrollment(t *testing.T, persist persistence.Persistence, id string) *models.Enrollment {
	t.Helper()

	enrollment, err := persist.EnrollmentRepository().GetByID(context.Background(), id)
	require.NoError(t, err)

	return enrollment
}

func listActivity(t *testing.T, persist persistence.Persistence, enrollmentID string) []*models.ActivityLogEntry {
	t.Helper()

	entries, err := persist.ActivityLogRepository().ListByEnrollment(context.Background(), enrollmentID)
	require.NoError(t, err)

	return entries
}

var errSendTimeout = errors.New("smtp connection timed out")
