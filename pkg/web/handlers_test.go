package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sleng75/slimail/pkg/automation"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence/file"
	"github.com/sleng75/slimail/pkg/registry"
	"github.com/sleng75/slimail/pkg/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContacts struct{}

func (stubContacts) GetContact(_ context.Context, contactID string) (*models.ContactSnapshot, error) {
	return &models.ContactSnapshot{
		ID:        contactID,
		Email:     contactID + "@example.com",
		Status:    models.ContactStatusSubscribed,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	steps.RegisterDefaults(reg)

	service := automation.NewWorkflowService(logger, persist, reg)
	matcher := automation.NewTriggerMatcher(logger, persist, stubContacts{}, nil)
	handlers := NewAPIHandlers(service, matcher, persist, reg, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/pause", handlers.PauseWorkflow)
	w.Post("/:id/archive", handlers.ArchiveWorkflow)
	w.Post("/:id/enrollments", handlers.EnrollContact)

	e := app.Group("/enrollments")
	e.Get("/:id", handlers.GetEnrollment)
	e.Post("/:id/stop", handlers.StopEnrollment)
	e.Get("/:id/activity", handlers.GetEnrollmentActivity)

	return app
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer

	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func createPayload() map[string]any {
	return map[string]any{
		"tenant_id":    "tenant-1",
		"name":         "Welcome series",
		"trigger_type": "manual",
		"root_step_id": "tag1",
		"steps": []map[string]any{
			{"id": "tag1", "type": "add_tag", "config": map[string]any{"tag_id": "welcomed"}},
		},
	}
}

func createTestWorkflow(t *testing.T, app *fiber.App) models.Workflow {
	t.Helper()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/workflows", createPayload()))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow

	decodeJSON(t, resp, &workflow)

	return workflow
}

func TestCreateWorkflow(t *testing.T) {
	app := newTestApp(t)

	workflow := createTestWorkflow(t, app)

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
}

func TestCreateWorkflowRejectsInvalidBody(t *testing.T) {
	app := newTestApp(t)

	payload := createPayload()
	delete(payload, "name")

	resp, err := app.Test(jsonRequest(http.MethodPost, "/workflows", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflowRejectsInvalidStepConfig(t *testing.T) {
	app := newTestApp(t)

	payload := createPayload()
	payload["steps"] = []map[string]any{
		{"id": "tag1", "type": "add_tag", "config": map[string]any{}},
	}

	resp, err := app.Test(jsonRequest(http.MethodPost, "/workflows", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowNotFound(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(jsonRequest(http.MethodGet, "/workflows/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLifecycleEndpoints(t *testing.T) {
	app := newTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var activated models.Workflow

	decodeJSON(t, resp, &activated)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/workflows/"+workflow.ID+"/archive", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// archived is terminal
	resp, err = app.Test(jsonRequest(http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestManualEnrollmentFlow(t *testing.T) {
	app := newTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/workflows/"+workflow.ID+"/enrollments", map[string]any{"contact_id": "c1"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var enrollment models.Enrollment

	decodeJSON(t, resp, &enrollment)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	// a live enrollment blocks a second attempt
	resp, err = app.Test(jsonRequest(http.MethodPost, "/workflows/"+workflow.ID+"/enrollments", map[string]any{"contact_id": "c1"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/enrollments/"+enrollment.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/enrollments/"+enrollment.ID+"/stop", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/enrollments/"+enrollment.ID+"/activity", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeleteWorkflow(t *testing.T) {
	app := newTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, err := app.Test(jsonRequest(http.MethodDelete, "/workflows/"+workflow.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/workflows/"+workflow.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
