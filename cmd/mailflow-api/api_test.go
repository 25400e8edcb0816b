package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/registry"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/dukex/mailflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	logger := testutil.Logger()
	p := memory.NewPersistence()

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaultNodes())

	signer, err := compliance.NewSigner("secret", "https://mail.test/unsubscribe")
	require.NoError(t, err)

	api := NewAPI(
		logger,
		p,
		reg,
		enrollment.NewDispatcher(p, logger),
		deliverability.NewGate(p, logger),
		signer,
	)

	return api.App(), p
}

func request(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, body := request(t, app, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mailflow API", string(body))
}

func TestAPI_Probes(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		resp, _ := request(t, app, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPI_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	require.NoError(t, p.Contacts().Save(context.Background(), testutil.TestContact()))

	definition := testutil.WelcomeSeries()
	definition.ID = ""
	definition.IsActive = false

	resp, body := request(t, app, http.MethodPost, "/workflows", definition)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	resp, _ = request(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/enroll", web.EnrollRequest{ContactID: "contact-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = request(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = request(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/enroll/bulk", web.BulkEnrollRequest{ContactIDs: []string{"contact-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result enrollment.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.Enrolled)

	resp, body = request(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats web.StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(1), stats.Executions[models.ExecutionPending])
}
