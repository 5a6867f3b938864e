package di

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"branchpost/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:        "test",
		StorageBackend:     backend,
		SQLitePath:         filepath.Join(t.TempDir(), "branchpost.db"),
		AWSRegion:          "us-west-2",
		DispatchMode:       config.DispatchInProcess,
		MaxConcurrentJobs:  2,
		JobTimeout:         10 * time.Second,
		StepBudget:         50,
		LogLevel:           "error",
		RateLimitPerMinute: 0,
		EnableMetrics:      true,
	}
}

type apiClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func newAPIClient(t *testing.T, backend string) *apiClient {
	t.Helper()
	container, cleanup, err := InitializeContainer(context.Background(), testConfig(t, backend))
	require.NoError(t, err)

	server := httptest.NewServer(container.Router.Setup())
	t.Cleanup(func() {
		server.Close()
		cleanup()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiClient{t: t, server: server, client: &http.Client{Jar: jar}}
}

func (c *apiClient) do(method, path string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		require.NoError(c.t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func (c *apiClient) waitForJob(jobID string) map[string]interface{} {
	c.t.Helper()
	var job map[string]interface{}
	require.Eventually(c.t, func() bool {
		status, body := c.do(http.MethodGet, "/api/jobs/"+jobID, nil)
		if status != http.StatusOK {
			return false
		}
		job = body
		return body["status"] == "completed" || body["status"] == "failed"
	}, 5*time.Second, 20*time.Millisecond)
	return job
}

func TestGenerationJobEndToEnd(t *testing.T) {
	for _, backend := range []string{config.StorageMemory, config.StorageSQLite} {
		t.Run(backend, func(t *testing.T) {
			api := newAPIClient(t, backend)

			status, created := api.do(http.MethodPost, "/api/posts/create", map[string]string{"topic": "cold brew coffee"})
			require.Equal(t, http.StatusAccepted, status)
			jobID, _ := created["job_id"].(string)
			require.NotEmpty(t, jobID)
			assert.Contains(t, []interface{}{"pending", "processing", "completed"}, created["status"])

			job := api.waitForJob(jobID)
			require.Equal(t, "completed", job["status"], "job error: %v", job["error"])
			treeID, _ := job["tree_id"].(string)
			require.NotEmpty(t, treeID)

			status, tree := api.do(http.MethodGet, "/api/posts/"+treeID+"/complete", nil)
			require.Equal(t, http.StatusOK, status)
			root, ok := tree["root"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, true, root["is_root"])

			status, node := api.do(http.MethodGet, "/api/nodes/"+root["id"].(string), nil)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, root["content"], node["content"])

			status, list := api.do(http.MethodGet, "/api/posts?limit=10", nil)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, true, list["success"])
			items, _ := list["data"].([]interface{})
			assert.Len(t, items, 1)

			status, _ = api.do(http.MethodDelete, "/api/jobs/"+jobID, nil)
			assert.Equal(t, http.StatusConflict, status, "finished jobs cannot be cancelled")
		})
	}
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	api := newAPIClient(t, config.StorageMemory)

	status, body := api.do(http.MethodPost, "/api/posts/create", map[string]string{"topic": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", body["type"])

	status, _ = api.do(http.MethodPost, "/api/posts/create", map[string]string{"subject": "coffee"})
	assert.Equal(t, http.StatusBadRequest, status, "unknown fields are rejected")

	status, body = api.do(http.MethodGet, "/api/jobs/"+"00000000-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["type"])

	status, _ = api.do(http.MethodGet, "/api/posts/missing/complete", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSessionCookieIsMintedOnce(t *testing.T) {
	api := newAPIClient(t, config.StorageMemory)

	api.do(http.MethodPost, "/api/posts/create", map[string]string{"topic": "tea"})
	cookies := api.client.Jar.Cookies(mustURL(t, api.server.URL))
	require.Len(t, cookies, 1)
	first := cookies[0].Value

	api.do(http.MethodPost, "/api/posts/create", map[string]string{"topic": "cake"})
	cookies = api.client.Jar.Cookies(mustURL(t, api.server.URL))
	require.Len(t, cookies, 1)
	assert.Equal(t, first, cookies[0].Value)
}

func TestInteractiveRunOverHTTP(t *testing.T) {
	api := newAPIClient(t, config.StorageMemory)

	status, outcome := api.do(http.MethodPost, "/api/runs", map[string]string{"message": "sourdough"})
	require.Equal(t, http.StatusCreated, status)
	runID := outcome["run_id"].(string)
	require.Equal(t, true, outcome["waiting_for_choice"])
	offered := outcome["offered_options"].([]interface{})
	require.NotEmpty(t, offered)

	status, _ = api.do(http.MethodPost, "/api/runs/"+runID+"/choice", map[string]string{"option": "not offered"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, outcome = api.do(http.MethodPost, "/api/runs/"+runID+"/choice", map[string]string{"option": offered[0].(string)})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, outcome["tree_id"])
	assert.Equal(t, false, outcome["waiting_for_choice"])

	status, run := api.do(http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, offered[0], run["chosen_path"])

	status, _ = api.do(http.MethodPost, "/api/runs/"+runID+"/choice", map[string]string{"option": offered[0].(string)})
	assert.Equal(t, http.StatusConflict, status)
}

func TestRunMessagesRequireAnExistingRun(t *testing.T) {
	api := newAPIClient(t, config.StorageMemory)

	status, body := api.do(http.MethodPost, "/api/runs/not-a-uuid/messages", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", body["type"])

	unknown := "4cf6736f-2f0e-4c1a-9a38-0f0b5d2d7a11"
	status, body = api.do(http.MethodPost, "/api/runs/"+unknown+"/messages", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["type"])

	status, _ = api.do(http.MethodGet, "/api/runs/"+unknown, nil)
	assert.Equal(t, http.StatusNotFound, status, "the rejected message did not create a run")

	status, outcome := api.do(http.MethodPost, "/api/runs", map[string]string{"message": "sourdough"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = api.do(http.MethodPost, "/api/runs/"+outcome["run_id"].(string)+"/messages", map[string]string{"message": "tell me more"})
	assert.Equal(t, http.StatusOK, status)
}

func TestOperationalEndpoints(t *testing.T) {
	api := newAPIClient(t, config.StorageSQLite)

	status, _ := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, status)

	resp, err := api.client.Get(api.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "branchpost_http_requests_total")
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
