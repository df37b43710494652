package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obexdata/warehouse-copilot/internal/audit"
	"github.com/obexdata/warehouse-copilot/internal/cubes"
	"github.com/obexdata/warehouse-copilot/internal/guard"
	"github.com/obexdata/warehouse-copilot/internal/llm"
	"github.com/obexdata/warehouse-copilot/internal/partition"
	"github.com/obexdata/warehouse-copilot/internal/pipeline"
	"github.com/obexdata/warehouse-copilot/internal/server"
	"github.com/obexdata/warehouse-copilot/internal/session"
	"github.com/obexdata/warehouse-copilot/internal/viz"
	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

const (
	testAPIAddr = ":8091"
	testBaseURL = "http://localhost:8091"
	testAPIKey  = "test-api-key-integration"
)

// fixedGen answers every prompt by marker so the integration test runs
// without a live model.
type fixedGen struct{}

func (fixedGen) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "intent classifier"):
		return `{"intent_type":"data_query"}`, nil
	case strings.Contains(prompt, "context resolution engine"):
		return `{"is_followup":false,"rewritten_query":"","confidence":0}`, nil
	case strings.Contains(prompt, "summarising query results"):
		return "There are 48,213 registered users.", nil
	default:
		return "SELECT COUNT(user_code) AS total_users FROM user_profile_360 WHERE ds = '{latest_ds}'", nil
	}
}

type fixedExec struct{}

func (fixedExec) Query(_ context.Context, _ string) (*warehouse.Table, error) {
	return &warehouse.Table{Columns: []string{"total_users"}, Rows: [][]any{{float64(48213)}}}, nil
}

type fixedProber struct{}

func (fixedProber) LatestPartition(_ context.Context) (string, error) { return "20260209", nil }

func setupIntegrationTest(t *testing.T) (*server.Server, *redis.Client, func()) {
	// Check if Redis is available
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   2, // Use different DB for integration tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	_ = redisClient.FlushDB(ctx).Err()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sessions, err := session.NewStore(redisClient)
	require.NoError(t, err)

	registry := cubes.Builtin()
	resolver := partition.NewResolver(fixedProber{}, logger).
		WithClock(clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)))

	var gen llm.Generator = fixedGen{}
	p := pipeline.New(pipeline.Options{
		Generator: gen,
		Guard:     guard.New(registry),
		Resolver:  resolver,
		Executor:  fixedExec{},
		Selector:  viz.NewSelector(gen, logger),
		Journal:   audit.Nop{},
		Registry:  registry,
		Logger:    logger,
	})

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{
			Pipeline: p,
			Resolver: resolver,
			Sessions: sessions,
			DevMode:  true,
			Logger:   logger,
		},
		Config: server.ServerConfig{
			Addr:    testAPIAddr,
			DevMode: true,
			APIKey:  testAPIKey,
		},
	})
	require.NoError(t, err)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			t.Logf("Server error: %v", err)
		}
	}()

	// Wait for server to be ready
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)
		_ = redisClient.FlushDB(ctx).Err()
		_ = redisClient.Close()
	}

	return srv, redisClient, cleanup
}

func makeRequest(t *testing.T, method, url string, body any, expectedStatus int) *http.Response {
	reqBody := &bytes.Buffer{}
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)

	assert.Equal(t, expectedStatus, resp.StatusCode, "Expected status %d, got %d", expectedStatus, resp.StatusCode)

	return resp
}

func TestIntegration_Health(t *testing.T) {
	_, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	resp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/health", nil, http.StatusOK)
	defer resp.Body.Close()

	var response server.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.True(t, response.OK)
}

func TestIntegration_Partition(t *testing.T) {
	_, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	resp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/partition", nil, http.StatusOK)
	defer resp.Body.Close()

	var response server.PartitionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.Equal(t, "20260209", response.LatestDS)
	assert.Equal(t, "2026-02-09", response.LatestDSDash)
	assert.Equal(t, "20260203", response.Start7D)
}

func TestIntegration_ChatStoresHistory(t *testing.T) {
	_, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	payload := map[string]any{"username": "analyst", "message": "how many users do we have"}
	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/chat", payload, http.StatusOK)
	defer resp.Body.Close()

	var chat server.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	assert.Equal(t, "success", chat.Type)
	assert.Contains(t, chat.SQL, "'20260209'")
	require.NotNil(t, chat.Data)
	assert.Equal(t, 1, chat.Data.RowCount())

	// both turns recorded
	hresp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/history/analyst", nil, http.StatusOK)
	defer hresp.Body.Close()

	var history struct {
		Items []session.Turn `json:"items"`
	}
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&history))
	require.Len(t, history.Items, 2)
	assert.Equal(t, "user", history.Items[0].Role)
	assert.Equal(t, "assistant", history.Items[1].Role)
}

func TestIntegration_DirectSQLIsGuarded(t *testing.T) {
	_, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	payload := map[string]any{"username": "analyst", "sql": "DROP TABLE user_profile_360"}
	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/sql", payload, http.StatusBadRequest)
	defer resp.Body.Close()

	var result pipeline.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "error", result.Type)
	assert.Contains(t, result.Message, "Security Block")
}

func TestIntegration_RequiresAPIKey(t *testing.T) {
	_, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, testBaseURL+"/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "wrong-key")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_HistoryClear(t *testing.T) {
	_, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	payload := map[string]any{"username": "analyst", "message": "how many users"}
	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/chat", payload, http.StatusOK)
	resp.Body.Close()

	dresp := makeRequest(t, http.MethodDelete, testBaseURL+"/v1/history/analyst", nil, http.StatusNoContent)
	dresp.Body.Close()

	hresp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/history/analyst", nil, http.StatusOK)
	defer hresp.Body.Close()

	var history struct {
		Items []session.Turn `json:"items"`
	}
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&history))
	assert.Empty(t, history.Items)
}
