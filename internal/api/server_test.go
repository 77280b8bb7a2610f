package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories/memory"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
	"github.com/linkflow-ai/scriptflow/internal/pkg/crypto"
	"github.com/linkflow-ai/scriptflow/internal/pkg/queue"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
	"github.com/linkflow-ai/scriptflow/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.WorkflowExecutionPayload
}

func (e *recordingEnqueuer) EnqueueWorkflowExecution(_ context.Context, p queue.WorkflowExecutionPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, p)
	return nil
}

func (e *recordingEnqueuer) RequeueWorkflowExecution(ctx context.Context, p queue.WorkflowExecutionPayload) (bool, error) {
	return true, e.EnqueueWorkflowExecution(ctx, p)
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.payloads)
}

type noopCanceller struct{}

func (noopCanceller) SignalCancel(context.Context, uuid.UUID) error { return nil }

type fixedCounter struct {
	allow bool
}

func (c fixedCounter) RateLimit(context.Context, string, int, time.Duration) (bool, int, error) {
	if c.allow {
		return true, 99, nil
	}
	return false, 0, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorData  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

type testServer struct {
	handler   http.Handler
	store     *memory.Store
	enqueuer  *recordingEnqueuer
	jwt       *crypto.JWTManager
	workspace *models.Workspace
	owner     uuid.UUID
	script    *models.Script
}

func newTestServer(t *testing.T, counter fixedCounter) *testServer {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	engine := config.EngineConfig{MinTriggersPerWorkflow: 1, MaxTriggersPerWorkflow: 3, MaxConcurrentExecutions: 5, MaxParallelNodes: 2}
	enqueuer := &recordingEnqueuer{}

	locks := services.NewWorkflowLocks()
	limits := services.NewLimitsService(store.Workspaces, &engine)
	executionSvc := services.NewExecutionService(store.Executions, store.ExecutionInputs, store.Workflows, store.Nodes, store.Edges, enqueuer, noopCanceller{})
	triggerSvc := services.NewTriggerService(store.Triggers, store.Workflows, limits, executionSvc, cron.NewCalculator(), locks)
	enc, err := crypto.NewEncryptor("test-key")
	require.NoError(t, err)

	svc := &Services{
		Workflow:   services.NewWorkflowService(store.Workflows, store.Nodes, store.Edges, triggerSvc, locks),
		Graph:      services.NewGraphService(store.Workflows, store.Nodes, store.Edges, store.Scripts, locks),
		Trigger:    triggerSvc,
		Execution:  executionSvc,
		Credential: services.NewCredentialService(store.Credentials, store.Variables, enc),
	}

	jwt := crypto.NewJWTManager(crypto.JWTConfig{Secret: "test-secret", AccessExpiry: time.Hour, Issuer: "scriptflow"})
	srv := NewServer(&config.Config{}, svc, Dependencies{
		Tokens:     jwt,
		Workspaces: store.Workspaces,
		Limiter:    counter,
	})

	owner := uuid.New()
	ws := &models.Workspace{ID: uuid.New(), OwnerID: owner, Name: "acme", Slug: "acme", PlanID: "free"}
	require.NoError(t, store.Workspaces.Create(ctx, ws))

	script := &models.Script{Name: "echo", Language: models.ScriptLanguageJavaScript, Source: "return inputs;"}
	require.NoError(t, store.Scripts.Create(ctx, script))

	return &testServer{
		handler:   srv.Router(),
		store:     store,
		enqueuer:  enqueuer,
		jwt:       jwt,
		workspace: ws,
		owner:     owner,
		script:    script,
	}
}

func (s *testServer) token(t *testing.T, user uuid.UUID, workspace *uuid.UUID) string {
	t.Helper()
	token, _, err := s.jwt.IssueToken(user, "alice", workspace)
	require.NoError(t, err)
	return token
}

func (s *testServer) path(suffix string) string {
	return "/api/v1/workspaces/" + s.workspace.ID.String() + suffix
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// buildWorkflow creates a workflow with a single node and returns its id.
func (s *testServer) buildWorkflow(t *testing.T, token, name string) (string, string) {
	t.Helper()

	code, env := s.do(t, http.MethodPost, s.path("/workflows"), token, map[string]interface{}{"name": name})
	require.Equal(t, http.StatusCreated, code)
	var wf dto.WorkflowResponse
	decodeData(t, env, &wf)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/nodes"), token, map[string]interface{}{
		"name":      "fetch",
		"script_id": s.script.ID.String(),
	})
	require.Equal(t, http.StatusCreated, code)
	var node dto.NodeResponse
	decodeData(t, env, &node)
	return wf.ID, node.ID
}

func TestServer_Authentication(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	stranger := s.token(t, uuid.New(), nil)
	otherWorkspace := uuid.New()
	pinnedElsewhere := s.token(t, s.owner, &otherWorkspace)
	pinnedHere := s.token(t, uuid.New(), &s.workspace.ID)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing token", token: "", want: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "not the owner", token: stranger, want: http.StatusForbidden},
		{name: "pinned to another workspace", token: pinnedElsewhere, want: http.StatusForbidden},
		{name: "pinned to this workspace", token: pinnedHere, want: http.StatusOK},
		{name: "owner", token: s.token(t, s.owner, nil), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.do(t, http.MethodGet, s.path("/workflows"), tt.token, nil)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestServer_WorkflowLifecycle(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	token := s.token(t, s.owner, nil)

	code, env := s.do(t, http.MethodPost, s.path("/workflows"), token, map[string]interface{}{"name": "nightly"})
	require.Equal(t, http.StatusCreated, code)
	var wf dto.WorkflowResponse
	decodeData(t, env, &wf)
	assert.Equal(t, string(models.WorkflowStatusDraft), wf.Status)

	// Empty workflows cannot be activated.
	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/activate"), token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errs.CodeEmptyWorkflow, env.Error.Code)

	// A default API trigger comes with every workflow and cannot be deleted.
	code, env = s.do(t, http.MethodGet, s.path("/workflows/"+wf.ID+"/triggers"), token, nil)
	require.Equal(t, http.StatusOK, code)
	var triggers []dto.TriggerResponse
	decodeData(t, env, &triggers)
	require.Len(t, triggers, 1)
	assert.True(t, triggers[0].IsDefault)
	assert.Equal(t, string(models.TriggerTypeAPI), triggers[0].Type)

	code, env = s.do(t, http.MethodDelete, s.path("/workflows/"+wf.ID+"/triggers/"+triggers[0].ID), token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, errs.CodeDefaultTrigger, env.Error.Code)

	code, _ = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/nodes"), token, map[string]interface{}{
		"name":      "fetch",
		"script_id": s.script.ID.String(),
	})
	require.Equal(t, http.StatusCreated, code)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/activate"), token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &wf)
	assert.Equal(t, string(models.WorkflowStatusActive), wf.Status)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/archive"), token, nil)
	require.Equal(t, http.StatusOK, code)

	// Archived workflows only leave through draft.
	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/activate"), token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, errs.CodeWorkflowArchived, env.Error.Code)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/deactivate"), token, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wf.ID+"/draft"), token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &wf)
	assert.Equal(t, string(models.WorkflowStatusDraft), wf.Status)
}

func TestServer_GraphValidation(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	token := s.token(t, s.owner, nil)
	wfID, first := s.buildWorkflow(t, token, "etl")

	code, env := s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/nodes"), token, map[string]interface{}{
		"name":      "load",
		"script_id": s.script.ID.String(),
	})
	require.Equal(t, http.StatusCreated, code)
	var second dto.NodeResponse
	decodeData(t, env, &second)

	code, _ = s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/edges"), token, dto.EdgeRequest{FromNodeID: first, ToNodeID: second.ID})
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{
			name:     "cycle",
			method:   http.MethodPost,
			path:     "/workflows/" + wfID + "/edges",
			body:     dto.EdgeRequest{FromNodeID: second.ID, ToNodeID: first},
			wantCode: http.StatusBadRequest,
			wantErr:  errs.CodeInvalidGraph,
		},
		{
			name:     "duplicate node name",
			method:   http.MethodPost,
			path:     "/workflows/" + wfID + "/nodes",
			body:     map[string]interface{}{"name": "load", "script_id": s.script.ID.String()},
			wantCode: http.StatusBadRequest,
			wantErr:  errs.CodeDuplicateName,
		},
		{
			name:     "node without script",
			method:   http.MethodPost,
			path:     "/workflows/" + wfID + "/nodes",
			body:     map[string]interface{}{"name": "orphan"},
			wantCode: http.StatusBadRequest,
			wantErr:  errs.CodeInvalidReference,
		},
		{
			name:     "malformed edge",
			method:   http.MethodPost,
			path:     "/workflows/" + wfID + "/edges",
			body:     map[string]interface{}{"from_node_id": "nope"},
			wantCode: http.StatusBadRequest,
			wantErr:  dto.ErrCodeValidation,
		},
		{
			name:     "unknown node",
			method:   http.MethodGet,
			path:     "/workflows/" + wfID + "/nodes/" + uuid.NewString(),
			wantCode: http.StatusNotFound,
			wantErr:  dto.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, s.path(tt.path), token, tt.body)
			assert.Equal(t, tt.wantCode, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}

	code, env = s.do(t, http.MethodGet, s.path("/workflows/"+wfID+"/order"), token, nil)
	require.Equal(t, http.StatusOK, code)
	var order dto.OrderResponse
	decodeData(t, env, &order)
	assert.Equal(t, []string{first, second.ID}, order.NodeIDs)
}

func TestServer_TestRunAndInspect(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	token := s.token(t, s.owner, nil)
	wfID, _ := s.buildWorkflow(t, token, "report")

	code, env := s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/test"), token, dto.TestRunRequest{
		TriggerData: models.JSON{"day": "monday"},
	})
	require.Equal(t, http.StatusAccepted, code)
	var execution dto.ExecutionResponse
	decodeData(t, env, &execution)
	assert.Equal(t, string(models.ExecutionStatusPending), execution.Status)
	assert.Equal(t, models.TriggerTypeTest, execution.TriggerType)
	assert.Equal(t, 1, s.enqueuer.count())

	code, env = s.do(t, http.MethodGet, s.path("/workflows/"+wfID+"/executions"), token, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(1), env.Meta.Total)

	code, _ = s.do(t, http.MethodGet, s.path("/executions/"+execution.ID), token, nil)
	assert.Equal(t, http.StatusOK, code)

	// A pending execution is cancelled in place and can then be retried.
	code, env = s.do(t, http.MethodPost, s.path("/executions/"+execution.ID+"/cancel"), token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &execution)
	assert.Equal(t, string(models.ExecutionStatusCancelled), execution.Status)

	code, env = s.do(t, http.MethodPost, s.path("/executions/"+execution.ID+"/retry"), token, nil)
	require.Equal(t, http.StatusAccepted, code)
	var retry dto.ExecutionResponse
	decodeData(t, env, &retry)
	assert.True(t, retry.IsRetry)
	assert.Equal(t, "alice", retry.TriggeredBy)
	assert.Equal(t, 2, s.enqueuer.count())

	// Executions of other workspaces are invisible.
	other := &models.Execution{ID: uuid.New(), WorkspaceID: uuid.New(), WorkflowID: uuid.New(), Status: models.ExecutionStatusPending}
	require.NoError(t, s.store.Executions.Create(context.Background(), other))
	code, _ = s.do(t, http.MethodGet, s.path("/executions/"+other.ID.String()), token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_FireTriggers(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	token := s.token(t, s.owner, nil)
	wfID, _ := s.buildWorkflow(t, token, "inbound")

	code, env := s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/triggers"), token, dto.CreateTriggerRequest{
		Name:   "github push",
		Type:   string(models.TriggerTypeWebhook),
		Config: models.JSON{"method": "POST", "secret": "s3cr3t"},
	})
	require.Equal(t, http.StatusCreated, code)
	var hook dto.TriggerResponse
	decodeData(t, env, &hook)

	code, env = s.do(t, http.MethodGet, s.path("/workflows/"+wfID+"/triggers"), token, nil)
	require.Equal(t, http.StatusOK, code)
	var triggers []dto.TriggerResponse
	decodeData(t, env, &triggers)
	var apiTrigger dto.TriggerResponse
	for _, tr := range triggers {
		if tr.IsDefault {
			apiTrigger = tr
		}
	}
	require.NotEmpty(t, apiTrigger.ID)

	body := []byte(`{"ref":"refs/heads/main"}`)
	webhookPath := "/webhooks/" + hook.ID

	// Triggers of a DRAFT workflow are not effectively enabled.
	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/triggers/"+apiTrigger.ID+"/fire"), token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, dto.ErrCodeNotEnabled, env.Error.Code)

	code, _ = s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/activate"), token, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/triggers/"+apiTrigger.ID+"/fire"), token, dto.FireTriggerRequest{
		Payload: map[string]interface{}{"id": 7},
	})
	require.Equal(t, http.StatusAccepted, code)
	var fired dto.ExecutionResponse
	decodeData(t, env, &fired)
	assert.Equal(t, "alice", fired.TriggeredBy)

	code, env = s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/triggers/"+hook.ID+"/fire"), token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.ErrCodeTypeMismatch, env.Error.Code)

	t.Run("webhook without signature", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, webhookPath, "", body)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, dto.ErrCodeBadSignature, env.Error.Code)
	})

	t.Run("webhook with signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, webhookPath, bytes.NewReader(body))
		req.Header.Set(webhook.DefaultSignatureHeader, "sha256="+webhook.NewSignatureVerifier("sha256", "s3cr3t").Sign(body))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("webhook with the wrong method", func(t *testing.T) {
		code, _ := s.do(t, http.MethodGet, webhookPath, "", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown webhook", func(t *testing.T) {
		code, _ := s.do(t, http.MethodPost, "/webhooks/"+uuid.NewString(), "", body)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestServer_EmitEvent(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	token := s.token(t, s.owner, nil)
	wfID, _ := s.buildWorkflow(t, token, "on-signup")

	code, _ := s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/triggers"), token, dto.CreateTriggerRequest{
		Name:   "signup",
		Type:   string(models.TriggerTypeEvent),
		Config: models.JSON{"event_name": "user.signup"},
	})
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, s.path("/workflows/"+wfID+"/activate"), token, nil)
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, s.path("/events/user.signup"), token, dto.EmitEventRequest{
		Payload: map[string]interface{}{"email": "a@example.com"},
	})
	require.Equal(t, http.StatusAccepted, code)
	var resp dto.EventResponse
	decodeData(t, env, &resp)
	assert.Len(t, resp.Executions, 1)

	code, env = s.do(t, http.MethodPost, s.path("/events/nobody.listens"), token, nil)
	require.Equal(t, http.StatusAccepted, code)
	decodeData(t, env, &resp)
	assert.Empty(t, resp.Executions)

	code, _ = s.do(t, http.MethodPost, s.path("/events/"+"%20bad"), token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_Secrets(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	token := s.token(t, s.owner, nil)

	code, env := s.do(t, http.MethodPost, s.path("/credentials"), token, dto.CreateCredentialRequest{
		Name: "warehouse",
		Type: models.CredentialTypePostgres,
		Data: models.CredentialData{Host: "db", Username: "etl", Password: "hunter2"},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.NotContains(t, string(env.Data), "hunter2")

	code, env = s.do(t, http.MethodPost, s.path("/variables"), token, dto.CreateVariableRequest{
		Name:     "API_TOKEN",
		Value:    "tok_123",
		IsSecret: true,
	})
	require.Equal(t, http.StatusCreated, code)
	assert.NotContains(t, string(env.Data), "tok_123")

	code, env = s.do(t, http.MethodPost, s.path("/credentials"), token, map[string]interface{}{"name": "x", "type": "ftp"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
}

func TestServer_RateLimited(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: false})
	code, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, dto.ErrCodeTooManyRequest, env.Error.Code)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, fixedCounter{allow: true})
	code, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, code)

	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeData(t, env, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "not configured", health.Checks["database"])
}
