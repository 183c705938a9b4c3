package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-fastcon/internal/bridges/fastcon"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fastcon/internal/lights"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
	_ "github.com/nerrad567/gray-logic-fastcon/migrations"
)

const (
	testClientID     = "panel"
	testClientSecret = "panel-secret"
	testJWTSecret    = "test-secret-key-at-least-32-characters-long"
)

// mockMesh implements Mesh for testing.
type mockMesh struct {
	mu        sync.Mutex
	submitted []protocol.Command
	submitErr error
	pending   []protocol.Command
	current   *mesh.Session
	cleared   int
	connected bool
}

func (m *mockMesh) submit(cmd protocol.Command) (fastcon.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return fastcon.Receipt{}, m.submitErr
	}
	if err := cmd.Validate(); err != nil {
		return fastcon.Receipt{}, fmt.Errorf("%w: %w", mesh.ErrInvalidCommand, err)
	}
	m.submitted = append(m.submitted, cmd)
	return fastcon.Receipt{
		JournalID:  fmt.Sprintf("journal-%d", len(m.submitted)),
		Command:    cmd,
		QueueDepth: len(m.submitted),
	}, nil
}

func (m *mockMesh) PairDevice(_ context.Context, lightID, groupID uint32, _ string) (fastcon.Receipt, error) {
	return m.submit(protocol.Pair(lightID, groupID))
}

func (m *mockMesh) FactoryReset(_ context.Context, lightID uint32, _ string) (fastcon.Receipt, error) {
	return m.submit(protocol.FactoryReset(lightID))
}

func (m *mockMesh) SetState(_ context.Context, lightID uint32, state protocol.LightState, _ string) (fastcon.Receipt, error) {
	return m.submit(protocol.SetState(lightID, state))
}

func (m *mockMesh) ClearQueue(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.pending)
	m.pending = nil
	m.cleared += n
	return n
}

func (m *mockMesh) Pending() []protocol.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Command(nil), m.pending...)
}

func (m *mockMesh) Current() (mesh.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return mesh.Session{}, false
	}
	return *m.current, true
}

func (m *mockMesh) GetMetrics() fastcon.BridgeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fastcon.BridgeMetrics{
		Connected: m.connected,
		Stats: mesh.Stats{
			State:         mesh.StateIdle,
			QueueDepth:    len(m.pending),
			QueueCapacity: mesh.DefaultMaxQueueSize,
		},
	}
}

func (m *mockMesh) lastSubmitted() protocol.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.submitted) == 0 {
		return protocol.Command{}
	}
	return m.submitted[len(m.submitted)-1]
}

type testEnv struct {
	srv     *Server
	router  http.Handler
	mesh    *mockMesh
	lights  *lights.SQLiteRepository
	journal *lights.SQLiteJournal
}

// testServer creates a Server with a mock mesh and a real light registry
// backed by a migrated SQLite file.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	env := &testEnv{
		mesh:    &mockMesh{connected: true},
		lights:  lights.NewSQLiteRepository(db.DB),
		journal: lights.NewSQLiteJournal(db.DB),
	}

	env.srv, err = New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
			Clients: map[string]string{testClientID: testClientSecret},
		},
		Logger:  log,
		Mesh:    env.mesh,
		Lights:  env.lights,
		Journal: env.journal,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.srv.Hub().Run(ctx)

	env.router = env.srv.buildRouter()
	return env
}

// token issues a bearer token for the test client.
func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	signed, _, err := e.srv.issueToken(testClientID, time.Now())
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	return signed
}

// do sends an authenticated request through the router.
func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token(t))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Health and Middleware Tests ───────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["scheduler"] != "idle" {
		t.Errorf("scheduler = %v, want idle", resp["scheduler"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_DegradedWithoutMQTT(t *testing.T) {
	env := testServer(t)
	env.mesh.connected = false

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-abc")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-abc" {
		t.Errorf("X-Request-ID = %q, want client-abc", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/lights", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("Allow-Methods = %q, want PATCH listed", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestToken_Success(t *testing.T) {
	env := testServer(t)

	body := fmt.Sprintf(`{"client_id":%q,"client_secret":%q}`, testClientID, testClientSecret)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp tokenResponse
	decodeBody(t, w, &resp)
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 900 {
		t.Errorf("token_type = %q, expires_in = %d", resp.TokenType, resp.ExpiresIn)
	}

	subject, err := env.srv.parseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parseToken: %v", err)
	}
	if subject != testClientID {
		t.Errorf("subject = %q, want %q", subject, testClientID)
	}
}

func TestToken_InvalidCredentials(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong secret", `{"client_id":"panel","client_secret":"nope"}`, http.StatusUnauthorized},
		{"unknown client", `{"client_id":"other","client_secret":"panel-secret"}`, http.StatusUnauthorized},
		{"empty", `{}`, http.StatusUnauthorized},
		{"bad json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	env := testServer(t)

	expired, _, err := env.srv.issueToken(testClientID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/lights", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	env := testServer(t)
	other := testServer(t)
	other.srv.secCfg.JWT.Secret = "a-different-secret-also-32-characters"

	if _, err := env.srv.parseToken(other.token(t)); err == nil {
		t.Error("token signed with another secret should be rejected")
	}
}

// ─── Light Registry Tests ──────────────────────────────────────────

func TestListLights_Empty(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/lights", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Lights []lights.Light `json:"lights"`
		Count  int            `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count != 0 || len(resp.Lights) != 0 {
		t.Errorf("count = %d, lights = %d, want empty", resp.Count, len(resp.Lights))
	}
}

func TestGetLight(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	if err := env.lights.MarkPaired(ctx, 42, 3, time.Now()); err != nil {
		t.Fatalf("MarkPaired: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/lights/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var light lights.Light
	decodeBody(t, w, &light)
	if light.ID != 42 || light.GroupID != 3 || light.PairedAt == nil {
		t.Errorf("light = %+v", light)
	}
}

func TestGetLight_Errors(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"not found", "/api/v1/lights/7", http.StatusNotFound},
		{"not a number", "/api/v1/lights/abc", http.StatusBadRequest},
		{"out of range", "/api/v1/lights/4096", http.StatusBadRequest},
		{"negative", "/api/v1/lights/-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRenameAndDeleteLight(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	if err := env.lights.MarkPaired(ctx, 5, 1, time.Now()); err != nil {
		t.Fatalf("MarkPaired: %v", err)
	}

	w := env.do(t, http.MethodPatch, "/api/v1/lights/5", `{"name":"  Kitchen  "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var light lights.Light
	decodeBody(t, w, &light)
	if light.Name != "Kitchen" {
		t.Errorf("name = %q, want Kitchen", light.Name)
	}

	if w := env.do(t, http.MethodPatch, "/api/v1/lights/5", `{"name":""}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty name status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if w := env.do(t, http.MethodPatch, "/api/v1/lights/6", `{"name":"Hall"}`); w.Code != http.StatusNotFound {
		t.Errorf("rename unknown status = %d, want %d", w.Code, http.StatusNotFound)
	}

	if w := env.do(t, http.MethodDelete, "/api/v1/lights/5", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/lights/5", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if len(env.mesh.submitted) != 0 {
		t.Errorf("registry edits submitted %d mesh commands, want 0", len(env.mesh.submitted))
	}
}

// ─── Mesh Action Tests ─────────────────────────────────────────────

func TestPairLight(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name      string
		body      string
		wantGroup uint32
	}{
		{"default group", "", protocol.DefaultGroup},
		{"explicit group", `{"group_id":9}`, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/lights/12/pair", tt.body)
			if w.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
			}

			var resp actionResponse
			decodeBody(t, w, &resp)
			if resp.Status != "queued" || resp.Opcode != "pair" || resp.LightID != 12 || resp.JournalID == "" {
				t.Errorf("response = %+v", resp)
			}
			if got := env.mesh.lastSubmitted().Group; got != tt.wantGroup {
				t.Errorf("group = %d, want %d", got, tt.wantGroup)
			}
		})
	}
}

func TestFactoryReset(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/lights/4095/factory-reset", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if cmd := env.mesh.lastSubmitted(); cmd.Op != protocol.OpFactoryReset || cmd.Target != 4095 {
		t.Errorf("submitted = %+v", cmd)
	}
}

func TestSetState(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPut, "/api/v1/lights/3/state",
		`{"on":true,"brightness":0.8,"mode":"rgb","red":1,"green":0,"blue":0.25}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	cmd := env.mesh.lastSubmitted()
	if cmd.Op != protocol.OpSetState || !cmd.State.On || cmd.State.Brightness != 0.8 {
		t.Errorf("submitted = %+v", cmd)
	}
	if cmd.State.Mode != protocol.ColorModeRGB || cmd.State.Red != 1 || cmd.State.Blue != 0.25 {
		t.Errorf("colour = %+v", cmd.State)
	}
}

func TestSetState_BadBody(t *testing.T) {
	env := testServer(t)

	for _, body := range []string{`{"on":`, `{"on":true,"mode":"disco"}`} {
		w := env.do(t, http.MethodPut, "/api/v1/lights/3/state", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

func TestMeshAction_QueueFull(t *testing.T) {
	env := testServer(t)
	env.mesh.submitErr = mesh.ErrQueueFull

	w := env.do(t, http.MethodPost, "/api/v1/lights/1/factory-reset", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	var apiErr Error
	decodeBody(t, w, &apiErr)
	if apiErr.Code != ErrCodeQueueFull {
		t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeQueueFull)
	}
}

func TestMeshAction_InvalidCommand(t *testing.T) {
	env := testServer(t)
	env.mesh.submitErr = fmt.Errorf("%w: brightness out of range", mesh.ErrInvalidCommand)

	w := env.do(t, http.MethodPut, "/api/v1/lights/1/state", `{"on":true}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestMeshAction_InternalError(t *testing.T) {
	env := testServer(t)
	env.mesh.submitErr = fmt.Errorf("bridge stopped")

	w := env.do(t, http.MethodPost, "/api/v1/lights/1/pair", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// ─── Queue and Journal Tests ───────────────────────────────────────

func TestGetQueue(t *testing.T) {
	env := testServer(t)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env.mesh.pending = []protocol.Command{
		protocol.Pair(1, 2),
		protocol.SetState(2, protocol.LightState{On: true, Brightness: 0.5}),
	}
	env.mesh.current = &mesh.Session{Command: protocol.FactoryReset(9), Sequence: 17, StartedAt: started}

	w := env.do(t, http.MethodGet, "/api/v1/queue", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Pending []commandView `json:"pending"`
		Current *sessionView  `json:"current"`
		Stats   mesh.Stats    `json:"stats"`
	}
	decodeBody(t, w, &resp)

	if len(resp.Pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(resp.Pending))
	}
	if resp.Pending[0].Opcode != "pair" || resp.Pending[0].GroupID != 2 {
		t.Errorf("pending[0] = %+v", resp.Pending[0])
	}
	if resp.Pending[1].State == nil || resp.Pending[1].State.Brightness != 0.5 {
		t.Errorf("pending[1] = %+v", resp.Pending[1])
	}
	if resp.Current == nil || resp.Current.Sequence != 17 || resp.Current.Opcode != "factory_reset" {
		t.Errorf("current = %+v", resp.Current)
	}
	if resp.Stats.QueueCapacity != mesh.DefaultMaxQueueSize {
		t.Errorf("capacity = %d, want %d", resp.Stats.QueueCapacity, mesh.DefaultMaxQueueSize)
	}
}

func TestClearQueue(t *testing.T) {
	env := testServer(t)
	env.mesh.pending = []protocol.Command{protocol.Pair(1, 1), protocol.Pair(2, 1), protocol.Pair(3, 1)}

	w := env.do(t, http.MethodDelete, "/api/v1/queue", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]int
	decodeBody(t, w, &resp)
	if resp["cleared"] != 3 {
		t.Errorf("cleared = %d, want 3", resp["cleared"])
	}
	if len(env.mesh.Pending()) != 0 {
		t.Error("queue should be empty")
	}
}

func TestJournal(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	for _, cmd := range []protocol.Command{protocol.Pair(1, 1), protocol.Pair(2, 1), protocol.FactoryReset(1)} {
		if _, err := env.journal.Append(ctx, lights.EntryFor(cmd, lights.StatusQueued, "test")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tests := []struct {
		name  string
		query string
		want  int
		code  int
	}{
		{"all", "", 3, http.StatusOK},
		{"limit", "?limit=2", 2, http.StatusOK},
		{"by light", "?light_id=1", 2, http.StatusOK},
		{"bad limit", "?limit=0", 0, http.StatusBadRequest},
		{"highest light", "?light_id=4095", 0, http.StatusOK},
		{"bad light", "?light_id=4096", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/journal"+tt.query, "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp struct {
				Entries []lights.Entry `json:"entries"`
				Count   int            `json:"count"`
			}
			decodeBody(t, w, &resp)
			if resp.Count != tt.want {
				t.Errorf("count = %d, want %d", resp.Count, tt.want)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	if err := env.lights.MarkPaired(ctx, 1, 1, time.Now()); err != nil {
		t.Fatalf("MarkPaired: %v", err)
	}
	if err := env.lights.MarkReset(ctx, 2, time.Now()); err != nil {
		t.Fatalf("MarkReset: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var m SystemMetrics
	decodeBody(t, w, &m)
	if m.Lights.Total != 2 || m.Lights.Paired != 1 {
		t.Errorf("lights = %+v, want 2 total 1 paired", m.Lights)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("expected goroutine count")
	}
	if !m.Bridge.Connected {
		t.Error("bridge should report connected")
	}
}

// ─── WebSocket Ticket Tests ────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := env.srv.validateTicket(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.clientID != testClientID {
		t.Errorf("clientID = %q, want %q", entry.clientID, testClientID)
	}
	if _, ok := env.srv.validateTicket(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	env := testServer(t)

	ticket := generateTicket()
	env.srv.tickets.mu.Lock()
	env.srv.tickets.tickets[ticket] = ticketEntry{expiresAt: time.Now().Add(-1 * time.Second)}
	env.srv.tickets.mu.Unlock()

	if _, ok := env.srv.validateTicket(ticket); ok {
		t.Error("expired ticket should not be valid")
	}
}

func TestTicketStore_CleanExpired(t *testing.T) {
	store := newTicketStore()
	now := time.Now()
	store.tickets["old"] = ticketEntry{expiresAt: now.Add(-time.Second)}
	store.tickets["new"] = ticketEntry{expiresAt: now.Add(time.Minute)}

	store.cleanExpired(now)

	if _, ok := store.tickets["old"]; ok {
		t.Error("expired ticket should be removed")
	}
	if _, ok := store.tickets["new"]; !ok {
		t.Error("live ticket should be kept")
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func testHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{fastcon.ChannelSession: {}},
	}
	hub.Register(client)

	hub.Broadcast(fastcon.ChannelSession, map[string]any{"light_id": 1, "event": "session_started"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != fastcon.ChannelSession {
			t.Errorf("message = %+v", wsMsg)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{fastcon.ChannelDropped: {}},
	}
	hub.Register(client)

	hub.Broadcast(fastcon.ChannelSession, map[string]any{"light_id": 1})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_SatisfiesEventSink(t *testing.T) {
	var _ fastcon.EventSink = (*Hub)(nil)
}

// ─── WebSocket Connection Tests ────────────────────────────────────

func startHTTP(t *testing.T, env *testEnv) string {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func connectWebSocket(t *testing.T, env *testEnv, addr string) *websocket.Conn {
	t.Helper()

	req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/api/v1/auth/ws-ticket", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ws-ticket request failed: %v", err)
	}
	defer resp.Body.Close()

	var ticketResult struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticketResult); err != nil {
		t.Fatalf("decode ticket response: %v", err)
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?ticket="+ticketResult.Ticket, nil)
	if err != nil {
		t.Fatalf("websocket connect failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	env := testServer(t)
	addr := startHTTP(t, env)
	ws := connectWebSocket(t, env, addr)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{fastcon.ChannelSession}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	resp := readWS(t, ws)
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("response = %+v", resp)
	}
	waitForClients(t, env.srv.Hub(), 1)

	env.srv.Hub().Broadcast(fastcon.ChannelSession, map[string]any{"light_id": 5})
	event := readWS(t, ws)
	if event.Type != WSTypeEvent || event.EventType != fastcon.ChannelSession {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocket_BearerToken(t *testing.T) {
	env := testServer(t)
	addr := startHTTP(t, env)

	header := http.Header{"Authorization": []string{"Bearer " + env.token(t)}}
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", header)
	if err != nil {
		t.Fatalf("dial with bearer token: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("pong = %+v", msg)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	env := testServer(t)
	addr := startHTTP(t, env)
	ws := connectWebSocket(t, env, addr)

	tests := []struct {
		name string
		send string
	}{
		{"invalid json", `{`},
		{"unknown type", `{"type":"reboot","id":"x"}`},
		{"unknown channel", `{"type":"subscribe","id":"s","payload":{"channels":["device.state_changed"]}}`},
		{"no channels", `{"type":"subscribe","id":"s","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			if msg := readWS(t, ws); msg.Type != WSTypeError {
				t.Errorf("type = %q, want %q", msg.Type, WSTypeError)
			}
		})
	}
}

func TestWebSocket_Unauthorised(t *testing.T) {
	env := testServer(t)
	addr := startHTTP(t, env)

	tests := []struct {
		name   string
		url    string
		header http.Header
	}{
		{"no credentials", "ws://" + addr + "/api/v1/ws", nil},
		{"invalid ticket", "ws://" + addr + "/api/v1/ws?ticket=nope", nil},
		{"invalid token", "ws://" + addr + "/api/v1/ws", http.Header{"Authorization": []string{"Bearer nope"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, tt.header)
			if err == nil {
				t.Fatal("dial should fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("response = %v, want 401", resp)
			}
		})
	}
}

// ─── Server Lifecycle Tests ────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Mesh: &mockMesh{}}},
		{"no mesh", Deps{Logger: log}},
		{"no registry", Deps{Logger: log, Mesh: &mockMesh{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestServer_HealthCheck(t *testing.T) {
	env := testServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := env.srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck with cancelled context should fail")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.Port = 19181

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	var resp *http.Response
	var err error
	for range 50 {
		resp, err = http.Get("http://127.0.0.1:19181/api/v1/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start: %v", err)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
