package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"signoff/internal/activity"
	"signoff/internal/config"
	"signoff/internal/db"
	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/migrate"
	"signoff/internal/notify"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, allowHeader bool) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.RegisterEmployee(ctx, engine.RegisterOptions{ID: "alice", Name: "Alice", Email: "alice@example.com", Password: "secret1", Role: domain.RoleSupervisor}); err != nil {
		t.Fatalf("seed supervisor: %v", err)
	}
	if _, err := e.RegisterEmployee(ctx, engine.RegisterOptions{ID: "bob", Name: "Bob", Email: "bob@example.com", Password: "secret2"}); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	handler, err := New(Config{
		Engine:    e,
		Generator: notify.Generator{Repo: e.Repo, Window: notify.DefaultWindow},
		BasePath:  "/v0",
		Auth: AuthConfig{
			JWTSecret:              testSecret,
			TokenTTL:               time.Hour,
			AllowLegacyActorHeader: allowHeader,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, email, password string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func errorCode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code, env.Error.Details
}

func TestLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    "bob@example.com",
		"password": "wrong-password",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad password, got %d %s", res.StatusCode, string(data))
	}
	if code, _ := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("unexpected code %q", code)
	}

	headers := login(t, srv, "BOB@example.com", "secret2")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Employee.ID != "bob" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
	for _, c := range me.Capabilities {
		if c == "project.certify" {
			t.Fatalf("member must not certify: %v", me.Capabilities)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Actor-Id": "alice"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("legacy header must be refused when disabled, got %d %s", res.StatusCode, string(data))
	}
}

func TestDeactivatedTokenRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()
	client := srv.Client()
	bob := login(t, srv, "bob@example.com", "secret2")
	alice := login(t, srv, "alice@example.com", "secret1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/employees/bob/deactivate", nil, bob)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member deactivating: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/employees/bob/deactivate", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, bob)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated employee, got %d %s", res.StatusCode, string(data))
	}
}

func TestGateViolationThenCertify(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()
	client := srv.Client()
	alice := login(t, srv, "alice@example.com", "secret1")
	bob := login(t, srv, "bob@example.com", "secret2")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"id":            "p1",
		"title":         "Website",
		"duration_days": 30,
		"deadline":      "2099-01-31",
	}, bob)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1/validation", map[string]any{"validated": true}, alice)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty project certified: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/p1/tasks", map[string]any{
		"id":         "t1",
		"title":      "Mockups",
		"final_date": "2099-01-15",
	}, bob)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1/validation", map[string]any{"validated": true}, alice)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected gate violation, got %d %s", res.StatusCode, string(data))
	}
	code, details := errorCode(t, data)
	if code != "gate_violation" {
		t.Fatalf("unexpected code %q", code)
	}
	pending, _ := details["pending_tasks"].([]any)
	if len(pending) != 1 || pending[0] != "t1" {
		t.Fatalf("unexpected pending tasks: %v", details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/t1/validate", nil, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.State != domain.TaskValidated || len(task.ValidatedBy) != 1 || task.ValidatedBy[0] != "bob" {
		t.Fatalf("unexpected task after vote: %+v", task)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/p1/gate", nil, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("gate: %d %s", res.StatusCode, string(data))
	}
	var gate engine.GateStatus
	_ = json.Unmarshal(data, &gate)
	if !gate.CanValidate || gate.TotalTasks != 1 {
		t.Fatalf("unexpected gate: %+v", gate)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1/validation", map[string]any{"validated": true}, bob)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member certified: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1/validation", map[string]any{"validated": true}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("certify: %d %s", res.StatusCode, string(data))
	}
	var p domain.Project
	_ = json.Unmarshal(data, &p)
	if !p.ValidatedBySupervisor {
		t.Fatalf("project not certified: %+v", p)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/p1/activity?limit=1", nil, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activity: %d %s", res.StatusCode, string(data))
	}
	var entries []ActivityEntryResponse
	_ = json.Unmarshal(data, &entries)
	if len(entries) != 1 || entries[0].Action != domain.ActionProjectValidated || entries[0].ActorName != "Alice" {
		t.Fatalf("unexpected activity: %+v", entries)
	}
}

func TestNotPertinentReachesOwnerInbox(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()
	client := srv.Client()
	bob := map[string]string{"X-Actor-Id": "bob"}
	alice := map[string]string{"X-Actor-Id": "alice"}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"id": "p1", "title": "Intranet", "duration_days": 10, "deadline": "2099-02-01",
	}, bob)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/p1/tasks", map[string]any{
		"id": "t1", "title": "Audit", "final_date": "2099-01-20",
	}, bob)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/t1/not-pertinent", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("not pertinent: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications?grouped=true", nil, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications: %d %s", res.StatusCode, string(data))
	}
	var list NotificationListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Type != domain.NotificationInfo || len(list.Groups) != 1 || list.Groups[0].ProjectID != "p1" {
		t.Fatalf("unexpected notifications: %+v", list)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/preferences", map[string]any{
		"receive_deadline_alerts":      true,
		"receive_not_pertinent_alerts": false,
		"group_by_project":             false,
	}, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preferences: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications", nil, bob)
	list = NotificationListResponse{}
	_ = json.Unmarshal(data, &list)
	if res.StatusCode != http.StatusOK || len(list.Items) != 0 {
		t.Fatalf("opt-out ignored: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/generate", nil, bob)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member ran generator: %d %s", res.StatusCode, string(data))
	}
}

func TestUnknownTaskAndStaleVersion(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()
	client := srv.Client()
	bob := map[string]string{"X-Actor-Id": "bob"}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/missing/validate", nil, bob)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"id": "p1", "title": "Billing", "duration_days": 5, "deadline": "2099-03-01",
	}, bob)
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/p1", map[string]any{
		"title":            "Billing v2",
		"expected_version": 99,
	}, bob)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()
	ctx := context.Background()

	var mu sync.Mutex
	var got []webhookEvent
	var secrets []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Signoff-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	e := srv.Engine
	if _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{ID: "old", Title: "Old", DurationDays: 1, Deadline: "2099-01-01", ActorID: "bob"}); err != nil {
		t.Fatal(err)
	}
	d := newWebhookDispatcher(e.Activity, []config.WebhookConfig{{
		URL:    hook.URL,
		Secret: "s3cret",
		Events: []string{domain.ActionTaskCreated},
	}}, nil)
	d.dispatchAll(ctx)

	if _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{ID: "p1", Title: "New", DurationDays: 1, Deadline: "2099-01-01", ActorID: "bob"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateTask(ctx, engine.TaskCreateOptions{ID: "t1", ProjectID: "p1", Title: "Draft", FinalDate: "2099-01-01", ActorID: "bob"}); err != nil {
		t.Fatal(err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %+v", got)
	}
	if got[0].Action != domain.ActionTaskCreated || got[0].ProjectID != "p1" || got[0].ActorName != "Bob" || secrets[0] != "s3cret" {
		t.Fatalf("unexpected delivery: %+v %v", got[0], secrets)
	}
}

func TestWebhookDispatcherSkipsDisabledHooks(t *testing.T) {
	off := false
	if d := newWebhookDispatcher(activity.Log{}, []config.WebhookConfig{{URL: "http://example.invalid", Enabled: &off}}, nil); d != nil {
		t.Fatalf("disabled hook produced a dispatcher")
	}
}
