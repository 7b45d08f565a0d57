package signoffsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginKeepsTokenForLaterCalls(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "bob@example.com" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"token":    "tok",
				"employee": map[string]any{"id": "bob", "role": "member", "active": true},
			})
		default:
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{"id": "t1", "state": "validated", "validated_by": []string{"bob"}})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	emp, err := c.Login(context.Background(), "bob@example.com", "secret2")
	if err != nil || emp.ID != "bob" {
		t.Fatalf("login: %+v %v", emp, err)
	}
	task, err := c.ValidateTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotAuth != "Bearer tok" || gotPath != "/v0/tasks/t1/validate" {
		t.Fatalf("unexpected request: auth=%q path=%q", gotAuth, gotPath)
	}
	if task.State != "validated" || len(task.ValidatedBy) != 1 {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestAPIErrorCarriesEnvelopeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"gate_violation","message":"not ready","details":{"pending_tasks":["t1"]}}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).SetSupervisorValidation(context.Background(), "p1", true)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "gate_violation" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}
