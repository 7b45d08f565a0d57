package signoffsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Signoff HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Employee is the public part of an employee record.
type Employee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ServiceID string `json:"service_id,omitempty"`
	Active    bool   `json:"active"`
}

// Project represents the API project model.
type Project struct {
	ID                    string  `json:"id"`
	Title                 string  `json:"title"`
	Description           string  `json:"description,omitempty"`
	OwnerID               string  `json:"owner_id"`
	ServiceID             string  `json:"service_id,omitempty"`
	Budget                float64 `json:"budget"`
	DurationDays          int     `json:"duration_days"`
	Deadline              string  `json:"deadline"`
	ValidatedBySupervisor bool    `json:"validated_by_supervisor"`
	Version               int64   `json:"version"`
}

// Task represents the API task model.
type Task struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	Title          string   `json:"title"`
	FinalDate      string   `json:"final_date"`
	State          string   `json:"state"`
	ValidatedBy    []string `json:"validated_by"`
	NotPertinentBy []string `json:"not_pertinent_by"`
	Version        int64    `json:"version"`
}

// Gate reports whether a supervisor may validate a project.
type Gate struct {
	ProjectID             string   `json:"project_id"`
	TotalTasks            int      `json:"total_tasks"`
	ReadyTasks            int      `json:"ready_tasks"`
	PendingTasks          []string `json:"pending_tasks"`
	CanValidate           bool     `json:"can_validate"`
	ValidatedBySupervisor bool     `json:"validated_by_supervisor"`
}

// ActivityEntry is one line of a project's audit trail.
type ActivityEntry struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Action    string `json:"action"`
	Label     string `json:"label"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Notification is an entry of the caller's inbox.
type Notification struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	RelatedProjectID string `json:"related_project_id,omitempty"`
	RelatedTaskID    string `json:"related_task_id,omitempty"`
	Read             bool   `json:"read"`
	CreatedAt        string `json:"created_at"`
}

// APIError wraps non-2xx responses. Code is taken from the error envelope
// when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Employee, error) {
	var resp struct {
		Token    string   `json:"token"`
		Employee Employee `json:"employee"`
	}
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return Employee{}, err
	}
	c.BearerToken = resp.Token
	return resp.Employee, nil
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, title, deadline string, durationDays int, budget float64) (Project, error) {
	body := map[string]any{
		"title":         title,
		"deadline":      deadline,
		"duration_days": durationDays,
		"budget":        budget,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// CreateTask adds a task to a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title, finalDate string) (Task, error) {
	body := map[string]any{
		"title":      title,
		"final_date": finalDate,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID)), body, &resp)
	return resp, err
}

// ValidateTask records the caller's validation of a task.
func (c *Client) ValidateTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/validate", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// MarkNotPertinent records that the caller finds a task not pertinent.
func (c *Client) MarkNotPertinent(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/not-pertinent", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// Gate returns the validation gate of a project.
func (c *Client) Gate(ctx context.Context, projectID string) (Gate, error) {
	var resp Gate
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%s/gate", url.PathEscape(projectID)), nil, &resp)
	return resp, err
}

// SetSupervisorValidation certifies or revokes a project.
func (c *Client) SetSupervisorValidation(ctx context.Context, projectID string, validated bool) (Project, error) {
	var resp Project
	body := map[string]any{"validated": validated}
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("projects/%s/validation", url.PathEscape(projectID)), body, &resp)
	return resp, err
}

// Activity returns the newest entries of a project's trail.
func (c *Client) Activity(ctx context.Context, projectID string, limit int) ([]ActivityEntry, error) {
	endpoint := fmt.Sprintf("projects/%s/activity", url.PathEscape(projectID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []ActivityEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Notifications returns the caller's inbox.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// RunNotifications triggers the deadline generator and returns how many
// notifications it created.
func (c *Client) RunNotifications(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/generate", nil, &resp)
	return resp.Count, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
