package server

import (
	"signoff/internal/domain"
	"signoff/internal/notify"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email" format:"email"`
	Password  string `json:"password" minLength:"6"`
	Role      string `json:"role,omitempty" enum:"member,supervisor"`
	ServiceID string `json:"service_id,omitempty"`
}

type UpdateEmployeeRequest struct {
	Name      *string `json:"name,omitempty"`
	Role      *string `json:"role,omitempty" enum:"member,supervisor"`
	ServiceID *string `json:"service_id,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" minLength:"6"`
}

type CreateProjectRequest struct {
	ID           string  `json:"id,omitempty"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	ServiceID    string  `json:"service_id,omitempty"`
	Budget       float64 `json:"budget,omitempty"`
	DurationDays int     `json:"duration_days"`
	Deadline     string  `json:"deadline" example:"2025-03-31"`
}

type UpdateProjectRequest struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"description,omitempty"`
	ServiceID       *string  `json:"service_id,omitempty"`
	Budget          *float64 `json:"budget,omitempty"`
	DurationDays    *int     `json:"duration_days,omitempty"`
	Deadline        *string  `json:"deadline,omitempty"`
	ExpectedVersion int64    `json:"expected_version,omitempty"`
}

type SetValidationRequest struct {
	Validated bool `json:"validated"`
}

type CreateTaskRequest struct {
	ID           string `json:"id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	FinalDate    string `json:"final_date" example:"2025-03-15"`
	DurationDays int    `json:"duration_days,omitempty"`
}

type UpdateTaskRequest struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	FinalDate       *string `json:"final_date,omitempty"`
	DurationDays    *int    `json:"duration_days,omitempty"`
	State           *string `json:"state,omitempty" enum:"pending,in_progress,validated,rejected"`
	ExpectedVersion int64   `json:"expected_version,omitempty"`
}

type CreateCommentRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty" enum:"urgent,daily,informative"`
}

type UploadAttachmentRequest struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type,omitempty"`
	Content  []byte `json:"content"`
}

// Response payloads

type LoginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt string          `json:"expires_at" format:"date-time"`
	Employee  domain.Employee `json:"employee"`
}

type WhoAmIResponse struct {
	Employee     domain.Employee `json:"employee"`
	Source       string          `json:"source"`
	Capabilities []string        `json:"capabilities"`
}

type VotesResponse struct {
	TaskID         string   `json:"task_id"`
	ValidatedBy    []string `json:"validated_by"`
	NotPertinentBy []string `json:"not_pertinent_by"`
	Ready          bool     `json:"ready"`
}

type ActivityEntryResponse struct {
	domain.ActivityEntry
	Label string `json:"label"`
}

type NotificationListResponse struct {
	Items  []domain.Notification `json:"items"`
	Groups []notify.Group        `json:"groups,omitempty"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

func mapActivity(items []domain.ActivityEntry) []ActivityEntryResponse {
	out := make([]ActivityEntryResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ActivityEntryResponse{ActivityEntry: it, Label: domain.ActionLabel(it.Action)})
	}
	return out
}

func votesResponse(t domain.Task) VotesResponse {
	return VotesResponse{
		TaskID:         t.ID,
		ValidatedBy:    nonNilSlice(t.ValidatedBy),
		NotPertinentBy: nonNilSlice(t.NotPertinentBy),
		Ready:          t.Ready(),
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
