package domain

import (
	"fmt"
	"time"
)

// TimeLayout is fixed-width so stored timestamps sort lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	RoleMember     = "member"
	RoleSupervisor = "supervisor"
)

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskValidated  = "validated"
	TaskRejected   = "rejected"
)

const (
	VoteValidated    = "validated"
	VoteNotPertinent = "not_pertinent"
)

const (
	NotificationDeadline = "deadline"
	NotificationInfo     = "info"
)

const (
	CommentUrgent      = "urgent"
	CommentDaily       = "daily"
	CommentInformative = "informative"
)

type Employee struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Role         string  `json:"role" enum:"member,supervisor"`
	ServiceID    string  `json:"service_id,omitempty"`
	Active       bool    `json:"active"`
	PasswordHash string  `json:"-"`
	FailedLogins int     `json:"-"`
	LockedUntil  *string `json:"-"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	LastLoginAt  *string `json:"last_login_at,omitempty" format:"date-time"`
}

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
	CreatedAt             string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	FinalDate      string   `json:"final_date"`
	DurationDays   int      `json:"duration_days"`
	State          string   `json:"state" enum:"pending,in_progress,validated,rejected"`
	ValidatedBy    []string `json:"validated_by"`
	NotPertinentBy []string `json:"not_pertinent_by"`
	Version        int64    `json:"version"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

// Ready reports whether at least one employee validated the task.
func (t Task) Ready() bool { return len(t.ValidatedBy) > 0 }

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	Type      string `json:"type" enum:"urgent,daily,informative"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Attachment struct {
	ProjectID  string `json:"project_id"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Content    []byte `json:"content,omitempty"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type ActivityEntry struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

type Notification struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	Type             string  `json:"type" enum:"deadline,info"`
	Title            string  `json:"title"`
	Message          string  `json:"message"`
	RelatedProjectID *string `json:"related_project_id,omitempty"`
	RelatedTaskID    *string `json:"related_task_id,omitempty"`
	Read             bool    `json:"read"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type Preferences struct {
	UserID                    string `json:"user_id"`
	ReceiveDeadlineAlerts     bool   `json:"receive_deadline_alerts"`
	ReceiveNotPertinentAlerts bool   `json:"receive_not_pertinent_alerts"`
	GroupByProject            bool   `json:"group_by_project"`
}

// DefaultPreferences is what a user gets before saving any preference.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:                    userID,
		ReceiveDeadlineAlerts:     true,
		ReceiveNotPertinentAlerts: true,
	}
}

// FormatTime renders t in UTC with TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts stored timestamps, RFC3339 and bare dates.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func ValidRole(role string) bool {
	return role == RoleMember || role == RoleSupervisor
}

func ValidTaskState(state string) bool {
	switch state {
	case TaskPending, TaskInProgress, TaskValidated, TaskRejected:
		return true
	}
	return false
}

func ValidCommentType(typ string) bool {
	switch typ {
	case CommentUrgent, CommentDaily, CommentInformative:
		return true
	}
	return false
}
