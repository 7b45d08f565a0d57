package notify

import (
	"context"

	"signoff/internal/domain"
	"signoff/internal/repo"
)

// ForDisplay drops the notifications the user opted out of. Info
// notifications tied to a task are the not-pertinent alerts.
func ForDisplay(prefs domain.Preferences, list []domain.Notification) []domain.Notification {
	res := make([]domain.Notification, 0, len(list))
	for _, n := range list {
		if n.Type == domain.NotificationDeadline && !prefs.ReceiveDeadlineAlerts {
			continue
		}
		if n.Type == domain.NotificationInfo && n.RelatedTaskID != nil && !prefs.ReceiveNotPertinentAlerts {
			continue
		}
		res = append(res, n)
	}
	return res
}

// Group holds the notifications of one project. ProjectID is empty for
// notifications without a project.
type Group struct {
	ProjectID     string                `json:"project_id"`
	Notifications []domain.Notification `json:"notifications"`
}

// GroupByProject keeps the input order inside each group and orders groups
// by first appearance.
func GroupByProject(list []domain.Notification) []Group {
	var groups []Group
	index := map[string]int{}
	for _, n := range list {
		key := ""
		if n.RelatedProjectID != nil {
			key = *n.RelatedProjectID
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{ProjectID: key})
		}
		groups[i].Notifications = append(groups[i].Notifications, n)
	}
	return groups
}

// Inbox is the read side of a user's notifications.
type Inbox struct {
	Repo repo.Repo
}

// List returns the user's notifications newest first, filtered by their
// preferences.
func (i Inbox) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, domain.Preferences, error) {
	if _, err := i.Repo.GetEmployee(ctx, userID); err != nil {
		return nil, domain.Preferences{}, err
	}
	prefs, err := i.Repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, prefs, err
	}
	list, err := i.Repo.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, prefs, err
	}
	return ForDisplay(prefs, list), prefs, nil
}

func (i Inbox) MarkRead(ctx context.Context, userID, id string) error {
	return i.Repo.MarkNotificationRead(ctx, userID, id)
}

func (i Inbox) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return i.Repo.MarkAllNotificationsRead(ctx, userID)
}

func (i Inbox) Clear(ctx context.Context, userID string) (int64, error) {
	return i.Repo.ClearNotifications(ctx, userID)
}

func (i Inbox) Preferences(ctx context.Context, userID string) (domain.Preferences, error) {
	if _, err := i.Repo.GetEmployee(ctx, userID); err != nil {
		return domain.Preferences{}, err
	}
	return i.Repo.GetPreferences(ctx, userID)
}

func (i Inbox) SavePreferences(ctx context.Context, p domain.Preferences) error {
	if _, err := i.Repo.GetEmployee(ctx, p.UserID); err != nil {
		return err
	}
	return i.Repo.UpsertPreferences(ctx, p)
}
