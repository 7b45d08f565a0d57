package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/engine/auth"
	"signoff/internal/notify"
	"signoff/internal/repo"
)

func registerNotifications(api huma.API, inbox notify.Inbox, gen notify.Generator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "The caller's notifications, newest first",
		Description: "Notifications the caller opted out of are left out. Groups are filled when the caller prefers grouping by project or asks for it.",
	}, func(ctx context.Context, input *struct {
		Unread  bool `query:"unread"`
		Grouped bool `query:"grouped"`
	}) (*struct {
		Body NotificationListResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, prefs, err := inbox.List(ctx, actorID, input.Unread)
		if err != nil {
			return nil, handleError(err)
		}
		res := NotificationListResponse{Items: nonNilSlice(items)}
		if input.Grouped || prefs.GroupByProject {
			res.Groups = notify.GroupByProject(items)
		}
		return &struct {
			Body NotificationListResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark one notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := inbox.MarkRead(ctx, actorID, input.NotificationID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-all-notifications",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark every notification read",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CountResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := inbox.MarkAllRead(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CountResponse `json:"body"`
		}{Body: CountResponse{Count: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-notifications",
		Method:      http.MethodDelete,
		Path:        "/notifications",
		Summary:     "Delete every notification of the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CountResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := inbox.Clear(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CountResponse `json:"body"`
		}{Body: CountResponse{Count: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-notifications",
		Method:      http.MethodPost,
		Path:        "/notifications/generate",
		Summary:     "Run the deadline notification generator now",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CountResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		emp, err := inbox.Repo.GetEmployee(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := auth.Require(emp, auth.EmployeeManage, nil); err != nil {
			return nil, handleError(err)
		}
		n, err := gen.Run(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CountResponse `json:"body"`
		}{Body: CountResponse{Count: int64(n)}}, nil
	})
}

func registerPreferences(api huma.API, inbox notify.Inbox) {
	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/preferences",
		Summary:     "Notification preferences of the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Preferences `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := inbox.Preferences(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Preferences `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-preferences",
		Method:      http.MethodPut,
		Path:        "/preferences",
		Summary:     "Replace notification preferences of the caller",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ReceiveDeadlineAlerts     bool `json:"receive_deadline_alerts"`
			ReceiveNotPertinentAlerts bool `json:"receive_not_pertinent_alerts"`
			GroupByProject            bool `json:"group_by_project"`
		} `json:"body"`
	}) (*struct {
		Body domain.Preferences `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p := domain.Preferences{
			UserID:                    actorID,
			ReceiveDeadlineAlerts:     input.Body.ReceiveDeadlineAlerts,
			ReceiveNotPertinentAlerts: input.Body.ReceiveNotPertinentAlerts,
			GroupByProject:            input.Body.GroupByProject,
		}
		if err := inbox.SavePreferences(ctx, p); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Preferences `json:"body"`
		}{Body: p}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats-overview",
		Method:      http.MethodGet,
		Path:        "/stats/overview",
		Summary:     "Dashboard figures",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body repo.Overview `json:"body"`
	}, error) {
		o, err := e.Repo.Overview(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		o.BudgetPerService = nonNilSlice(o.BudgetPerService)
		o.ProjectsPerMonth = nonNilSlice(o.ProjectsPerMonth)
		return &struct {
			Body repo.Overview `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-top-projects",
		Method:      http.MethodGet,
		Path:        "/stats/top-projects",
		Summary:     "Projects ranked by validated task share",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []repo.ProjectProgress `json:"body"`
	}, error) {
		items, err := e.Repo.TopProjects(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []repo.ProjectProgress `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
