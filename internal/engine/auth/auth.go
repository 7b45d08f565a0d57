package auth

import (
	"fmt"

	"signoff/internal/domain"
)

const (
	ProjectCertify = "project.certify"
	ProjectEdit    = "project.edit"
	TaskVote       = "task.vote"
	TaskEdit       = "task.edit"
	TaskDelete     = "task.delete"
	EmployeeManage = "employee.manage"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	ActorID    string
}

func (e ForbiddenError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required for %s", e.Permission, e.ActorID)
}

// Can reports whether the employee holds capability. The project is only
// consulted for ownership checks and may be nil otherwise.
func Can(emp domain.Employee, capability string, project *domain.Project) bool {
	if !emp.Active {
		return false
	}
	switch capability {
	case ProjectCertify, EmployeeManage:
		return emp.Role == domain.RoleSupervisor
	case TaskVote, TaskEdit:
		return true
	case ProjectEdit, TaskDelete:
		if emp.Role == domain.RoleSupervisor {
			return true
		}
		return project != nil && project.OwnerID == emp.ID
	}
	return false
}

// Require is Can returning a ForbiddenError.
func Require(emp domain.Employee, capability string, project *domain.Project) error {
	if Can(emp, capability, project) {
		return nil
	}
	return ForbiddenError{Permission: capability, ActorID: emp.ID}
}

// Capabilities lists what the employee may do on project.
func Capabilities(emp domain.Employee, project *domain.Project) []string {
	var res []string
	for _, c := range []string{ProjectCertify, ProjectEdit, TaskVote, TaskEdit, TaskDelete, EmployeeManage} {
		if Can(emp, c, project) {
			res = append(res, c)
		}
	}
	return res
}
