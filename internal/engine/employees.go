package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/repo"
)

const (
	MinPasswordLength = 6
	MaxFailedLogins   = 5
	LockoutDuration   = 15 * time.Minute
)

var (
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrAccountDisabled = errors.New("account disabled")
)

// LockedError is returned while an account is locked after repeated failures.
type LockedError struct {
	Until string
}

func (e LockedError) Error() string {
	return "account locked until " + e.Until
}

// RegisterOptions are parameters for creating an employee. ActorID may be
// empty for self-registration as a member, or when the store has no
// employee yet.
type RegisterOptions struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Role      string
	ServiceID string
	ActorID   string
}

func (e Engine) RegisterEmployee(ctx context.Context, opts RegisterOptions) (domain.Employee, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	if opts.Name == "" {
		return domain.Employee{}, invalidf("name is required")
	}
	if !strings.Contains(opts.Email, "@") {
		return domain.Employee{}, invalidf("email %q is not valid", opts.Email)
	}
	if len(opts.Password) < MinPasswordLength {
		return domain.Employee{}, invalidf("password must be at least %d characters", MinPasswordLength)
	}
	if opts.Role == "" {
		opts.Role = domain.RoleMember
	}
	if !domain.ValidRole(opts.Role) {
		return domain.Employee{}, invalidf("unknown role %q", opts.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Employee{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	emp := domain.Employee{
		ID:           id,
		Name:         opts.Name,
		Email:        opts.Email,
		Role:         opts.Role,
		ServiceID:    opts.ServiceID,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    e.stamp(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		if opts.Role == domain.RoleSupervisor || opts.ActorID != "" {
			existing, err := r.ListEmployees(ctx, repo.EmployeeFilters{})
			if err != nil {
				return nil, err
			}
			if len(existing) > 0 {
				if opts.ActorID == "" {
					return nil, auth.ForbiddenError{Permission: auth.EmployeeManage}
				}
				if _, err := actor(ctx, r, opts.ActorID, auth.EmployeeManage, nil); err != nil {
					return nil, err
				}
			}
		}
		return nil, r.InsertEmployee(ctx, emp)
	})
	if err != nil {
		return domain.Employee{}, err
	}
	e.logger().WithFields(logrus.Fields{"employee_id": emp.ID, "role": emp.Role}).Info("employee registered")
	return e.Repo.GetEmployee(ctx, emp.ID)
}

// Login checks credentials. Five consecutive failures lock the account for
// fifteen minutes; a success clears the counter.
func (e Engine) Login(ctx context.Context, email, password string) (domain.Employee, error) {
	emp, err := e.Repo.GetEmployeeByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Employee{}, ErrBadCredentials
		}
		return domain.Employee{}, err
	}
	if !emp.Active {
		return domain.Employee{}, ErrAccountDisabled
	}
	now := e.now()
	if emp.LockedUntil != nil {
		until, err := domain.ParseTime(*emp.LockedUntil)
		if err == nil && now.Before(until) {
			return domain.Employee{}, LockedError{Until: *emp.LockedUntil}
		}
		if err == nil {
			emp.FailedLogins = 0
		}
	}
	if bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)) != nil {
		failed := emp.FailedLogins + 1
		var lockedUntil *string
		if failed >= MaxFailedLogins {
			until := domain.FormatTime(now.Add(LockoutDuration))
			lockedUntil = &until
		}
		if err := e.Repo.RecordLoginAttempt(ctx, emp.ID, failed, lockedUntil, nil); err != nil {
			return domain.Employee{}, err
		}
		e.logger().WithFields(logrus.Fields{"employee_id": emp.ID, "failed": failed}).Warn("login failed")
		if lockedUntil != nil {
			return domain.Employee{}, LockedError{Until: *lockedUntil}
		}
		return domain.Employee{}, ErrBadCredentials
	}
	stamp := domain.FormatTime(now)
	if err := e.Repo.RecordLoginAttempt(ctx, emp.ID, 0, nil, &stamp); err != nil {
		return domain.Employee{}, err
	}
	return e.Repo.GetEmployee(ctx, emp.ID)
}

// EmployeeUpdateOptions carries optional changes. Role and active flag
// require employee.manage; anyone may rename themselves.
type EmployeeUpdateOptions struct {
	ID        string
	Name      *string
	Role      *string
	ServiceID *string
	Active    *bool
	ActorID   string
}

func (e Engine) UpdateEmployee(ctx context.Context, opts EmployeeUpdateOptions) (domain.Employee, error) {
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		emp, err := r.GetEmployee(ctx, opts.ID)
		if err != nil {
			return nil, err
		}
		capability := auth.EmployeeManage
		if opts.ActorID == opts.ID && opts.Role == nil && opts.Active == nil {
			capability = ""
		}
		if _, err := actor(ctx, r, opts.ActorID, capability, nil); err != nil {
			return nil, err
		}
		if opts.Name != nil {
			if strings.TrimSpace(*opts.Name) == "" {
				return nil, invalidf("name must not be empty")
			}
			emp.Name = strings.TrimSpace(*opts.Name)
		}
		if opts.Role != nil {
			if !domain.ValidRole(*opts.Role) {
				return nil, invalidf("unknown role %q", *opts.Role)
			}
			emp.Role = *opts.Role
		}
		if opts.ServiceID != nil {
			emp.ServiceID = *opts.ServiceID
		}
		if opts.Active != nil {
			emp.Active = *opts.Active
		}
		return nil, r.UpdateEmployee(ctx, emp)
	})
	if err != nil {
		return domain.Employee{}, err
	}
	return e.Repo.GetEmployee(ctx, opts.ID)
}

// DeactivateEmployee keeps the record so votes and activity still resolve.
func (e Engine) DeactivateEmployee(ctx context.Context, id, actorID string) (domain.Employee, error) {
	inactive := false
	return e.UpdateEmployee(ctx, EmployeeUpdateOptions{ID: id, Active: &inactive, ActorID: actorID})
}

// ResetPassword sets a new password and clears the lockout.
func (e Engine) ResetPassword(ctx context.Context, id, password, actorID string) error {
	if len(password) < MinPasswordLength {
		return invalidf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		if _, err := r.GetEmployee(ctx, id); err != nil {
			return nil, err
		}
		if actorID != id {
			if _, err := actor(ctx, r, actorID, auth.EmployeeManage, nil); err != nil {
				return nil, err
			}
		}
		if err := r.SetPasswordHash(ctx, id, string(hash)); err != nil {
			return nil, err
		}
		return nil, r.RecordLoginAttempt(ctx, id, 0, nil, nil)
	})
}

func (e Engine) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return e.Repo.GetEmployee(ctx, id)
}

func (e Engine) ListEmployees(ctx context.Context, f repo.EmployeeFilters) ([]domain.Employee, error) {
	return e.Repo.ListEmployees(ctx, f)
}
