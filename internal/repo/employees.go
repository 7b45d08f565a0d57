package repo

import (
	"context"
	"database/sql"
	"strings"

	"signoff/internal/domain"
)

const employeeColumns = `id,name,email,password_hash,role,COALESCE(service_id,''),active,failed_logins,locked_until,created_at,last_login_at`

type EmployeeFilters struct {
	ServiceID  string
	Role       string
	ActiveOnly bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (domain.Employee, error) {
	var e domain.Employee
	var active int
	var locked, lastLogin sql.NullString
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.PasswordHash, &e.Role, &e.ServiceID, &active, &e.FailedLogins, &locked, &e.CreatedAt, &lastLogin)
	if err != nil {
		return e, err
	}
	e.Active = active == 1
	e.LockedUntil = stringPtr(locked)
	e.LastLoginAt = stringPtr(lastLogin)
	return e, nil
}

func (r Repo) InsertEmployee(ctx context.Context, e domain.Employee) error {
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	_, err := r.q().ExecContext(ctx, `INSERT INTO employees(id,name,email,password_hash,role,service_id,active,failed_logins,created_at) VALUES (?,?,?,?,?,?,?,0,?)`,
		e.ID, e.Name, e.Email, e.PasswordHash, e.Role, nullable(e.ServiceID), boolInt(e.Active), e.CreatedAt)
	if isUniqueViolation(err) {
		return ConflictError{Kind: "employee", ID: e.Email, Reason: "email already registered"}
	}
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	e, err := scanEmployee(r.q().QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return e, notFound("employee", id)
	}
	return e, err
}

// GetEmployeeByEmail matches case-insensitively.
func (r Repo) GetEmployeeByEmail(ctx context.Context, email string) (domain.Employee, error) {
	email = strings.TrimSpace(email)
	e, err := scanEmployee(r.q().QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email=? COLLATE NOCASE`, email))
	if err == sql.ErrNoRows {
		return e, notFound("employee", email)
	}
	return e, err
}

func (r Repo) ListEmployees(ctx context.Context, f EmployeeFilters) ([]domain.Employee, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ServiceID != "" {
		clauses = append(clauses, "service_id=?")
		args = append(args, f.ServiceID)
	}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=1")
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// UpdateEmployee writes profile, role, service and active flag.
func (r Repo) UpdateEmployee(ctx context.Context, e domain.Employee) error {
	res, err := r.q().ExecContext(ctx, `UPDATE employees SET name=?, role=?, service_id=?, active=? WHERE id=?`,
		e.Name, e.Role, nullable(e.ServiceID), boolInt(e.Active), e.ID)
	if err != nil {
		return err
	}
	return affectedOne(res, "employee", e.ID)
}

// RecordLoginAttempt stores lockout bookkeeping after a login attempt.
func (r Repo) RecordLoginAttempt(ctx context.Context, id string, failed int, lockedUntil, lastLoginAt *string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE employees SET failed_logins=?, locked_until=?, last_login_at=COALESCE(?, last_login_at) WHERE id=?`,
		failed, nullableStringPtr(lockedUntil), nullableStringPtr(lastLoginAt), id)
	if err != nil {
		return err
	}
	return affectedOne(res, "employee", id)
}

func (r Repo) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE employees SET password_hash=? WHERE id=?`, hash, id)
	if err != nil {
		return err
	}
	return affectedOne(res, "employee", id)
}
