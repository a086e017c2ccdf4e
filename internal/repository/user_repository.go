package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/utils"
)

const userColumns = "id,name,email,password_hash,role,admin_permissions,banned,ban_reason,last_login,last_ip,created_at,updated_at"

// UserRepo persists application users.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user with role "user" and returns its ID.
func (r *UserRepo) Create(ctx context.Context, name, email, password string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)",
		name, email, hash, model.RoleUser)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// RecordLogin stamps last_login/last_ip after a successful authentication.
func (r *UserRepo) RecordLogin(ctx context.Context, id uint64, ip string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET last_login=NOW(), last_ip=? WHERE id=?", ip, id)
	return err
}

// SetBan flips the banned flag.  Reason is cleared on unban.
func (r *UserRepo) SetBan(ctx context.Context, id uint64, banned bool, reason string) error {
	if !banned {
		reason = ""
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET banned=?, ban_reason=? WHERE id=?", banned, reason, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// GrantAdmin elevates a user to the admin role with the given fine-grained
// permission set.
func (r *UserRepo) GrantAdmin(ctx context.Context, id uint64, perms map[string]bool) error {
	blob, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, admin_permissions=? WHERE id=?",
		model.RoleAdmin, string(blob), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Demote strips admin role and clears the permission set in one statement.
// Used both for ordinary admin revocation and for violation termination.
func (r *UserRepo) Demote(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, admin_permissions=NULL WHERE id=?",
		model.RoleUser, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns users ordered by creation, newest first.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns the total number of users.
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

type rowScanner interface{ Scan(dest ...any) error }

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	u, err := r.scan(row)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func (r *UserRepo) scan(row rowScanner) (model.User, error) {
	var (
		u         model.User
		perms     sql.NullString
		banReason sql.NullString
		lastLogin sql.NullTime
		lastIP    sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &perms,
		&u.Banned, &banReason, &lastLogin, &lastIP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if perms.Valid && perms.String != "" {
		_ = json.Unmarshal([]byte(perms.String), &u.AdminPermissions)
	}
	u.BanReason = banReason.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	u.LastIP = lastIP.String
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
