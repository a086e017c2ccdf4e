package repository

import (
	"context"
	"database/sql"

	"github.com/inkfolio/commission-backend/internal/model"
)

// ActivityRepo writes append-only audit records.  Inserts are best-effort
// from the application's perspective; callers log and ignore failures.
type ActivityRepo struct{ DB *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{DB: db} }

// Insert appends one audit record.
func (r *ActivityRepo) Insert(ctx context.Context, l model.ActivityLog) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO activity_logs (actor_id, action, resource_type, resource_id, detail, ip, user_agent) VALUES (?,?,?,?,?,?,?)",
		l.ActorID, l.Action, l.ResourceType, l.ResourceID, l.Detail, l.IP, l.UserAgent)
	return err
}

// List returns audit records, newest first.
func (r *ActivityRepo) List(ctx context.Context, limit, offset int) ([]model.ActivityLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,actor_id,action,resource_type,resource_id,detail,ip,user_agent,created_at FROM activity_logs ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActivityLog
	for rows.Next() {
		var (
			l       model.ActivityLog
			actorID sql.NullInt64
			detail  sql.NullString
		)
		if err := rows.Scan(&l.ID, &actorID, &l.Action, &l.ResourceType, &l.ResourceID, &detail, &l.IP, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			id := uint64(actorID.Int64)
			l.ActorID = &id
		}
		l.Detail = detail.String
		out = append(out, l)
	}
	return out, rows.Err()
}
