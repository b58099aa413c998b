package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"absence-api/internal/model"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, `WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (model.User, error) {
	var u model.User
	var roles []string
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, password_hash, group_id, roles, created_at, updated_at
		 FROM users `+where, arg).
		Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.GroupID, &roles, &u.CreatedAt, &u.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}

	u.Roles = model.ParseRoleSet(roles)
	return u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`,
		strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, group_id, roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.GroupID, u.Roles.Names(), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is the unique_violation class, here only the email index.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateRoles(ctx context.Context, id string, roles model.RoleSet) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET roles = $2, updated_at = now() WHERE id = $1`,
		id, roles.Names())
	if err != nil {
		return fmt.Errorf("update user roles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, q model.UserQuery) ([]model.UserProfile, model.Meta, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 200 {
		q.Limit = 200
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	argIdx := 1

	if name := strings.TrimSpace(q.Name); name != "" {
		where = append(where, fmt.Sprintf("lower(full_name) LIKE lower($%d)", argIdx))
		args = append(args, "%"+name+"%")
		argIdx++
	}
	if q.Role != nil {
		where = append(where, fmt.Sprintf("$%d = ANY(roles)", argIdx))
		args = append(args, q.Role.String())
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count users: %w", err)
	}

	meta := model.NewMeta(q.Page, q.Limit, total)

	dataQuery := fmt.Sprintf(
		`SELECT id, full_name, email, group_id, roles
		 FROM users %s
		 ORDER BY full_name
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, q.Limit, (q.Page-1)*q.Limit)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserProfile, 0)
	for rows.Next() {
		var p model.UserProfile
		var roles []string
		if err := rows.Scan(&p.ID, &p.FullName, &p.Email, &p.GroupID, &roles); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan user: %w", err)
		}
		p.Roles = model.ParseRoleSet(roles).Names()
		users = append(users, p)
	}
	return users, meta, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
