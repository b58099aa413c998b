package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"absence-api/internal/access"
	"absence-api/internal/model"
	"absence-api/pkg/apierror"
)

type userAdminStore interface {
	userStore
	UpdateRoles(ctx context.Context, id string, roles model.RoleSet) error
	List(ctx context.Context, q model.UserQuery) ([]model.UserProfile, model.Meta, error)
	Count(ctx context.Context) (int, error)
}

// UserService covers the directory endpoints: listing users for reviewers
// and role assignment for administrators.
type UserService struct {
	users  userAdminStore
	logger *slog.Logger
}

func NewUserService(users userAdminStore, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) Get(ctx context.Context, actor model.Actor, id string) (model.UserProfile, error) {
	if actor.ID != id && !access.CanListUsers(actor) {
		return model.UserProfile{}, apierror.Forbidden("you do not have access to user records")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	return user.Profile(), nil
}

func (s *UserService) List(ctx context.Context, actor model.Actor, q model.UserQuery) ([]model.UserProfile, model.Meta, error) {
	if !access.CanListUsers(actor) {
		return nil, model.Meta{}, apierror.Forbidden("you do not have access to user listings")
	}
	return s.users.List(ctx, q)
}

// SetRoles replaces a user's role set. The target keeps at least one role
// because the request DTO refuses an empty list upstream.
func (s *UserService) SetRoles(ctx context.Context, actor model.Actor, id string, roleNames []string) (model.UserProfile, error) {
	if !access.CanManageUsers(actor) {
		return model.UserProfile{}, apierror.Forbidden("only administrators can change roles")
	}

	roles := model.ParseRoleSet(roleNames)
	if roles == 0 {
		return model.UserProfile{}, apierror.Validation("no valid roles given", "")
	}

	if err := s.users.UpdateRoles(ctx, id, roles); err != nil {
		return model.UserProfile{}, err
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	s.logger.Info("user roles updated", "user_id", id, "roles", roles.Names(), "actor_id", actor.ID)
	return user.Profile(), nil
}

// EnsureSeedAdmin creates the bootstrap dean-office account when the user
// table is empty, so a fresh deployment has someone who can approve.
func (s *UserService) EnsureSeedAdmin(ctx context.Context, email string, password string) error {
	if email == "" || password == "" {
		return nil
	}
	count, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Roles:        model.NewRoleSet(model.RoleAdmin, model.RoleDeanOffice),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("create seed admin: %w", err)
	}
	s.logger.Info("seeded administrator account", "email", email)
	return nil
}
