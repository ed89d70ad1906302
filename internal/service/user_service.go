package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"task-service/internal/model"
	"task-service/internal/policy"
)

// UserAdmin is the pair of privileged backend functions.
type UserAdmin interface {
	CreateUser(ctx context.Context, input NewUser) (uuid.UUID, error)
	ListEmails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type NewUser struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role"`
	Phone     *string    `json:"phone,omitempty"`
}

type UserService struct {
	profiles ProfileRepository
	admin    UserAdmin
}

func NewUserService(profiles ProfileRepository, admin UserAdmin) *UserService {
	return &UserService{profiles: profiles, admin: admin}
}

func (s *UserService) ListProfiles(ctx context.Context, principal model.Principal) ([]model.Profile, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, remoteError("load profiles", err)
	}
	return profiles, nil
}

func (s *UserService) ChangeRole(ctx context.Context, principal model.Principal, id uuid.UUID, role model.Role) (*model.Profile, error) {
	target, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "user not found")
		}
		return nil, remoteError("load profile", err)
	}
	if d := policy.CanChangeRole(principal, target, role); !d.Allowed {
		return nil, denied(d)
	}
	if err := s.profiles.UpdateRole(ctx, id, role); err != nil {
		return nil, remoteError("update role", err)
	}
	target.Role = role
	return target, nil
}

func (s *UserService) CreateUser(ctx context.Context, principal model.Principal, input NewUser) (uuid.UUID, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return uuid.Nil, invalid("a valid email is required")
	}
	if len(input.Password) < 8 {
		return uuid.Nil, invalid("password must be at least 8 characters")
	}
	if input.FirstName == "" {
		return uuid.Nil, invalid("first name is required")
	}
	if d := policy.CanCreateUser(principal, input.Role); !d.Allowed {
		return uuid.Nil, denied(d)
	}
	id, err := s.admin.CreateUser(ctx, input)
	if err != nil {
		return uuid.Nil, remoteError("create user", err)
	}
	return id, nil
}

func (s *UserService) ListEmails(ctx context.Context, principal model.Principal, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if d := policy.CanListEmails(principal); !d.Allowed {
		return nil, denied(d)
	}
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	emails, err := s.admin.ListEmails(ctx, ids)
	if err != nil {
		return nil, remoteError("list emails", err)
	}
	return emails, nil
}
