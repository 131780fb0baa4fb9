// Package users covers registration, login and profile maintenance.
package users

import (
	"context"
	"strings"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errBadCredentials = apperr.Unauthenticated("invalid email or password")

type Store interface {
	// InsertUser fails with a Conflict error when the email is taken.
	InsertUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
	UpdateUserProfile(ctx context.Context, id primitive.ObjectID, p ProfileUpdate) (models.User, error)
	ListUsers(ctx context.Context, page, limit int) ([]models.User, int64, error)
}

type TokenIssuer interface {
	GenerateToken(user models.User) (string, error)
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate carries only the fields present in the request.
type ProfileUpdate struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type Service struct {
	store    Store
	tokens   TokenIssuer
	admins   map[string]struct{}
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the user service. Registrations whose email appears in
// adminEmails receive the admin role.
func NewService(store Store, tokens TokenIssuer, adminEmails []string) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Service{store: store, tokens: tokens, admins: admins, validate: validator.New(), now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, string, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return models.User{}, "", apperr.FromValidator(err)
	}
	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, "", err
	}
	role := models.RoleUser
	if _, ok := s.admins[in.Email]; ok {
		role = models.RoleAdmin
	}
	user := models.User{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Address:   in.Address,
		Password:  hashed,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertUser(ctx, &user); err != nil {
		return models.User{}, "", err
	}
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (models.User, string, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return models.User{}, "", apperr.FromValidator(err)
	}
	user, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return models.User{}, "", errBadCredentials
		}
		return models.User{}, "", err
	}
	if !auth.CheckPassword(user.Password, in.Password) {
		return models.User{}, "", errBadCredentials
	}
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func (s *Service) Profile(ctx context.Context, caller *auth.AuthContext) (models.User, error) {
	if caller == nil {
		return models.User{}, apperr.Unauthenticated("authentication required")
	}
	return s.store.GetUser(ctx, caller.UserID)
}

func (s *Service) UpdateProfile(ctx context.Context, caller *auth.AuthContext, p ProfileUpdate) (models.User, error) {
	if caller == nil {
		return models.User{}, apperr.Unauthenticated("authentication required")
	}
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	if err := s.validate.Struct(p); err != nil {
		return models.User{}, apperr.FromValidator(err)
	}
	return s.store.UpdateUserProfile(ctx, caller.UserID, p)
}

func (s *Service) List(ctx context.Context, page, limit int) ([]models.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListUsers(ctx, page, limit)
}
