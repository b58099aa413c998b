package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"absence-api/internal/model"
	"absence-api/pkg/apierror"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
}

type tokenRevoker interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AuthService issues and validates access tokens. There is a single token
// kind; logout puts the presented token on the revocation ledger until its
// own expiry, so a stolen copy dies with it.
type AuthService struct {
	users     userStore
	blacklist tokenRevoker
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(users userStore, blacklist tokenRevoker, jwtSecret string, accessTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &AuthService{
		users:     users,
		blacklist: blacklist,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.UserProfile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	taken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return model.UserProfile{}, apierror.Conflict("email already registered", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		FullName:     strings.TrimSpace(req.FullName),
		Email:        email,
		PasswordHash: string(hash),
		GroupID:      strings.TrimSpace(req.GroupID),
		Roles:        model.NewRoleSet(model.RoleStudent),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return model.UserProfile{}, apierror.Conflict("email already registered", email)
		}
		return model.UserProfile{}, fmt.Errorf("create user: %w", err)
	}

	return user.Profile(), nil
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenResponse{}, apierror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return model.TokenResponse{}, apierror.Unauthorized("invalid credentials")
	}

	return s.issueToken(user)
}

// Logout revokes the presented token. The ledger entry lives exactly as
// long as the token would have.
func (s *AuthService) Logout(ctx context.Context, claims *model.AuthClaims) error {
	return s.blacklist.Revoke(ctx, claims.RawToken, claims.ExpiresAt)
}

func (s *AuthService) GetProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.UserProfile{}, err
	}
	return user.Profile(), nil
}

// ValidateToken verifies the signature and expiry, then consults the
// revocation ledger. Both checks must pass before a request gets an actor.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.Unauthorized("invalid token signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apierror.Unauthorized("invalid token")
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.Unauthorized("invalid token claims")
	}

	claims := &model.AuthClaims{RawToken: tokenString}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.FullName, _ = claimsMap["name"].(string)
	if claims.UserID == "" {
		return nil, apierror.Unauthorized("invalid token subject")
	}

	if rawRoles, ok := claimsMap["roles"].([]interface{}); ok {
		names := make([]string, 0, len(rawRoles))
		for _, r := range rawRoles {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		claims.Roles = model.ParseRoleSet(names)
	}

	if exp, err := claimsMap.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	revoked, err := s.blacklist.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, apierror.Unauthorized("token has been revoked")
	}

	return claims, nil
}

func (s *AuthService) issueToken(user model.User) (model.TokenResponse, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.accessTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"name":  user.FullName,
		"roles": user.Roles.Names(),
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return model.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessTTL.Seconds()),
		User:        user.Profile(),
	}, nil
}
