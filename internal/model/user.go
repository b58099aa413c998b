package model

import (
	"strings"
	"time"
)

// Role is a single permission flag. Users hold a RoleSet because the roles
// are not exclusive: a teacher can also sit in the dean office.
type Role uint8

const (
	RoleStudent Role = 1 << iota
	RoleTeacher
	RoleDeanOffice
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleStudent:    "Student",
	RoleTeacher:    "Teacher",
	RoleDeanOffice: "DeanOffice",
	RoleAdmin:      "Admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

// ParseRole maps a role name to its flag. Matching is case-insensitive.
func ParseRole(name string) (Role, bool) {
	for role, n := range roleNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return role, true
		}
	}
	return 0, false
}

type RoleSet uint8

func NewRoleSet(roles ...Role) RoleSet {
	var set RoleSet
	for _, r := range roles {
		set |= RoleSet(r)
	}
	return set
}

func (s RoleSet) Has(r Role) bool { return s&RoleSet(r) != 0 }

func (s RoleSet) Names() []string {
	names := make([]string, 0, 4)
	for _, r := range []Role{RoleStudent, RoleTeacher, RoleDeanOffice, RoleAdmin} {
		if s.Has(r) {
			names = append(names, r.String())
		}
	}
	return names
}

// ParseRoleSet builds a set from role names, dropping anything unknown.
func ParseRoleSet(names []string) RoleSet {
	var set RoleSet
	for _, name := range names {
		if role, ok := ParseRole(name); ok {
			set |= RoleSet(role)
		}
	}
	return set
}

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GroupID      string    `json:"group_id,omitempty"`
	Roles        RoleSet   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is the identity every workflow call receives explicitly. Nothing in
// the core reads identity from ambient state.
type Actor struct {
	ID    string
	Roles RoleSet
}

func (a Actor) Is(r Role) bool { return a.Roles.Has(r) }

type AuthClaims struct {
	UserID    string
	FullName  string
	Roles     RoleSet
	ExpiresAt time.Time
	// RawToken is kept so logout can blacklist exactly what was presented.
	RawToken string
}

func (c *AuthClaims) Actor() Actor {
	return Actor{ID: c.UserID, Roles: c.Roles}
}

type UserProfile struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	GroupID  string   `json:"group_id,omitempty"`
	Roles    []string `json:"roles"`
}

func (u User) Profile() UserProfile {
	return UserProfile{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		GroupID:  u.GroupID,
		Roles:    u.Roles.Names(),
	}
}

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        UserProfile `json:"user"`
}

type UserQuery struct {
	Name  string
	Role  *Role
	Page  int
	Limit int
}
