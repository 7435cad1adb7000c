// Package models defines the wire types exchanged with the pea-blog content
// service and the entity shapes cached by the client stores.
package models

import "time"

// Role represents a user's permission level. Enforcement on the client is
// advisory; the content service performs the authoritative check.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// User is the authenticated identity returned by /auth/me and /auth/login,
// and the author embedded in articles and comments.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Avatar      *string   `json:"avatar,omitempty"`
	Role        Role      `json:"role"`
	Fingerprint *string   `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Clone returns a copy of u that shares no memory with it.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Avatar = cloneString(u.Avatar)
	c.Fingerprint = cloneString(u.Fingerprint)
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DisplayName returns the name shown next to content. Anonymous comment
// authors have no username and are shown as "guest".
func (u *User) DisplayName() string {
	if u == nil || u.Username == "" {
		return string(RoleGuest)
	}
	return u.Username
}

// LoginRequest carries the credentials posted to /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the payload of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// TokenResponse is the payload of /auth/refresh.
type TokenResponse struct {
	Token string `json:"token"`
}
