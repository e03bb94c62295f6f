package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the role carried in access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleParent  UserRole = "PARENT"
)

// Audience is the lower-case role name used on notifications.
type Audience string

const (
	AudienceAdmin   Audience = "admin"
	AudienceTeacher Audience = "teacher"
	AudienceStudent Audience = "student"
	AudienceParent  Audience = "parent"
)

// Audience maps a token role to its notification audience.
func (r UserRole) Audience() Audience {
	switch r {
	case RoleAdmin:
		return AudienceAdmin
	case RoleTeacher:
		return AudienceTeacher
	default:
		return AudienceParent
	}
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Role    UserRole `json:"role"`
	Subject string   `json:"subject,omitempty"`
}

// LoginRequest holds credentials for any role.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterParentRequest creates a parent account.
type RegisterParentRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse returns the access token and the resolved actor.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        Actor  `json:"user"`
}

// JWTClaims is the access token payload.
type JWTClaims struct {
	UserID  string   `json:"user_id"`
	Role    UserRole `json:"role"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Subject string   `json:"subject,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims back into an Actor.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.UserID, Name: c.Name, Email: c.Email, Role: c.Role, Subject: c.Subject}
}
