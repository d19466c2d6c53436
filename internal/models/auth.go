package models

import "github.com/golang-jwt/jwt/v5"

// UserRole identifies the caller's role as asserted by the external
// identity collaborator. Token issuance happens outside this service.
type UserRole string

const (
	RoleRegistrar UserRole = "REGISTRAR"
	RoleFaculty   UserRole = "FACULTY"
	RoleStudent   UserRole = "STUDENT"
)

// JWTClaims represents the JWT payload on access tokens this service accepts.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
