package auth

import "time"

type Role string

const (
	// RoleOperator is an internal operator driving the full pipeline.
	RoleOperator Role = "operator"
	// RolePartner is an external partner account; partners only see deals
	// whose referrer name matches their partner name.
	RolePartner Role = "partner"
)

// User is the domain representation of an authenticated account. It mirrors
// the users table and carries no JSON annotations so it can be reused by
// different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	// PartnerName scopes partner accounts to the deals they introduced;
	// nil for operators.
	PartnerName *string
	CreatedAt   time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	Role        Role   `json:"role"`
	PartnerName string `json:"partner_name,omitempty"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the verified identity carried by a token.
type Session struct {
	UserID      string
	Role        Role
	PartnerName string
}
