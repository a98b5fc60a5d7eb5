package models

import "github.com/golang-jwt/jwt/v5"

// StaffRole is the coarse role carried by staff access tokens. Tokens are
// issued by the central auth service; this gateway only validates them.
type StaffRole string

const (
	RoleTechnician StaffRole = "TECHNICIAN"
	RoleSupervisor StaffRole = "SUPERVISOR"
	RoleAdmin      StaffRole = "ADMIN"
)

// StaffClaims represents the JWT payload of a staff access token.
type StaffClaims struct {
	UserID   string    `json:"user_id"`
	Role     StaffRole `json:"role"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	jwt.RegisteredClaims
}

// ReviewClaims represents the JWT payload of a customer review token.
// Tokens are minted by this gateway when a review link is issued. CodeOK is
// false until the customer exchanges the link's access code; links issued
// without a code get CodeOK tokens straight away.
type ReviewClaims struct {
	LinkID     string `json:"link_id"`
	RecordID   string `json:"record_id"`
	CustomerID string `json:"customer_id"`
	CodeOK     bool   `json:"code_ok"`
	jwt.RegisteredClaims
}

// StaffActor is the request-scoped identity extracted from a validated
// staff token plus transport metadata for auditing.
type StaffActor struct {
	UserID    string
	FullName  string
	Role      StaffRole
	IP        string
	UserAgent string
}
