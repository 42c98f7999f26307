package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PrincipalKind distinguishes the two authenticable identity variants
type PrincipalKind string

const (
	KindUser  PrincipalKind = "user"
	KindAdmin PrincipalKind = "admin"
)

// Valid reports whether k is one of the known principal kinds
func (k PrincipalKind) Valid() bool {
	return k == KindUser || k == KindAdmin
}

// Role is the authorization role carried in session tokens
type Role string

const (
	RoleUser       Role = "User"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleModerator  Role = "MODERATOR"
)

// ParseAdminRole accepts only the closed set of admin roles
func ParseAdminRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown admin role %q", s)
}

// OwnerRef identifies a principal across both variants
type OwnerRef struct {
	Kind PrincipalKind
	ID   uuid.UUID
}

func (r OwnerRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

// Lockout tracks failed primary-credential attempts.
// IsLocked implies LockUntil is set.
type Lockout struct {
	AttemptCount int
	LastAttempt  *time.Time
	IsLocked     bool
	LockUntil    *time.Time
}

// LockedAt reports whether the lock is still in force at now
func (l Lockout) LockedAt(now time.Time) bool {
	return l.IsLocked && l.LockUntil != nil && l.LockUntil.After(now)
}

// Principal represents a user or an admin.
// Identity is the unique login field: email for users, username for admins.
type Principal struct {
	ID           uuid.UUID
	Kind         PrincipalKind
	Identity     string
	Email        string
	Name         string
	Phone        string
	Role         Role
	PasswordHash string
	IsVerified   bool
	Lockout      Lockout
	LastLogin    *time.Time
	CreatedAt    time.Time
}

// Ref returns the tagged reference for the principal
func (p Principal) Ref() OwnerRef {
	return OwnerRef{Kind: p.Kind, ID: p.ID}
}

// OtpRecord holds a hashed one-time code. It is never updated in place
// except for the wrong-code counter.
type OtpRecord struct {
	ID           uuid.UUID
	Owner        OwnerRef
	CodeHash     string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	AttemptCount int
}

// ActivityAction enumerates audited events
type ActivityAction string

const (
	ActionLogin             ActivityAction = "LOGIN"
	ActionLogout            ActivityAction = "LOGOUT"
	ActionRegistration      ActivityAction = "REGISTRATION"
	ActionPasswordChange    ActivityAction = "PASSWORD_CHANGE"
	ActionEmailVerification ActivityAction = "EMAIL_VERIFICATION"
	ActionOtpLogin          ActivityAction = "OTP_LOGIN"
)

// Location is the result of an IP geolocation lookup
type Location struct {
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Device describes the client parsed from its user agent
type Device struct {
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

// ActivityEntry is an append-only audit record
type ActivityEntry struct {
	ID        uuid.UUID
	Principal *OwnerRef
	Email     string
	Action    ActivityAction
	IPAddress string
	UserAgent string
	Location  *Location
	Device    Device
	Success   bool
	Timestamp time.Time
}
