// Package credential encodes and verifies the signed, expiring capability
// tokens that gate the price-feed API.
package credential

import (
	"errors"
	"fmt"
	"time"
)

// WildcardScope matches every required scope.
const WildcardScope = "*"

// DefaultTTL is the lifetime of a credential when the caller does not ask for one.
const DefaultTTL = 15 * 24 * time.Hour

// MaxLifetimeDays bounds the lifetime a caller may request.
const MaxLifetimeDays = 36500

// LifetimeDays converts a requested lifetime in days into a TTL.
func LifetimeDays(days int) (time.Duration, error) {
	if days < 0 || days > MaxLifetimeDays {
		return 0, fmt.Errorf("lifetime must be between 0 and %d days, got %d", MaxLifetimeDays, days)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// Permission is an ordinal capability level.
type Permission int

const (
	// PermRead allows reads only.
	PermRead Permission = 0
	// PermReadWrite allows reads and snapshot writes.
	PermReadWrite Permission = 1
	// PermReadWriteDelete is the administrative level.
	PermReadWriteDelete Permission = 2
)

// ParsePermission validates an integer permission level.
func ParsePermission(v int) (Permission, error) {
	p := Permission(v)
	if p < PermRead || p > PermReadWriteDelete {
		return 0, fmt.Errorf("permission must be 0, 1 or 2, got %d", v)
	}
	return p, nil
}

func (p Permission) String() string {
	switch p {
	case PermRead:
		return "read"
	case PermReadWrite:
		return "read-write"
	case PermReadWriteDelete:
		return "read-write-delete"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// Credential is the decoded content of a capability token. It is never stored
// server-side.
type Credential struct {
	ID         string
	Scope      string
	Permission Permission
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

var (
	// ErrInvalidCredential covers malformed, forged and expired tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrSigningKey indicates the codec has no usable secret.
	ErrSigningKey = errors.New("credential: signing key not configured")
)

// MatchScope reports whether a granted scope covers the required one.
func MatchScope(granted, required string) bool {
	return granted == WildcardScope || granted == required
}

// Covers reports whether the credential satisfies both the scope and the
// minimum permission of an operation.
func (c Credential) Covers(scope string, required Permission) bool {
	return MatchScope(c.Scope, scope) && c.Permission >= required
}
