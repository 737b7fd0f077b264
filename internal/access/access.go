// Package access gates HTTP routes behind a credential check.
package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vapi/internal/credential"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrOutOfScope        = errors.New("credential scope does not cover this resource")
	ErrNoPermission      = errors.New("credential permission is too low")
)

// QueryParam is the query-string fallback for the credential.
const QueryParam = "api_key"

// Guard decides whether a request may act on scope with at least perm.
type Guard interface {
	Authorize(r *http.Request, scope string, perm credential.Permission) (credential.Credential, error)
}

// Verifier decodes a presented token.
type Verifier interface {
	Verify(token string) (credential.Credential, error)
}

// TokenFromRequest extracts the presented token. An "Authorization: <scheme>
// <token>" header wins over the api_key query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if _, token, ok := strings.Cut(h, " "); ok {
			return strings.TrimSpace(token)
		}
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryParam))
}

// CredentialGuard verifies signed credentials.
type CredentialGuard struct {
	verifier Verifier
}

// NewCredentialGuard returns a guard over v.
func NewCredentialGuard(v Verifier) *CredentialGuard {
	return &CredentialGuard{verifier: v}
}

// Authorize implements Guard.
func (g *CredentialGuard) Authorize(r *http.Request, scope string, perm credential.Permission) (credential.Credential, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return credential.Credential{}, ErrMissingCredential
	}
	cred, err := g.verifier.Verify(token)
	if err != nil {
		return credential.Credential{}, err
	}
	if cred.Covers(scope, perm) {
		return cred, nil
	}
	if !credential.MatchScope(cred.Scope, scope) {
		return credential.Credential{}, fmt.Errorf("%w: have %q, need %q", ErrOutOfScope, cred.Scope, scope)
	}
	return credential.Credential{}, fmt.Errorf("%w: have %d, need %d", ErrNoPermission, cred.Permission, perm)
}

// KeySource yields the shared key stored by the legacy deployment.
type KeySource interface {
	SharedKey(ctx context.Context) (string, error)
}

// SharedKeyGuard compares the presented key against the stored settings row.
// A match grants every scope at the administrative level.
type SharedKeyGuard struct {
	keys KeySource
}

// NewSharedKeyGuard returns a guard reading the key from src on every request.
func NewSharedKeyGuard(src KeySource) *SharedKeyGuard {
	return &SharedKeyGuard{keys: src}
}

// Authorize implements Guard.
func (g *SharedKeyGuard) Authorize(r *http.Request, _ string, _ credential.Permission) (credential.Credential, error) {
	presented := TokenFromRequest(r)
	if presented == "" {
		return credential.Credential{}, ErrMissingCredential
	}
	stored, err := g.keys.SharedKey(r.Context())
	if err != nil {
		return credential.Credential{}, fmt.Errorf("%w: %w", credential.ErrInvalidCredential, err)
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
		return credential.Credential{}, fmt.Errorf("%w: api key mismatch", credential.ErrInvalidCredential)
	}
	return credential.Credential{
		Scope:      credential.WildcardScope,
		Permission: credential.PermReadWriteDelete,
	}, nil
}

var (
	_ Guard = (*CredentialGuard)(nil)
	_ Guard = (*SharedKeyGuard)(nil)
)

type credentialCtxKey struct{}

// WithCredential attaches an accepted credential to ctx.
func WithCredential(ctx context.Context, cred credential.Credential) context.Context {
	return context.WithValue(ctx, credentialCtxKey{}, cred)
}

// CredentialFrom returns the credential accepted for the request, if any.
func CredentialFrom(ctx context.Context) (credential.Credential, bool) {
	cred, ok := ctx.Value(credentialCtxKey{}).(credential.Credential)
	return cred, ok
}

// Reason maps a guard error to a short metrics label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing"
	case errors.Is(err, ErrOutOfScope):
		return "scope"
	case errors.Is(err, ErrNoPermission):
		return "permission"
	default:
		return "invalid"
	}
}
