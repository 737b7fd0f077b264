package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type claims struct {
	Scope      string `json:"scope"`
	Permission int    `json:"permission"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 capability tokens with a single shared secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec returns a codec signing with secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrSigningKey
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a new credential. A zero ttl yields a token that is already expired.
func (c *Codec) Issue(scope string, perm Permission, ttl time.Duration) (string, Credential, error) {
	if scope == "" {
		scope = WildcardScope
	}
	if _, err := ParsePermission(int(perm)); err != nil {
		return "", Credential{}, err
	}
	if ttl < 0 || ttl > MaxLifetimeDays*24*time.Hour {
		return "", Credential{}, fmt.Errorf("credential lifetime out of range: %s", ttl)
	}

	issued := jwt.NewNumericDate(c.now())
	expires := jwt.NewNumericDate(issued.Add(ttl))
	cred := Credential{
		ID:         uuid.NewString(),
		Scope:      scope,
		Permission: perm,
		IssuedAt:   issued.Time,
		ExpiresAt:  expires.Time,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Scope:      cred.Scope,
		Permission: int(cred.Permission),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        cred.ID,
			IssuedAt:  issued,
			ExpiresAt: expires,
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", Credential{}, fmt.Errorf("sign credential: %w", err)
	}
	return signed, cred, nil
}

// Verify checks the signature and expiry of a token and returns its content.
func (c *Codec) Verify(token string) (Credential, error) {
	if token == "" {
		return Credential{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	perm, err := ParsePermission(cl.Permission)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if cl.Scope == "" {
		return Credential{}, fmt.Errorf("%w: missing scope", ErrInvalidCredential)
	}

	cred := Credential{
		ID:         cl.ID,
		Scope:      cl.Scope,
		Permission: perm,
		ExpiresAt:  cl.ExpiresAt.Time,
	}
	if cl.IssuedAt != nil {
		cred.IssuedAt = cl.IssuedAt.Time
		if !cred.ExpiresAt.After(cred.IssuedAt) {
			return Credential{}, fmt.Errorf("%w: token is expired", ErrInvalidCredential)
		}
	}
	return cred, nil
}
