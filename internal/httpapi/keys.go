package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"vapi/internal/credential"
	"vapi/internal/feed"
	"vapi/internal/respond"
)

var issuableScopes = map[string]bool{
	credential.WildcardScope: true,
	feed.ScopeGold:           true,
	feed.ScopeExchangeRate:   true,
	feed.ScopeInterestRate:   true,
}

type issuedKey struct {
	APIKey     string `json:"api_key"`
	Scope      string `json:"scope"`
	Permission int    `json:"permission"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

// requestAPIKey issues a credential from ?scope=&permission=&dtl=. dtl counts
// days; zero yields a token that is already expired.
func (a *API) requestAPIKey(w http.ResponseWriter, r *http.Request) {
	if a.deps.Codec == nil {
		respond.Error(w, http.StatusServiceUnavailable, "credential issuance is not configured")
		return
	}
	q := r.URL.Query()

	scope := strings.TrimSpace(q.Get("scope"))
	if scope == "" {
		scope = credential.WildcardScope
	}
	if !issuableScopes[scope] {
		respond.Error(w, http.StatusBadRequest, "unknown scope "+strconv.Quote(scope))
		return
	}

	perm := credential.PermRead
	if raw := q.Get("permission"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "permission must be an integer")
			return
		}
		if perm, err = credential.ParsePermission(n); err != nil {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ttl := a.deps.Auth.DefaultTTL()
	if raw := q.Get("dtl"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "dtl must be a number of days")
			return
		}
		if ttl, err = credential.LifetimeDays(days); err != nil {
			respond.Error(w, http.StatusBadRequest, "dtl: "+err.Error())
			return
		}
	}

	token, cred, err := a.deps.Codec.Issue(scope, perm, ttl)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue credential failed")
		respond.Error(w, http.StatusInternalServerError, "could not issue credential")
		return
	}
	a.logger.Info().Str("jti", cred.ID).Str("scope", cred.Scope).Int("permission", int(cred.Permission)).
		Time("expires_at", cred.ExpiresAt).Msg("credential issued")

	respond.Results(w, http.StatusOK, issuedKey{
		APIKey:     token,
		Scope:      cred.Scope,
		Permission: int(cred.Permission),
		IssuedAt:   cred.IssuedAt.Unix(),
		ExpiresAt:  cred.ExpiresAt.Unix(),
	})
}
