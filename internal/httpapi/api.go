package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"vapi/internal/access"
	"vapi/internal/config"
	"vapi/internal/credential"
	"vapi/internal/feed"
	"vapi/internal/legacy"
	"vapi/internal/metrics"
	"vapi/internal/respond"
	"vapi/internal/service"
	"vapi/internal/version"
)

// Legacy wires the pre-v2 routes. Feeds runs the shared pipeline over the
// legacy price tables.
type Legacy struct {
	Directory  *legacy.Directory
	Businesses *legacy.Businesses
	Feeds      *service.Service
	Defs       []feed.Definition
	Guard      access.Guard
}

// Deps are the collaborators of the API.
type Deps struct {
	Registry *feed.Registry
	Feeds    *service.Service
	Codec    *credential.Codec
	// Guard gates the v2 routes. Defaults to a credential guard over Codec.
	Guard    access.Guard
	Legacy   *Legacy
	HTTP     config.HTTPConfig
	Auth     config.AuthConfig
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// API holds the handlers.
type API struct {
	deps   Deps
	guard  access.Guard
	loc    *time.Location
	logger zerolog.Logger
}

// New builds the API.
func New(deps Deps) *API {
	guard := deps.Guard
	if guard == nil && deps.Codec != nil {
		guard = access.NewCredentialGuard(deps.Codec)
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &API{
		deps:   deps,
		guard:  guard,
		loc:    loc,
		logger: deps.Logger.With().Str("component", "httpapi").Logger(),
	}
}

// Handler returns the router serving every route.
func (a *API) Handler() http.Handler {
	return NewRouter(a.Routes(), a.deps.HTTP, a.deps.Metrics, a.logger)
}

// Routes builds the route table.
func (a *API) Routes() []Route {
	routes := []Route{
		{Method: http.MethodGet, Pattern: "/healthz", Handler: a.health},
	}

	for _, scope := range []string{feed.ScopeGold, feed.ScopeExchangeRate, feed.ScopeInterestRate} {
		resolve := a.pathFeed(scope)
		pattern := "/api/v2/" + scope + "/{name}"
		routes = append(routes,
			Route{Method: http.MethodGet, Pattern: pattern, Guard: a.guard, Scope: scope, Perm: credential.PermRead,
				Handler: a.readFeed(a.deps.Feeds, resolve)},
			Route{Method: http.MethodPost, Pattern: pattern, Guard: a.guard, Scope: scope, Perm: credential.PermReadWrite,
				Handler: a.writeFeed(a.deps.Feeds, resolve)},
		)
	}

	issue := Route{Method: http.MethodGet, Pattern: "/api/request_api_key", Handler: a.requestAPIKey}
	if !a.deps.Auth.OpenIssuance {
		issue.Guard = a.guard
		issue.Scope = credential.WildcardScope
		issue.Perm = credential.PermReadWriteDelete
	}
	routes = append(routes, issue)

	if a.deps.Legacy != nil {
		routes = append(routes, a.legacyRoutes()...)
	}
	return routes
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}
