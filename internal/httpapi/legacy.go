package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vapi/internal/credential"
	"vapi/internal/respond"
)

func (a *API) legacyRoutes() []Route {
	l := a.deps.Legacy
	var routes []Route

	if l.Directory != nil {
		provinces := a.provinces
		districts := a.districts("pid")
		wards := a.wards("did")
		for _, p := range []string{"/api/province/", "/api/v2/province/"} {
			routes = append(routes, Route{Method: http.MethodGet, Pattern: p, Handler: provinces})
		}
		for _, p := range []string{
			"/api/province/{pid}/",
			"/api/province/{pid}/district/",
			"/api/province/district/{pid}",
			"/api/v2/province/district/{pid}",
		} {
			routes = append(routes, Route{Method: http.MethodGet, Pattern: p, Handler: districts})
		}
		for _, p := range []string{
			"/api/province/{pid}/{did}/",
			"/api/province/{pid}/district/{did}/",
			"/api/province/{pid}/district/{did}/ward/",
			"/api/province/ward/{did}",
			"/api/v2/province/ward/{did}",
		} {
			routes = append(routes, Route{Method: http.MethodGet, Pattern: p, Handler: wards})
		}
	}

	if l.Businesses != nil {
		routes = append(routes,
			Route{Method: http.MethodGet, Pattern: "/api/vbiz/search/{keyword}", Handler: a.searchBusinesses},
			Route{Method: http.MethodGet, Pattern: "/api/vbiz/{code}", Handler: a.lookupBusiness},
		)
	}

	if l.Feeds != nil {
		guard := l.Guard
		if guard == nil {
			guard = a.guard
		}
		for _, def := range l.Defs {
			pattern := "/api/" + def.Scope + "/" + def.Name
			resolve := fixedFeed(def)
			routes = append(routes,
				Route{Method: http.MethodGet, Pattern: pattern, Guard: guard, Scope: def.Scope, Perm: credential.PermRead,
					Handler: a.readFeed(l.Feeds, resolve)},
				Route{Method: http.MethodPost, Pattern: pattern, Guard: guard, Scope: def.Scope, Perm: credential.PermReadWrite,
					Handler: a.writeFeed(l.Feeds, resolve)},
			)
		}
	}
	return routes
}

func (a *API) provinces(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Legacy.Directory.Provinces(r.Context())
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	respond.Results(w, http.StatusOK, out)
}

func (a *API) districts(param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := a.deps.Legacy.Directory.Districts(r.Context(), chi.URLParam(r, param))
		if err != nil {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		respond.Results(w, http.StatusOK, out)
	}
}

func (a *API) wards(param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := a.deps.Legacy.Directory.Wards(r.Context(), chi.URLParam(r, param))
		if err != nil {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		respond.Results(w, http.StatusOK, out)
	}
}

func (a *API) searchBusinesses(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Legacy.Businesses.Search(r.Context(), strings.TrimSpace(chi.URLParam(r, "keyword")))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	respond.Results(w, http.StatusOK, out)
}

func (a *API) lookupBusiness(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Legacy.Businesses.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	respond.Results(w, http.StatusOK, out)
}
