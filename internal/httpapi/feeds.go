package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vapi/internal/feed"
	"vapi/internal/respond"
	"vapi/internal/service"
	"vapi/internal/storage"
	"vapi/internal/window"
)

const maxBodyBytes = 1 << 20

// resolver picks the feed a request addresses.
type resolver func(r *http.Request) (feed.Definition, error)

func (a *API) pathFeed(scope string) resolver {
	return func(r *http.Request) (feed.Definition, error) {
		name := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "name")))
		return a.deps.Registry.Get(scope, name)
	}
}

func fixedFeed(def feed.Definition) resolver {
	return func(*http.Request) (feed.Definition, error) { return def, nil }
}

func (a *API) readFeed(svc *service.Service, resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := resolve(r)
		if err != nil {
			respond.Error(w, http.StatusNotFound, err.Error())
			return
		}

		q := r.URL.Query()
		filter := storage.GroupFilter{}
		if def.Grouped() {
			filter.Group = def.NormalizeGroup(q.Get(def.GroupField))
			if date := q.Get("date"); date != "" {
				from, to, err := window.Day(date, a.loc)
				if err != nil {
					respond.Error(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD format.")
					return
				}
				filter.From, filter.To = from, to
			}
		}

		snaps, err := svc.Read(r.Context(), def, window.FromQuery(q), filter)
		if err != nil {
			a.logger.Warn().Err(err).Str("feed", def.Key()).Msg("feed read failed")
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		results := make([]map[string]any, 0, len(snaps))
		for _, snap := range snaps {
			results = append(results, encodeSnapshot(def, snap))
		}
		respond.Results(w, http.StatusOK, results)
	}
}

func (a *API) writeFeed(svc *service.Service, resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := resolve(r)
		if err != nil {
			respond.Error(w, http.StatusNotFound, err.Error())
			return
		}

		candidates, err := def.ParseCandidates(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		notify := r.URL.Query().Get("fcm") == "1"
		res, err := svc.Write(r.Context(), def, candidates, notify)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		if res.Changed {
			respond.Results(w, http.StatusCreated, http.StatusCreated)
			return
		}
		respond.Results(w, http.StatusOK, http.StatusOK)
	}
}

// encodeSnapshot renders a snapshot as the flat result object clients expect:
// exact decimal values, the group key under its field name and the capture
// time as unix seconds in a string.
func encodeSnapshot(def feed.Definition, snap storage.Snapshot) map[string]any {
	out := make(map[string]any, len(snap.Fields)+2)
	for name, v := range snap.Fields {
		out[name] = json.Number(v.String())
	}
	if def.Grouped() {
		out[def.GroupField] = snap.Group
	}
	out["datetime"] = strconv.FormatInt(snap.CapturedAt.Unix(), 10)
	return out
}
