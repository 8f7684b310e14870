package httpapi

import (
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/httpx"
	"sitegate.io/internal/portal"
	"sitegate.io/internal/projects"
)

func sessionOrAbort(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		respondErr(w, r, auth.ErrUnauthenticated)
		return auth.Session{}, false
	}
	return sess, true
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrAbort(w, r)
	if !ok {
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	page, err := a.service.ListProjects(r.Context(), sess, q)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrAbort(w, r)
	if !ok {
		return
	}
	p, err := a.service.GetProject(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrAbort(w, r)
	if !ok {
		return
	}
	docs, err := a.service.ListDocuments(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": docs})
}

// decideDocument serves the approve and reject routes; the route fixes the decision.
func (a *API) decideDocument(decision string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionOrAbort(w, r)
		if !ok {
			return
		}
		var body struct {
			Comment string `json:"comment"`
		}
		if r.ContentLength != 0 {
			if err := httpx.DecodeJSON(w, r, &body); err != nil {
				respondErr(w, r, err)
				return
			}
		}
		doc, err := a.service.DecideDocument(r.Context(), sess, chi.URLParam(r, "id"), projects.DecisionInput{
			Decision: decision,
			Comment:  body.Comment,
		})
		if err != nil {
			respondErr(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}

func (a *API) submitReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrAbort(w, r)
	if !ok {
		return
	}
	var in projects.ReportInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	rep, err := a.service.SubmitReport(r.Context(), sess, chi.URLParam(r, "id"), in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rep)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrAbort(w, r)
	if !ok {
		return
	}
	var in projects.ProfileUpdate
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	p, err := a.service.UpdateProfile(r.Context(), sess, in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// parseListQuery reads page, limit, sort_field, sort_direction, status and search. Range and
// whitelist checks happen in ListQuery.Normalize.
func parseListQuery(r *http.Request) (projects.ListQuery, error) {
	v := r.URL.Query()
	verr := &httpx.ValidationError{}
	atoi := func(key string) int {
		raw := v.Get(key)
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add(key, "must be an integer")
			return 0
		}
		return n
	}
	q := projects.ListQuery{
		Page:          atoi("page"),
		Limit:         atoi("limit"),
		SortField:     v.Get("sort_field"),
		SortDirection: v.Get("sort_direction"),
		Status:        v.Get("status"),
		Search:        v.Get("search"),
	}
	return q, verr.OrNil()
}

// pageShell serves the HTML entry point of a portal page. The front end is built separately.
func pageShell(cfg portal.Config, title string) http.HandlerFunc {
	body := fmt.Sprintf(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>%s · %s portal</title></head>
<body data-portal="%s" data-api="%s"><main id="app"></main></body>
</html>
`, html.EscapeString(title), html.EscapeString(cfg.Name), html.EscapeString(cfg.Name), html.EscapeString(cfg.APIPrefix))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}
