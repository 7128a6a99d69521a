package httpapi

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/gorilla/mux"
)

// PprofConfig mounts net/http/pprof under Prefix when Enabled.
type PprofConfig struct {
	Enabled bool
	Prefix  string
	Token   string
}

func mountPprof(r *mux.Router, cfg PprofConfig) {
	if !cfg.Enabled {
		return
	}
	prefix := normalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")
	wrap := func(h http.HandlerFunc) http.Handler { return withAuth(cfg.Token, h) }

	sub := r.Methods(http.MethodGet, http.MethodPost, http.MethodHead).Subrouter()
	sub.Handle(base, http.RedirectHandler(prefix, http.StatusPermanentRedirect))
	sub.Handle(base+"/cmdline", wrap(hpprof.Cmdline))
	sub.Handle(base+"/profile", wrap(hpprof.Profile))
	sub.Handle(base+"/symbol", wrap(hpprof.Symbol))
	sub.Handle(base+"/trace", wrap(hpprof.Trace))
	sub.PathPrefix(prefix).Handler(wrap(pprofIndexAt(prefix)))
}

// withAuth requires token as a bearer credential or a "token" query
// parameter. An empty token leaves h unguarded.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	want := strings.TrimSpace(token)
	if want == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if presented(r) != want {
			w.Header().Set("WWW-Authenticate", `Bearer realm="pprof"`)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r)
	}
}

// presented returns the credential sent with r; the query wins over the header.
func presented(r *http.Request) string {
	if q := r.URL.Query().Get("token"); q != "" {
		return q
	}
	scheme, cred, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(cred)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprofIndexAt serves pprof.Index (and the named profiles it dispatches
// to) under prefix. Index only understands /debug/pprof/, so the path is
// rewritten on a cloned request.
func pprofIndexAt(prefix string) http.HandlerFunc {
	prefix = normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		rr := r.Clone(r.Context())
		rr.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, rr)
	}
}
