package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	logx "cronwait/pkg/logx"
)

type RouterOptions struct {
	Calc  Calculator
	Clock Clock // default: time.Now
	Log   logx.Logger

	// Token bucket applied to every route; 0 disables it.
	RatePerSec int
	Burst      int

	Pprof PprofConfig
}

// NewRouter wires the public routes and middleware.
func NewRouter(opts RouterOptions) *mux.Router {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	h := &handlers{calc: opts.Calc, now: now, log: log}

	r := mux.NewRouter()
	r.Use(recoverer(log), accessLog(log), rateLimit(opts.RatePerSec, opts.Burst))

	r.HandleFunc("/", h.next).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/test/{seconds}", h.echo).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet, http.MethodHead)
	mountPprof(r, opts.Pprof)

	return r
}
