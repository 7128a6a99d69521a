package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	logx "cronwait/pkg/logx"
)

// Calculator computes the countdown served on "/".
type Calculator interface {
	NextIntervalSeconds(now time.Time) (int64, error)
}

// Clock returns the reference instant for a request.
type Clock func() time.Time

const msgCalcFailed = "Failed to calculate next time"

type errorBody struct {
	Error string `json:"error"`
}

type handlers struct {
	calc Calculator
	now  Clock
	log  logx.Logger
}

func (h *handlers) next(w http.ResponseWriter, r *http.Request) {
	secs, err := h.calc.NextIntervalSeconds(h.now())
	if err != nil {
		h.log.Error("next time calculation failed", logx.Err(err))
		writeJSONError(w, http.StatusInternalServerError, msgCalcFailed)
		return
	}
	writeText(w, http.StatusOK, strconv.FormatInt(secs, 10))
}

func (h *handlers) echo(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, mux.Vars(r)["seconds"])
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	b, _ := json.Marshal(errorBody{Error: msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
