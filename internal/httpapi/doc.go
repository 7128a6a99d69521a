// Package httpapi serves the countdown endpoint over HTTP.
//
// Routes:
//   - GET /                  seconds until the next schedule fires (text/plain)
//   - GET /test/{seconds}    echoes the path parameter (debug aid)
//   - GET /healthz           liveness
//   - /debug/pprof/...       optional, see PprofConfig
package httpapi
