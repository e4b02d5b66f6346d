package diagnostics

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
	"github.com/bitechdev/JobFeed/pkg/realtime"
	"github.com/bitechdev/JobFeed/pkg/tracing"
)

// StatsSource reports connection statistics. realtime.Client implements it.
type StatsSource interface {
	Stats() realtime.Stats
}

// Status is the /status response body.
type Status struct {
	realtime.Stats
	Extra map[string]any `json:"extra,omitempty"`
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Stats   StatsSource
	Metrics metrics.Provider

	// Extra adds application fields to /status.
	Extra func() map[string]any
}

// NewRouter returns a router serving /metrics, /status and /healthz.
func NewRouter(opts RouterOptions) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.GetProvider()
	}

	r := mux.NewRouter()
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Stats == nil {
			http.Error(w, "no client", http.StatusServiceUnavailable)
			return
		}
		st := Status{Stats: opts.Stats.Stats()}
		if opts.Extra != nil {
			st.Extra = opts.Extra()
		}
		code := http.StatusOK
		if st.State != realtime.StateConnected {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	}).Methods(http.MethodGet)

	r.Use(recovery, tracing.Middleware)
	return r
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rcv := recover(); rcv != nil {
				err := logger.HandlePanic("diagnostics "+r.URL.Path, rcv)
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[Diagnostics] Failed to write response: %v", err)
	}
}
