// SPDX-License-Identifier: MIT

package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinirec/analysis-worker/internal/event"
	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/pubsub"
	"github.com/clinirec/analysis-worker/internal/worker"
)

// Processor is the job-processing surface the handler invokes.
type Processor interface {
	Process(ctx context.Context, evt event.StorageObject) (*worker.Outcome, error)
}

// Options configure the router.
type Options struct {
	// Token enables bearer auth on the push endpoint when non-empty.
	Token string
	// RateLimitRPM caps requests per client IP per minute. Zero disables.
	RateLimitRPM int
	// TracingEnabled adds the tracing middleware.
	TracingEnabled bool
}

// NewRouter builds the worker's HTTP surface with the canonical middleware
// order: recoverer, request id, metrics, tracing, logging, rate limit.
func NewRouter(processor Processor, opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(metricsMiddleware)
	if opts.TracingEnabled {
		r.Use(tracing)
	}
	r.Use(logging)
	if opts.RateLimitRPM > 0 {
		r.Use(rateLimit(opts.RateLimitRPM))
	}

	r.Get("/healthz", handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.With(bearerAuth(opts.Token)).Post("/pubsub/storage-finalize", handleStorageFinalize(processor))

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleStorageFinalize unwraps the push envelope and hands the storage
// event to the processor. Errors map to 500 so the subscription redelivers.
func handleStorageFinalize(processor Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "httpapi")

		env, err := pubsub.Decode(r.Body)
		if err != nil {
			logger.Warn().Err(err).Msg("malformed push envelope")
			writeError(w, http.StatusBadRequest, "malformed push envelope", err)
			return
		}
		evt := env.StorageObject()

		outcome, err := processor.Process(r.Context(), evt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "processing failed", err)
			return
		}
		if outcome.Ignored {
			writeJSON(w, http.StatusOK, map[string]any{"ignored": true, "reason": outcome.Reason})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session": outcome.SessionKey})
	}
}
