// routes.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
	"github.com/ddeveloper72/hl7validator/cmd/validator/history"
	"github.com/ddeveloper72/hl7validator/cmd/validator/orchestrator"
	"github.com/ddeveloper72/hl7validator/cmd/validator/resultstore"
)

// Router exposes the validation service over JSON HTTP.
type Router struct {
	orchestrator *orchestrator.Service
	baseClient   *gazelle.Client
	registry     *gazelle.Registry
	store        *resultstore.Store
	history      *history.Repository // nil when no database is configured
	log          zerolog.Logger
}

func NewRouter(
	orch *orchestrator.Service,
	baseClient *gazelle.Client,
	registry *gazelle.Registry,
	store *resultstore.Store,
	repo *history.Repository,
	log zerolog.Logger,
) *Router {
	return &Router{
		orchestrator: orch,
		baseClient:   baseClient,
		registry:     registry,
		store:        store,
		history:      repo,
		log:          log.With().Str("component", "api").Logger(),
	}
}

func (rt *Router) SetupRoutes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/validators", rt.handleValidators).Methods(http.MethodGet)

	r.HandleFunc("/api/uploads", rt.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/uploads/{id}/validate", rt.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/api/uploads/{id}/autovalidate", rt.handleAutoValidate).Methods(http.MethodPost)

	r.HandleFunc("/api/reports/{id}", rt.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/{id}/corrections", rt.handleCorrectionReport).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/{id}/download", rt.handleDownload).Methods(http.MethodGet)

	r.HandleFunc("/api/apikey", rt.handleSetAPIKey).Methods(http.MethodPut)
	r.HandleFunc("/api/history", rt.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/statistics", rt.handleStatistics).Methods(http.MethodGet)

	r.Use(rt.loggingMiddleware)
	return r
}

func (rt *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		rt.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}
