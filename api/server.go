package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"incidents-reseau/api/handlers"
	"incidents-reseau/config"
	"incidents-reseau/core/blob"
	"incidents-reseau/core/incidents"
	"incidents-reseau/core/queue"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

// ServerDeps carries everything the HTTP layer needs, injected once at
// process start.
type ServerDeps struct {
	Cfg          *config.AppConfig
	Store        store.IncidentsStore
	IncidentsSvc *incidents.Service
	Blobs        blob.Store
	Queue        queue.Queue
	Logger       *utils.Logger
}

type Server struct {
	cfg    *config.AppConfig
	logger *utils.Logger
	router chi.Router
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{cfg: deps.Cfg, logger: deps.Logger}

	incidentsHandler := handlers.NewIncidentsHandler(deps.Cfg, deps.IncidentsSvc, deps.Logger)
	statusHandler := handlers.NewStatusHandler(deps.Cfg, deps.Store, deps.Blobs, deps.Queue)

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.logMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.MethodFunc(http.MethodPost, "/incidents", incidentsHandler.Create)
		api.MethodFunc(http.MethodGet, "/incidents", incidentsHandler.List)
		api.MethodFunc(http.MethodGet, "/incidents/{id:[0-9]+}", incidentsHandler.Get)
		api.MethodFunc(http.MethodGet, "/incidents/{id:[0-9]+}/attachments", incidentsHandler.ListAttachments)
		api.MethodFunc(http.MethodGet, "/attachments/{id:[0-9]+}/download", incidentsHandler.Download)
		api.MethodFunc(http.MethodGet, "/status", statusHandler.Status)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }
