// Package web is the HTML front end for checking and submitting planning
// data.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/digital-land/submit/internal/datasets"
	"github.com/digital-land/submit/internal/notify"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/pkg/render"
	"github.com/digital-land/submit/internal/requestapi"
	"github.com/digital-land/submit/internal/results"
	"github.com/digital-land/submit/internal/session"
	"github.com/digital-land/submit/internal/uploads"
	"github.com/digital-land/submit/internal/wizard"
)

// RequestAPI is the async check backend.
type RequestAPI interface {
	PostURLRequest(ctx context.Context, r requestapi.URLRequest) (string, error)
	PostFileRequest(ctx context.Context, r requestapi.FileRequest) (string, error)
	GetRequestData(ctx context.Context, id string) (*results.RequestData, error)
	GetResponseDetails(ctx context.Context, id string, q requestapi.DetailsQuery, log results.ColumnFieldLog) (*results.ResponseDetails, error)
}

// Notifier sends the submission emails.
type Notifier interface {
	NotifySubmission(ctx context.Context, s notify.Submission) error
}

// Deps are the collaborators the front end needs.
type Deps struct {
	Requests       RequestAPI
	Uploads        uploads.Store // nil disables file upload
	Sessions       *session.Store
	Notifier       Notifier
	Datasets       *datasets.Registry
	Messages       results.MessageFormatter
	Engine         *render.Engine
	PageSize       int
	MaxUploadSize  int64
	AllowedOrigins []string
}

// Server holds the handlers and their dependencies.
type Server struct {
	Deps
	pages  *pages
	check  *wizard.Journey
	submit *wizard.Journey
	health *HealthChecker
	now    func() time.Time
}

// NewServer validates templates and builds the journeys.
func NewServer(d Deps) (*Server, error) {
	switch {
	case d.Requests == nil:
		return nil, errors.New("web: request API client is required")
	case d.Sessions == nil:
		return nil, errors.New("web: session store is required")
	case d.Notifier == nil:
		return nil, errors.New("web: notifier is required")
	case d.Datasets == nil:
		return nil, errors.New("web: dataset registry is required")
	}
	if d.Engine == nil {
		d.Engine = render.New()
	}
	if d.PageSize <= 0 {
		d.PageSize = 50
	}
	if d.MaxUploadSize <= 0 {
		d.MaxUploadSize = wizard.DefaultMaxUploadSize
	}
	p, err := newPages(d.Engine)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return &Server{
		Deps:   d,
		pages:  p,
		check:  wizard.NewCheckJourney(d.Datasets),
		submit: wizard.NewSubmitJourney(d.Datasets),
		health: newHealthChecker(d.Sessions, d.Uploads),
		now:    time.Now,
	}, nil
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no session)
	r.Get("/health", s.health.HandleHealth)
	r.Get("/health/live", s.health.HandleLiveness)
	r.Get("/health/ready", s.health.HandleReadiness)

	r.Group(func(r chi.Router) {
		r.Use(s.Sessions.Middleware)

		r.Get("/", s.handleStart)

		r.Route("/check", func(r chi.Router) {
			r.Get("/", s.redirectTo("/check/"+wizard.StepDataset))
			for _, step := range []string{wizard.StepDataset, wizard.StepGeometryType, wizard.StepUploadMethod, wizard.StepURL} {
				r.Get("/"+step, s.showCheckStep(step))
				r.Post("/"+step, s.submitCheckStep(step))
			}
			r.Get("/"+wizard.StepUpload, s.showCheckStep(wizard.StepUpload))
			r.Post("/"+wizard.StepUpload, s.handleUpload)
			r.Get("/status/{id}", s.handleStatus)
			r.Get("/results/{id}", s.handleResults)
			r.Get("/results/{id}/{pageNumber}", s.handleResults)
		})

		r.Route("/submit", func(r chi.Router) {
			r.Get("/", s.redirectTo("/submit/"+wizard.StepLPADetails))
			for _, step := range []string{wizard.StepLPADetails, wizard.StepDatasetDetails, wizard.StepEndpointDetails} {
				r.Get("/"+step, s.showSubmitStep(step))
				r.Post("/"+step, s.submitSubmitStep(step))
			}
			r.Get("/"+wizard.StepCheckAnswers, s.showCheckAnswers)
			r.Post("/"+wizard.StepCheckAnswers, s.handleSend)
			r.Get("/"+wizard.StepConfirmation, s.showConfirmation)
		})
	})

	r.NotFound(s.notFound)
	return r
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusOK, "start", vars{"title": "Submit and update your planning data"})
}

func (s *Server) redirectTo(location string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, location, http.StatusFound)
	}
}

// sessionFor returns the session Middleware attached to the request.
func sessionFor(r *http.Request) *session.Session {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		// routes without the middleware get a throwaway session
		return &session.Session{Values: map[string]string{}}
	}
	return sess
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if err := s.Sessions.Save(r.Context(), w, sess); err != nil {
		s.serverError(w, r, err)
		return false
	}
	return true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", int(time.Since(start).Milliseconds()))
	})
}
