package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
	apimw "github.com/hamed0406/dpiprobe/internal/httpapi/middleware"
	"github.com/hamed0406/dpiprobe/internal/report"
)

// Runner is the scheduler surface the API exposes.
type Runner interface {
	Start(ctx context.Context) (domain.RunState, bool)
	Snapshot() domain.RunSnapshot
	Catalog() []domain.ProbeDefinition
}

type Server struct {
	Logger *zap.Logger
	Runner Runner
	Events *report.EventBus
	// RunContext bounds runs started over the API. Request contexts end with
	// the response, so runs must not inherit them.
	RunContext context.Context
}

func NewServer(l *zap.Logger, runner Runner, events *report.EventBus) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Runner: runner, Events: events, RunContext: context.Background()}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Use(apimw.RequireAny(keys))
			r.Get("/catalog", s.handleCatalog)
			r.Get("/runs/current", s.handleCurrentRun)
			r.Get("/events", s.handleEvents)
			r.Get("/events/ws", s.handleEventsWS(allowedOrigins))
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/runs", s.handleStartRun)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runner.Catalog())
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runner.Snapshot())
}

type startResponse struct {
	Started bool            `json:"started"`
	Run     domain.RunState `json:"run"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := s.RunContext
	if ctx == nil {
		ctx = context.Background()
	}
	st, started := s.Runner.Start(ctx)

	s.Logger.Info("run_requested",
		zap.Bool("started", started),
		zap.String("run_id", st.RunID),
		zap.Int("total", st.TotalInstances),
	)

	code := http.StatusOK
	if started {
		code = http.StatusAccepted
	}
	writeJSON(w, code, startResponse{Started: started, Run: st})
}

type eventsResponse struct {
	Events  []report.Event `json:"events"`
	LastSeq int64          `json:"last_seq"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		http.Error(w, "bad since", http.StatusBadRequest)
		return
	}
	events := s.Events.Since(since)
	last := since
	if n := len(events); n > 0 {
		last = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, LastSeq: last})
}

func parseSince(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
