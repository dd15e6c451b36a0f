package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/auth"
	"github.com/echocoach/echo/internal/config"
	"github.com/echocoach/echo/internal/logging"
	"github.com/echocoach/echo/internal/observability"
	"github.com/echocoach/echo/internal/reports"
	"github.com/echocoach/echo/internal/session"
)

const anonymousUser = "anonymous"

// Deps are the collaborators the HTTP surface needs. Auth and Reports may be nil, in which
// case their routes answer 503.
type Deps struct {
	Sessions     *session.Manager
	Auth         *auth.Service
	Reports      reports.Store
	AccountsMode string
	States       appstate.Store
	Metrics      *observability.Metrics
	Logger       logrus.FieldLogger
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	auth         *auth.Service
	reports      reports.Store
	accountsMode string
	states       appstate.Store
	metrics      *observability.Metrics
	log          logrus.FieldLogger
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	states := deps.States
	if states == nil {
		states = appstate.NewMemoryStore()
	}
	return &Server{
		cfg:          cfg,
		sessions:     deps.Sessions,
		auth:         deps.Auth,
		reports:      deps.Reports,
		accountsMode: deps.AccountsMode,
		states:       states,
		metrics:      deps.Metrics,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients such as echoctl omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				if strings.EqualFold(u.Host, r.Host) {
					return true
				}
				return cfg.AllowedOrigin != "" && strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(cfg.AllowedOrigin, "/"))
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(s.log))
	r.Use(s.countRequests)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(auth.Optional(s.auth.Tokens()))
		}
		r.Post("/v1/practice/session", s.handleCreateSession)
		r.Post("/v1/practice/session/{id}/end", s.handleEndSession)
		r.Get("/v1/practice/session/ws", s.handleSessionWS)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
		})
	})

	r.Route("/api/reports", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/", s.handleCreateReport)
		r.Get("/", s.handleListReports)
		r.Get("/stats", s.handleReportStats)
		r.Get("/{id}", s.handleGetReport)
		r.Delete("/{id}", s.handleDeleteReport)
	})

	return r
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAnyOrigin {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	} else if s.cfg.AllowedOrigin != "" {
		opts.AllowedOrigins = []string{s.cfg.AllowedOrigin}
	}
	return opts
}

// requireAuth rejects unauthenticated requests, or answers 503 when accounts are not configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.auth == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusServiceUnavailable, "auth_unavailable", "Accounts are not configured")
		})
	}
	return auth.Require(s.auth.Tokens())(next)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTPRequest(r.Method, status)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"report_store_mode":  s.reportStoreMode(),
		"account_store_mode": s.accountStoreMode(),
		"active_sessions":    s.activeSessions(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	state := "ready"
	if s.sessions == nil {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	respondJSON(w, status, map[string]any{
		"status":             state,
		"report_store_mode":  s.reportStoreMode(),
		"account_store_mode": s.accountStoreMode(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// The owner is the token subject. A user id in the body must name that same user; without a
	// token the session is anonymous.
	owner := anonymousUser
	if userID, ok := auth.UserID(r.Context()); ok {
		if claimed := strings.TrimSpace(req.UserID); claimed != "" && claimed != userID {
			respondError(w, http.StatusForbidden, "user_mismatch", "user_id does not match the authenticated user")
			return
		}
		owner = userID
	}

	sess := s.sessions.Create(owner)
	s.metrics.ObserveSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	current, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if !canControl(r, current) {
		respondError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

// canControl reports whether the caller may act on sess. Anonymous sessions are open to anyone
// holding the id; owned sessions need the owner's token.
func canControl(r *http.Request, sess *session.Session) bool {
	if sess.UserID == anonymousUser {
		return true
	}
	userID, ok := auth.UserID(r.Context())
	return ok && userID == sess.UserID
}

type errorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Message: message, Code: code})
}

func (s *Server) reportStoreMode() string {
	if s.reports == nil {
		return "disabled"
	}
	return s.reports.Mode()
}

func (s *Server) accountStoreMode() string {
	if s.auth == nil || s.accountsMode == "" {
		return "disabled"
	}
	return s.accountsMode
}

func (s *Server) activeSessions() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.ActiveCount()
}

func (s *Server) logger(ctx context.Context) logrus.FieldLogger {
	return logging.FromContext(ctx, s.log)
}
