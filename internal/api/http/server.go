// Package http serves the onboarding front end: gated pages, the session and
// auth API, the demo payment and operational endpoints.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/notify"
	"github.com/dtroode/taq-server/internal/service"
	"github.com/dtroode/taq-server/internal/session"
)

// DefaultSettleTimeout bounds how long a page waits for reconciliation.
const DefaultSettleTimeout = 5 * time.Second

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Sessions   *session.Manager
	Reconciler *session.Reconciler
	Onboarding *session.Onboarding
	Auth       *service.Auth
	Payments   *service.Payments
	Directory  *service.Directory
	Health     *service.Health
	Gatherer   prometheus.Gatherer
}

type Server struct {
	deps   Deps
	cookie CookieOptions
	settle time.Duration
	logger *logger.Logger
	now    func() time.Time
}

func NewServer(deps Deps, cookie CookieOptions, logger *logger.Logger) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		deps:   deps,
		cookie: cookie,
		settle: DefaultSettleTimeout,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get(session.RouteLogin, s.handlePage(session.RouteLogin))
		r.Get(session.RouteOnboarding, s.handlePage(session.RouteOnboarding))
		r.Get(session.RouteHome, s.handlePage(session.RouteHome))
		r.With(s.syncAuth).Post(session.RouteOnboarding, s.handleSubmitOnboarding)

		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/logout", s.handleLogout)

			r.With(s.syncAuth).Get("/session", s.handleSession)
			r.Delete("/session/notifications/{id}", s.handleDismiss)

			r.With(s.syncAuth).Post("/payments/demo", s.handleDemoPayment)
			r.With(s.syncAuth).Get("/payments/receipts/{txHash}", s.handleReceipt)
			r.With(s.syncAuth).Get("/users", s.handleListUsers)
		})
	})

	return r
}

// Middleware

type sessionKey struct{}

// sessionMiddleware attaches the caller's session, issuing a new one when the
// cookie is missing or names an unknown session.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.deps.Sessions.Get(sessionCookie(r, s.cookie))
		if !ok {
			var err error
			sess, err = s.deps.Sessions.Create()
			if err != nil {
				s.logger.Error("HTTP: failed to create session", "error", err)
				writeError(w, err)
				return
			}
			setSessionCookie(w, sess.ID(), s.now(), s.cookie)
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}

// syncAuth feeds the request's identity token to the session and waits for
// the resulting reconciliation.
func (s *Server) syncAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFromContext(r.Context())
		s.sync(r, sess)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sync(r *http.Request, sess *session.Session) {
	s.deps.Auth.Sync(r.Context(), sess, identityToken(r))

	ctx, cancel := context.WithTimeout(r.Context(), s.settle)
	defer cancel()
	if err := s.deps.Reconciler.Await(ctx, sess); err != nil {
		s.logger.Debug("HTTP: reconciliation still running", "session", sess.ID(), "error", err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := s.logger.Info
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			level = s.logger.Debug
		}
		level("HTTP: request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Views

type sessionView struct {
	State         session.State         `json:"state"`
	Notifications []notify.Notification `json:"notifications"`
	Redirect      *session.Redirect     `json:"redirect,omitempty"`
}

type pageView struct {
	sessionView
	PaymentAvailable bool                     `json:"payment_available"`
	Form             *session.OnboardingInput `json:"form,omitempty"`
}

func viewOf(sess *session.Session) sessionView {
	v := sessionView{
		State:         sess.Snapshot(),
		Notifications: sess.Notifications(),
	}
	if v.Notifications == nil {
		v.Notifications = []notify.Notification{}
	}
	if rd, ok := sess.PendingRedirect(); ok {
		v.Redirect = &rd
	}
	return v
}

// Pages

// gate decides whether route may be shown for st, returning where to send
// the client otherwise.
func gate(route string, st session.State) (string, bool) {
	if !st.IdentityReady || st.LoggingOut {
		return "", true
	}
	switch route {
	case session.RouteLogin:
		if st.Authenticated && st.Profile != nil {
			return session.RouteHome, false
		}
	case session.RouteOnboarding:
		if !st.Authenticated {
			return session.RouteLogin, false
		}
		if st.Profile != nil {
			return session.RouteHome, false
		}
	}
	return "", true
}

func (s *Server) handlePage(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFromContext(r.Context())
		sess.Navigate(route)
		s.sync(r, sess)

		if to, ok := sess.TakeRedirect(); ok && to != route {
			http.Redirect(w, r, to, http.StatusSeeOther)
			return
		}
		st := sess.Snapshot()
		if to, ok := gate(route, st); !ok {
			sess.Navigate(to)
			http.Redirect(w, r, to, http.StatusSeeOther)
			return
		}

		v := pageView{
			sessionView:      viewOf(sess),
			PaymentAvailable: st.Authenticated && st.Profile != nil,
		}
		if route == session.RouteOnboarding && st.Identity != nil {
			v.Form = &session.OnboardingInput{
				Email:         st.Identity.Email,
				WalletAddress: st.Identity.WalletAddress,
			}
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleSubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var in session.OnboardingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	profile, err := s.deps.Onboarding.Submit(r.Context(), sess, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Profile model.Profile `json:"profile"`
		sessionView
	}{profile, viewOf(sess)})
}

// Auth

type loginRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	token := identityToken(r)
	if r.ContentLength > 0 {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Token != "" {
			token = req.Token
		}
	}
	if token == "" {
		writeError(w, model.ErrNotAuthenticated)
		return
	}

	res, err := s.deps.Auth.CompleteLogin(r.Context(), sess, token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		service.LoginResult
		Notifications []notify.Notification `json:"notifications"`
	}{res, sess.Notifications()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	s.deps.Auth.Logout(r.Context(), sess)

	http.SetCookie(w, &http.Cookie{Name: IdentityCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// Session

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(sessionFromContext(r.Context())))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, model.ErrValidation)
		return
	}
	if !sessionFromContext(r.Context()).Dismiss(id) {
		writeError(w, model.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payments

func (s *Server) handleDemoPayment(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	receipt, err := s.deps.Payments.SendDemo(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	receipt, err := s.deps.Payments.Receipt(r.Context(), sess, chi.URLParam(r, "txHash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Directory

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !sessionFromContext(r.Context()).Snapshot().Authenticated {
		writeError(w, model.ErrNotAuthenticated)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, model.ErrValidation)
			return
		}
		limit = n
	}

	profiles, err := s.deps.Directory.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// Health

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status := http.StatusOK
	failed := s.deps.Health.CheckAll(r.Context())
	checks := make(map[string]string)
	for _, name := range s.deps.Health.Names() {
		if err, ok := failed[name]; ok {
			status = http.StatusServiceUnavailable
			checks[name] = "unavailable"
			s.logger.Warn("HTTP: health check failed", "dependency", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}
