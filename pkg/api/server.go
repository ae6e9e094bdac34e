package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tmercier/keepsake/pkg/audit"
	"github.com/tmercier/keepsake/pkg/auth"
	"github.com/tmercier/keepsake/pkg/httputil"
	"github.com/tmercier/keepsake/pkg/middleware"
	"github.com/tmercier/keepsake/pkg/observability"
	"github.com/tmercier/keepsake/pkg/storage"
	"github.com/tmercier/keepsake/pkg/token"
)

// AccountCreator persists new user accounts. The SQL stores implement it;
// deployments that manage users elsewhere leave it nil and the register
// endpoint is not mounted.
type AccountCreator interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*storage.User, error)
}

// Config carries the collaborators the server wires together. Authenticator,
// Users and Logger are required; everything else is optional.
type Config struct {
	Authenticator auth.Authenticator
	Users         auth.UserLookup
	Accounts      AccountCreator
	AuditLog      audit.Logger
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
	Health        *observability.HealthChecker
	RateLimiter   *middleware.LoginRateLimiter
	Logger        *logrus.Logger

	// CredentialField is the user attribute clients log in with
	// ("username" or "email").
	CredentialField string
	// BcryptCost is used when hashing registration passwords.
	BcryptCost int
	// Slide extends the session window on every authenticated request.
	Slide bool
	// Tracing wraps the handler chain with OpenTelemetry instrumentation.
	Tracing bool
}

// Server is the HTTP front end.
type Server struct {
	router        *mux.Router
	handler       http.Handler
	authenticator auth.Authenticator
	users         auth.UserLookup
	accounts      AccountCreator
	auditLog      audit.Logger
	metrics       *observability.Metrics
	registry      *prometheus.Registry
	health        *observability.HealthChecker
	rateLimiter   *middleware.LoginRateLimiter
	log           *logrus.Logger
	field         string
	bcryptCost    int
	slide         bool
}

// NewServer builds the router and middleware chain.
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	auditLog := cfg.AuditLog
	if auditLog == nil {
		auditLog = audit.NewLogrusLogger(log)
	}
	field := cfg.CredentialField
	if field == "" {
		field = auth.DefaultField
	}
	cost := cfg.BcryptCost
	if cost <= 0 {
		cost = token.DefaultBcryptCost
	}
	health := cfg.Health
	if health == nil {
		health = observability.NewHealthChecker(nil, nil)
	}

	s := &Server{
		router:        mux.NewRouter(),
		authenticator: cfg.Authenticator,
		users:         cfg.Users,
		accounts:      cfg.Accounts,
		auditLog:      auditLog,
		metrics:       cfg.Metrics,
		registry:      cfg.Registry,
		health:        health,
		rateLimiter:   cfg.RateLimiter,
		log:           log,
		field:         field,
		bcryptCost:    cost,
		slide:         cfg.Slide,
	}
	s.setupRoutes()

	handler := http.Handler(s.router)
	if s.metrics != nil {
		handler = observability.HTTPMetricsMiddleware(s.metrics)(handler)
	}
	handler = middleware.RequestLogging(s.log)(handler)
	handler = httputil.RecoveryMiddleware(s.log)(handler)
	if cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "keepsake")
	}
	s.handler = handler
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
	s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods("GET")
	}

	rememberMe := middleware.NewRememberMe(s.authenticator, s.auditLog, s.metrics, s.log, middleware.RememberMeConfig{
		Slide:           s.slide,
		CredentialField: s.field,
	})
	authRouter := s.router.PathPrefix("/auth").Subrouter()
	authRouter.Use(rememberMe.Handler)

	login := http.Handler(http.HandlerFunc(s.login))
	if s.rateLimiter != nil {
		login = s.rateLimiter.Handler(login)
	}
	authRouter.Handle("/login", login).Methods("POST")
	authRouter.HandleFunc("/logout", s.logout).Methods("POST")
	authRouter.HandleFunc("/session", s.session).Methods("GET")
	if s.accounts != nil {
		authRouter.HandleFunc("/register", s.register).Methods("POST")
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
