package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tmercier/keepsake/pkg/audit"
	"github.com/tmercier/keepsake/pkg/auth"
	"github.com/tmercier/keepsake/pkg/contextkeys"
	"github.com/tmercier/keepsake/pkg/observability"
)

// RememberMeConfig configures the RememberMe middleware
type RememberMeConfig struct {
	// Slide extends the session window on every authenticated request
	Slide bool
	// CredentialField is the user attribute reported to the audit trail
	CredentialField string
}

// RememberMe authenticates each request from its remember-me cookies. A
// valid cookie puts the user into the request context; an absent or merely
// unknown cookie lets the request through anonymously; a tampered cookie is
// rejected outright and audited.
type RememberMe struct {
	authenticator auth.Authenticator
	auditLog      audit.Logger
	metrics       *observability.Metrics
	log           *logrus.Logger
	config        RememberMeConfig
}

// NewRememberMe creates the middleware. auditLog and metrics may be nil.
func NewRememberMe(authenticator auth.Authenticator, auditLog audit.Logger, metrics *observability.Metrics, log *logrus.Logger, config RememberMeConfig) *RememberMe {
	if auditLog == nil {
		auditLog = audit.NewLogrusLogger(log)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if config.CredentialField == "" {
		config.CredentialField = "username"
	}
	return &RememberMe{
		authenticator: authenticator,
		auditLog:      auditLog,
		metrics:       metrics,
		log:           log,
		config:        config,
	}
}

// Handler wraps an HTTP handler with cookie authentication
func (m *RememberMe) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := m.authenticator.AutoLogin(ctx, r)
		switch {
		case errors.Is(err, auth.ErrInvalidCookie):
			// Tampered cookie: a security signal, not an anonymous visit.
			m.auditLog.LogAuthentication(ctx, r, audit.EventTypeInvalidCookie, "",
				audit.EventStatusDenied, "tampered remember-me cookie")
			if m.metrics != nil {
				m.metrics.InvalidCookiesTotal.Inc()
				m.metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthResultDenied).Inc()
			}
			forbiddenResponse(w, "invalid authentication cookie")
			return

		case errors.Is(err, auth.ErrUnknownField):
			m.log.WithError(err).Error("auto-login misconfigured")
			internalErrorResponse(w)
			return

		case err != nil:
			// The user store is unavailable; nothing about the cookie is wrong.
			m.log.WithError(err).Error("auto-login lookup failed")
			if m.metrics != nil {
				m.metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthResultError).Inc()
			}
			internalErrorResponse(w)
			return
		}

		if user == nil {
			if m.metrics != nil {
				m.metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthResultAnonymous).Inc()
			}
			next.ServeHTTP(w, r)
			return
		}

		if m.metrics != nil {
			m.metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthResultSuccess).Inc()
		}

		ctx = contextkeys.WithUser(ctx, user)

		if m.config.Slide {
			expiresAt, err := m.authenticator.Resume(ctx, w, r)
			if err != nil {
				// The session stays valid for this request even when the
				// window cannot be extended.
				m.log.WithError(err).Warn("failed to slide session window")
			} else if !expiresAt.IsZero() {
				ctx = contextkeys.WithSessionExpiry(ctx, expiresAt)
				credential, _ := user.Field(m.config.CredentialField)
				m.auditLog.LogAuthentication(ctx, r, audit.EventTypeSessionResumed, credential,
					audit.EventStatusSuccess, "session window extended")
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentUser extracts the authenticated user from the request context
func CurrentUser(r *http.Request) (auth.User, bool) {
	user, ok := r.Context().Value(contextkeys.UserKey).(auth.User)
	return user, ok
}

// SessionExpiry extracts the resumed session expiry from the request context
func SessionExpiry(r *http.Request) (time.Time, bool) {
	expiry, ok := r.Context().Value(contextkeys.SessionExpiryKey).(time.Time)
	return expiry, ok
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

func internalErrorResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":"internal server error"}`))
}
