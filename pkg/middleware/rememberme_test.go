package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmercier/keepsake/pkg/audit"
	"github.com/tmercier/keepsake/pkg/auth"
	"github.com/tmercier/keepsake/pkg/observability"
)

type stubUser struct {
	fields map[string]string
	hash   string
}

func (u *stubUser) Field(name string) (string, bool) {
	v, ok := u.fields[name]
	return v, ok
}

func (u *stubUser) PasswordHash() string { return u.hash }

// stubAuthenticator scripts AutoLogin and Resume outcomes.
type stubAuthenticator struct {
	user      auth.User
	loginErr  error
	resumeAt  time.Time
	resumeErr error
	resumed   int
}

func (a *stubAuthenticator) OnLogin(ctx context.Context, w http.ResponseWriter, credential, passwordHash string) (time.Time, error) {
	return time.Time{}, nil
}

func (a *stubAuthenticator) AutoLogin(ctx context.Context, r *http.Request) (auth.User, error) {
	return a.user, a.loginErr
}

func (a *stubAuthenticator) OnLogout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (a *stubAuthenticator) Resume(ctx context.Context, w http.ResponseWriter, r *http.Request) (time.Time, error) {
	a.resumed++
	return a.resumeAt, a.resumeErr
}

type capturingAudit struct {
	events []audit.EventType
}

func (c *capturingAudit) Log(ctx context.Context, event *audit.Event) error {
	c.events = append(c.events, event.EventType)
	return nil
}

func (c *capturingAudit) LogAuthentication(ctx context.Context, r *http.Request, eventType audit.EventType, username string, status audit.EventStatus, message string) error {
	c.events = append(c.events, eventType)
	return nil
}

func (c *capturingAudit) Close() error { return nil }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func serve(t *testing.T, rm *RememberMe, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	rm.Handler(next).ServeHTTP(rec, httptest.NewRequest("GET", "/profile", nil))
	return rec
}

func TestRememberMe_Anonymous(t *testing.T) {
	rm := NewRememberMe(&stubAuthenticator{}, nil, nil, quietLogger(), RememberMeConfig{})

	var sawUser bool
	rec := serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawUser = CurrentUser(r)
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sawUser)
}

func TestRememberMe_InvalidCookie(t *testing.T) {
	authn := &stubAuthenticator{loginErr: auth.ErrInvalidCookie}
	trail := &capturingAudit{}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	rm := NewRememberMe(authn, trail, metrics, quietLogger(), RememberMeConfig{})

	rec := serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a tampered cookie")
	}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, trail.events, audit.EventTypeInvalidCookie)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InvalidCookiesTotal))
}

func TestRememberMe_UnknownFieldIsServerError(t *testing.T) {
	authn := &stubAuthenticator{loginErr: auth.ErrUnknownField}
	rm := NewRememberMe(authn, nil, nil, quietLogger(), RememberMeConfig{})

	rec := serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on misconfiguration")
	}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRememberMe_StoreUnavailable(t *testing.T) {
	authn := &stubAuthenticator{loginErr: errors.New("connection refused")}
	rm := NewRememberMe(authn, nil, nil, quietLogger(), RememberMeConfig{})

	rec := serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run when the store is down")
	}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRememberMe_AuthenticatedUserInContext(t *testing.T) {
	user := &stubUser{fields: map[string]string{"username": "alice"}}
	authn := &stubAuthenticator{user: user}
	rm := NewRememberMe(authn, nil, nil, quietLogger(), RememberMeConfig{})

	var got auth.User
	rec := serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CurrentUser(r)
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, auth.User(user), got)
	assert.Zero(t, authn.resumed, "must not slide when disabled")
}

func TestRememberMe_SlideExtendsSession(t *testing.T) {
	user := &stubUser{fields: map[string]string{"username": "alice"}}
	expiresAt := time.Now().Add(72 * time.Hour)
	authn := &stubAuthenticator{user: user, resumeAt: expiresAt}
	trail := &capturingAudit{}
	rm := NewRememberMe(authn, trail, nil, quietLogger(), RememberMeConfig{Slide: true})

	var gotExpiry time.Time
	var hadExpiry bool
	serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotExpiry, hadExpiry = SessionExpiry(r)
	}))

	assert.Equal(t, 1, authn.resumed)
	require.True(t, hadExpiry)
	assert.Equal(t, expiresAt.Unix(), gotExpiry.Unix())
	assert.Contains(t, trail.events, audit.EventTypeSessionResumed)
}

func TestRememberMe_SlideFailureStillServes(t *testing.T) {
	user := &stubUser{fields: map[string]string{"username": "alice"}}
	authn := &stubAuthenticator{user: user, resumeErr: errors.New("store down")}
	rm := NewRememberMe(authn, nil, nil, quietLogger(), RememberMeConfig{Slide: true})

	var served bool
	rec := serve(t, rm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, served)
}
