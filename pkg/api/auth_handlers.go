package api

import (
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tmercier/keepsake/pkg/audit"
	"github.com/tmercier/keepsake/pkg/httputil"
	"github.com/tmercier/keepsake/pkg/middleware"
	"github.com/tmercier/keepsake/pkg/observability"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// credentialValue picks the attribute the server authenticates on.
func (req *loginRequest) credentialValue(field string) string {
	if field == "email" {
		return req.Email
	}
	return req.Username
}

type loginResponse struct {
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	Credential    string     `json:"credential,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	credential := req.credentialValue(s.field)
	if !httputil.RequireNonEmpty(w, credential, s.field) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	user, err := s.users.GetUser(r.Context(), s.field, credential)
	if err != nil {
		s.log.WithError(err).Error("failed to resolve user during login")
		httputil.WriteInternalError(w, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(req.Password)) != nil {
		s.auditLog.LogAuthentication(r.Context(), r, audit.EventTypeLoginFailed, credential, audit.EventStatusFailure, "invalid credentials")
		if s.metrics != nil {
			s.metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthResultDenied).Inc()
		}
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	expiresAt, err := s.authenticator.OnLogin(r.Context(), w, credential, user.PasswordHash())
	if err != nil {
		s.log.WithError(err).WithField("credential", credential).Error("failed to establish session")
		httputil.WriteInternalError(w, err)
		return
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Reset(r.Context(), audit.PeerIP(r)); err != nil {
			s.log.WithError(err).Warn("failed to reset login rate limit counter")
		}
	}
	if s.metrics != nil {
		s.metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthResultSuccess).Inc()
		s.metrics.TokensIssuedTotal.Inc()
		s.metrics.ActiveSessions.Inc()
	}
	s.auditLog.LogAuthentication(r.Context(), r, audit.EventTypeLogin, credential, audit.EventStatusSuccess, "session established")

	httputil.WriteSuccess(w, loginResponse{Credential: credential, ExpiresAt: expiresAt})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	credential := ""
	if user, ok := middleware.CurrentUser(r); ok {
		credential, _ = user.Field(s.field)
	}

	if err := s.authenticator.OnLogout(r.Context(), w, r); err != nil {
		s.log.WithError(err).Error("failed to tear down session")
		httputil.WriteInternalError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.TokensRevokedTotal.Inc()
		if credential != "" {
			s.metrics.ActiveSessions.Dec()
		}
	}
	s.auditLog.LogAuthentication(r.Context(), r, audit.EventTypeLogout, credential, audit.EventStatusSuccess, "session terminated")

	httputil.WriteNoContent(w)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}

	credential, _ := user.Field(s.field)
	resp := sessionResponse{Authenticated: true, Credential: credential}
	if expiresAt, ok := middleware.SessionExpiry(r); ok {
		resp.ExpiresAt = &expiresAt
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	user, err := s.accounts.CreateUser(r.Context(), req.Username, req.Email, string(hash))
	if err != nil {
		s.log.WithError(err).WithField("username", req.Username).Error("failed to create user")
		httputil.WriteErrorMessage(w, http.StatusConflict, "could not create user")
		return
	}

	s.log.WithField("username", user.Username).Info("user registered")
	httputil.WriteJSON(w, http.StatusCreated, user)
}
