// Package middleware provides the HTTP request pipeline: cookie
// authentication, access logging, and login throttling.
//
// # Middleware Components
//
// RememberMe: authenticates every request from its remember-me cookies
//
//	rm := middleware.NewRememberMe(authenticator, auditLog, metrics, log,
//		middleware.RememberMeConfig{Slide: true})
//	router.Use(rm.Handler)
//	// Handlers read the user via middleware.CurrentUser(r)
//
// An absent or unknown cookie passes the request through anonymously. A
// tampered cookie answers 403 and is written to the audit trail; the
// difference matters for alerting.
//
// RequestLogging: uuid request IDs plus one structured access-log line
// per request (sirupsen/logrus).
//
// LoginRateLimiter: Redis-backed per-IP fixed window for the login
// endpoint, shared across instances. Fails open when Redis is down.
//
//	rl := middleware.NewLoginRateLimiter(redisClient,
//		middleware.DefaultLoginRateLimitConfig(), log)
//	router.Handle("/auth/login", rl.Handler(loginHandler))
//
// # Related Packages
//
//   - pkg/auth: cookie authentication state machine
//   - pkg/audit: security event trail
//   - pkg/observability: metrics middleware
package middleware
