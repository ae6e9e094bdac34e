// Package api exposes the HTTP surface of the service: login, logout,
// session inspection and account registration under /auth, plus health
// probes and the Prometheus scrape endpoint. Handlers stay thin; all
// session mechanics live in pkg/auth and the storage backends.
package api
