// Package config loads application configuration from an optional YAML
// file and KEEPSAKE_* environment variables, environment winning.
//
// The only required setting is KEEPSAKE_SALT, the base64-encoded HMAC
// salt. Everything else has working defaults: an in-memory token store,
// httpOnly lax cookies, a 72 hour sliding session window, SHA-256 HMAC.
//
// Validation runs at load. An unsupported HMAC algorithm or an unusable
// storage selection fails startup here instead of surfacing on the first
// login request.
package config
