// Package storage provides the persistence backends behind the
// authenticators: session token records (auth.TokenStore) and account
// lookup (auth.UserLookup).
//
// # Backends
//
// Four TokenStore implementations share one contract:
//
//	memory   - mutex-guarded map, for tests and demos
//	sqlite   - single-node durable storage (mattn/go-sqlite3)
//	postgres - shared storage for multi-instance deployments (lib/pq)
//	redis    - TTL-based storage, records expire on their own (go-redis)
//
// "Not found" is always (nil, nil); errors are reserved for availability
// failures, which the authenticators propagate rather than reading as
// "not authenticated".
//
// # Selection
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = storage.TypeSQLite
//	cfg.SQLitePath = "/var/lib/keepsake/keepsake.db"
//	store, err := storage.OpenSQLite(cfg.SQLitePath)
//
// # Cleanup
//
// Logout and burned sessions soft-expire records rather than deleting
// them, keeping an audit trail. Cleanup runs PurgeExpired on a cron
// schedule, deleting expired records once they age past the retention
// window:
//
//	cleanup, err := storage.NewCleanup(store, "@hourly", 30*24*time.Hour, log)
//	cleanup.Start()
//
// # User Lookup Cache
//
// CachedUserLookup wraps any UserLookup with a short-TTL LRU for the
// per-request auto-login path. Positive entries only; the TTL bounds how
// long a password change can go unnoticed.
package storage
