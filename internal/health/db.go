// Package health implements the dependency probes behind /health/ready:
// Postgres (the catalog store and search log) and Redis (result cache and
// shared rate-limit state).
package health

import (
	"context"
	"database/sql"
)

// DBChecker pings the catalog database.
type DBChecker struct {
	db *sql.DB
}

func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck reports whether the database answers a ping in time.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
