package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/eventide-app/eventide/internal/geo"
	"github.com/eventide-app/eventide/internal/tracing"
)

// QueryRecord is one analytics entry describing a served search. It feeds
// later trend computation and is written best-effort: a failed write never
// affects the search response.
type QueryRecord struct {
	Text        string
	EntityTypes []string
	Category    string
	GeoCluster  string // coarse geohash of the query location, empty without geo context
	ResultCount int
	CacheHit    bool
	At          time.Time
}

// Sink records analytics entries. Implementations may block; callers
// dispatch records asynchronously and swallow failures.
type Sink interface {
	Record(ctx context.Context, rec QueryRecord) error
}

// SlogSink writes analytics entries to the structured log. Useful in
// development and as a fallback when no database is configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a Sink that logs entries at INFO level.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record logs the analytics entry.
func (s *SlogSink) Record(ctx context.Context, rec QueryRecord) error {
	s.logger.InfoContext(ctx, "search recorded",
		"query", rec.Text,
		"types", rec.EntityTypes,
		"category", rec.Category,
		"geo_cluster", rec.GeoCluster,
		"results", rec.ResultCount,
		"cache_hit", rec.CacheHit,
	)
	return nil
}

// PostgresSink appends analytics entries to the search_log table.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a Sink writing to PostgreSQL.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Record appends one entry to search_log.
func (s *PostgresSink) Record(ctx context.Context, rec QueryRecord) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "search_log", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_log (query, entity_types, category, geo_cluster, result_count, cache_hit, searched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Text, pq.Array(rec.EntityTypes), rec.Category, rec.GeoCluster, rec.ResultCount, rec.CacheHit, at)
	if err != nil {
		return fmt.Errorf("insert search_log: %w", err)
	}
	return nil
}

// geoCluster returns the coarse geohash bucket for an optional query
// location, or empty when the query carried no geo context.
func geoCluster(f Filters) string {
	if f.Location == nil {
		return ""
	}
	return geo.EncodeGeohash(f.Location.Lat, f.Location.Lng, geo.ClusterPrecision)
}
