package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/eventide-app/eventide/internal/tracing"
)

// PostgresStore implements Store against PostgreSQL using filtered,
// bounded reads. Text matching uses case-insensitive substring predicates
// (ILIKE); this is feature-weighted heuristic retrieval, not a full-text
// index.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Fetch returns raw candidates of one entity type matching the filter.
func (s *PostgresStore) Fetch(ctx context.Context, entity EntityType, f Filter) (candidates []Candidate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, string(entity)+"s", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	switch entity {
	case EntityEvent:
		return s.fetchEvents(ctx, f)
	case EntityOrganization:
		return s.fetchOrganizations(ctx, f)
	case EntityVenue:
		return s.fetchVenues(ctx, f)
	case EntityPost:
		return s.fetchPosts(ctx, f)
	default:
		return nil, ErrUnknownEntityType
	}
}

// FollowedOrganizers returns the organizer IDs a user follows.
func (s *PostgresStore) FollowedOrganizers(ctx context.Context, userID string) (ids []string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "follows", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT organizer_id FROM follows WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query follows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserCategories returns the categories a user has engaged with,
// most-engaged first.
func (s *PostgresStore) UserCategories(ctx context.Context, userID string) (categories []string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_category_stats", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT category FROM user_category_stats
		 WHERE user_id = $1
		 ORDER BY engagement DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) fetchEvents(ctx context.Context, f Filter) ([]Candidate, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "visibility = 'public'", "status = 'published'")

	if f.Text != "" {
		p := arg("%" + f.Text + "%")
		where = append(where, fmt.Sprintf(
			"(title ILIKE %[1]s OR description ILIKE %[1]s OR venue_name ILIKE %[1]s OR city ILIKE %[1]s OR category ILIKE %[1]s OR array_to_string(tags, ' ') ILIKE %[1]s)", p))
	}
	if !f.IncludePast {
		where = append(where, fmt.Sprintf("starts_at >= %s", arg(f.EffectiveNow())))
	}
	if f.DateFrom != nil {
		where = append(where, fmt.Sprintf("starts_at >= %s", arg(*f.DateFrom)))
	}
	if f.DateTo != nil {
		where = append(where, fmt.Sprintf("starts_at <= %s", arg(*f.DateTo)))
	}
	if f.VerifiedOnly {
		where = append(where, "verified")
	}
	if f.Category != "" {
		where = append(where, fmt.Sprintf("LOWER(category) = LOWER(%s)", arg(f.Category)))
	}
	if len(f.Categories) > 0 {
		where = append(where, fmt.Sprintf("LOWER(category) = ANY(%s)", arg(pq.Array(lowerAll(f.Categories)))))
	}
	if len(f.OrganizerIDs) > 0 {
		where = append(where, fmt.Sprintf("organizer_id = ANY(%s)", arg(pq.Array(f.OrganizerIDs))))
	}
	appendBoxPredicates(&where, &args, f)

	query := fmt.Sprintf(
		`SELECT id, title, description, category, tags, venue_name, city, lat, lng, starts_at, attendees, verified, created_at
		 FROM events WHERE %s ORDER BY created_at, id LIMIT %d`,
		strings.Join(where, " AND "), f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c        Candidate
			tags     pq.StringArray
			lat, lng sql.NullFloat64
			startsAt time.Time
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &tags,
			&c.VenueName, &c.City, &lat, &lng, &startsAt, &c.Popularity, &c.Verified, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		c.Type = EntityEvent
		c.Tags = tags
		c.StartsAt = &startsAt
		c.Point = nullPoint(lat, lng)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) fetchOrganizations(ctx context.Context, f Filter) ([]Candidate, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "visibility = 'public'")

	if f.Text != "" {
		p := arg("%" + f.Text + "%")
		where = append(where, fmt.Sprintf(
			"(name ILIKE %[1]s OR description ILIKE %[1]s OR category ILIKE %[1]s OR city ILIKE %[1]s OR array_to_string(tags, ' ') ILIKE %[1]s)", p))
	}
	if f.VerifiedOnly {
		where = append(where, "verified")
	}
	if f.Category != "" {
		where = append(where, fmt.Sprintf("LOWER(category) = LOWER(%s)", arg(f.Category)))
	}
	appendBoxPredicates(&where, &args, f)

	query := fmt.Sprintf(
		`SELECT id, name, description, category, tags, city, lat, lng, followers, verified, created_at
		 FROM organizations WHERE %s ORDER BY created_at, id LIMIT %d`,
		strings.Join(where, " AND "), f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c        Candidate
			tags     pq.StringArray
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &tags,
			&c.City, &lat, &lng, &c.Popularity, &c.Verified, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		c.Type = EntityOrganization
		c.Tags = tags
		c.Point = nullPoint(lat, lng)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) fetchVenues(ctx context.Context, f Filter) ([]Candidate, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "visibility = 'public'")

	if f.Text != "" {
		p := arg("%" + f.Text + "%")
		where = append(where, fmt.Sprintf(
			"(name ILIKE %[1]s OR description ILIKE %[1]s OR city ILIKE %[1]s)", p))
	}
	if f.VerifiedOnly {
		where = append(where, "verified")
	}
	appendBoxPredicates(&where, &args, f)

	query := fmt.Sprintf(
		`SELECT id, name, description, city, lat, lng, capacity, verified, created_at
		 FROM venues WHERE %s ORDER BY created_at, id LIMIT %d`,
		strings.Join(where, " AND "), f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query venues: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c        Candidate
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.City,
			&lat, &lng, &c.Popularity, &c.Verified, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		c.Type = EntityVenue
		c.Point = nullPoint(lat, lng)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) fetchPosts(ctx context.Context, f Filter) ([]Candidate, error) {
	// Posts carry no coordinates; a geo-constrained fetch returns nothing.
	if f.Box != nil {
		return nil, nil
	}

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "visibility = 'public'")

	if f.Text != "" {
		p := arg("%" + f.Text + "%")
		where = append(where, fmt.Sprintf(
			"(title ILIKE %[1]s OR body ILIKE %[1]s OR array_to_string(tags, ' ') ILIKE %[1]s)", p))
	}

	query := fmt.Sprintf(
		`SELECT id, title, body, tags, likes, created_at
		 FROM posts WHERE %s ORDER BY created_at, id LIMIT %d`,
		strings.Join(where, " AND "), f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c    Candidate
			tags pq.StringArray
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &tags, &c.Popularity, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		c.Type = EntityPost
		c.Tags = tags
		out = append(out, c)
	}
	return out, rows.Err()
}

// appendBoxPredicates adds bounding-box range predicates. Candidates with
// no stored coordinates are excluded from geo-constrained fetches.
func appendBoxPredicates(where *[]string, args *[]interface{}, f Filter) {
	if f.Box == nil {
		return
	}
	arg := func(v interface{}) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	*where = append(*where,
		"lat IS NOT NULL", "lng IS NOT NULL",
		fmt.Sprintf("lat BETWEEN %s AND %s", arg(f.Box.MinLat), arg(f.Box.MaxLat)),
		fmt.Sprintf("lng BETWEEN %s AND %s", arg(f.Box.MinLng), arg(f.Box.MaxLng)),
	)
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func nullPoint(lat, lng sql.NullFloat64) *Point {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &Point{Lat: lat.Float64, Lng: lng.Float64}
}
