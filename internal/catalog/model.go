// Package catalog provides the searchable entity model and the query
// interface over the relational store backing search and discovery.
package catalog

import (
	"time"
)

// EntityType discriminates the closed set of searchable entity shapes.
type EntityType string

// Searchable entity types.
const (
	EntityEvent        EntityType = "event"
	EntityOrganization EntityType = "organization"
	EntityVenue        EntityType = "venue"
	EntityPost         EntityType = "post"
)

// AllEntityTypes lists every searchable entity type in canonical order.
var AllEntityTypes = []EntityType{EntityEvent, EntityOrganization, EntityVenue, EntityPost}

// ParseEntityType validates a raw type string. Returns the entity type and
// whether it is a member of the closed set.
func ParseEntityType(s string) (EntityType, bool) {
	switch EntityType(s) {
	case EntityEvent, EntityOrganization, EntityVenue, EntityPost:
		return EntityType(s), true
	default:
		return "", false
	}
}

// Point represents a geographic coordinate with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Candidate is a read-only, type-tagged projection of a searchable entity.
// The core never mutates candidates; it only scores and orders them.
// Fields not applicable to a type are left at their zero value (e.g.
// StartsAt is nil for organizations).
type Candidate struct {
	ID          string     `json:"id"`
	Type        EntityType `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	VenueName   string     `json:"venue_name,omitempty"`
	City        string     `json:"city,omitempty"`
	Point       *Point     `json:"point,omitempty"`

	// StartsAt is set for time-bound entities (events).
	StartsAt *time.Time `json:"starts_at,omitempty"`

	// Popularity is a precomputed popularity metric: attendee count for
	// events, follower count for organizations, engagement for posts.
	Popularity int `json:"popularity"`

	Verified  bool      `json:"verified,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a time-bound gathering hosted by an organizer, optionally at a venue.
type Event struct {
	ID          string
	Title       string
	Description string
	Category    string
	Tags        []string
	VenueName   string
	City        string
	Point       *Point
	StartsAt    time.Time
	EndsAt      time.Time
	OrganizerID string
	Attendees   int
	Visibility  string // "public" or "private"
	Status      string // "published", "draft", "cancelled"
	Verified    bool   // organizer verification, denormalized for filtering
	CreatedAt   time.Time
}

// Organization is an organizer profile (collective, promoter, label).
type Organization struct {
	ID          string
	Name        string
	Description string
	Category    string
	Tags        []string
	City        string
	Point       *Point
	Followers   int
	Verified    bool
	Visibility  string
	CreatedAt   time.Time
}

// Venue is a physical location that hosts events.
type Venue struct {
	ID          string
	Name        string
	Description string
	City        string
	Point       *Point
	Capacity    int
	Verified    bool
	Visibility  string
	CreatedAt   time.Time
}

// Post is user-generated content attached to an event or organization.
type Post struct {
	ID         string
	Title      string
	Text       string
	Tags       []string
	AuthorID   string
	EventID    *string
	Likes      int
	Visibility string
	CreatedAt  time.Time
}

// AsCandidate projects an event into the tagged candidate shape.
func (e *Event) AsCandidate() Candidate {
	startsAt := e.StartsAt
	return Candidate{
		ID:          e.ID,
		Type:        EntityEvent,
		Title:       e.Title,
		Description: e.Description,
		Category:    e.Category,
		Tags:        append([]string(nil), e.Tags...),
		VenueName:   e.VenueName,
		City:        e.City,
		Point:       copyPoint(e.Point),
		StartsAt:    &startsAt,
		Popularity:  e.Attendees,
		Verified:    e.Verified,
		CreatedAt:   e.CreatedAt,
	}
}

// AsCandidate projects an organization into the tagged candidate shape.
func (o *Organization) AsCandidate() Candidate {
	return Candidate{
		ID:          o.ID,
		Type:        EntityOrganization,
		Title:       o.Name,
		Description: o.Description,
		Category:    o.Category,
		Tags:        append([]string(nil), o.Tags...),
		City:        o.City,
		Point:       copyPoint(o.Point),
		Popularity:  o.Followers,
		Verified:    o.Verified,
		CreatedAt:   o.CreatedAt,
	}
}

// AsCandidate projects a venue into the tagged candidate shape.
func (v *Venue) AsCandidate() Candidate {
	return Candidate{
		ID:          v.ID,
		Type:        EntityVenue,
		Title:       v.Name,
		Description: v.Description,
		City:        v.City,
		Point:       copyPoint(v.Point),
		Popularity:  v.Capacity,
		Verified:    v.Verified,
		CreatedAt:   v.CreatedAt,
	}
}

// AsCandidate projects a post into the tagged candidate shape.
func (p *Post) AsCandidate() Candidate {
	return Candidate{
		ID:          p.ID,
		Type:        EntityPost,
		Title:       p.Title,
		Description: p.Text,
		Tags:        append([]string(nil), p.Tags...),
		Popularity:  p.Likes,
		CreatedAt:   p.CreatedAt,
	}
}

func copyPoint(p *Point) *Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
