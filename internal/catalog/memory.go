package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu            sync.RWMutex
	events        map[string]*Event
	organizations map[string]*Organization
	venues        map[string]*Venue
	posts         map[string]*Post

	// follows maps user ID to followed organizer IDs.
	follows map[string][]string

	// categories maps user ID to engaged categories, most-engaged first.
	categories map[string][]string

	// insertion tracks candidate insertion order per entity type so fetch
	// order is stable, which keeps last-resort tie-breaking reproducible.
	insertion map[EntityType][]string
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:        make(map[string]*Event),
		organizations: make(map[string]*Organization),
		venues:        make(map[string]*Venue),
		posts:         make(map[string]*Post),
		follows:       make(map[string][]string),
		categories:    make(map[string][]string),
		insertion:     make(map[EntityType][]string),
	}
}

// AddEvent stores an event, generating an ID when absent.
func (s *InMemoryStore) AddEvent(e *Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	cp := *e
	cp.Point = copyPoint(e.Point)
	cp.Tags = append([]string(nil), e.Tags...)
	s.events[cp.ID] = &cp
	s.insertion[EntityEvent] = append(s.insertion[EntityEvent], cp.ID)
	return cp.ID
}

// AddOrganization stores an organization, generating an ID when absent.
func (s *InMemoryStore) AddOrganization(o *Organization) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	cp := *o
	cp.Point = copyPoint(o.Point)
	cp.Tags = append([]string(nil), o.Tags...)
	s.organizations[cp.ID] = &cp
	s.insertion[EntityOrganization] = append(s.insertion[EntityOrganization], cp.ID)
	return cp.ID
}

// AddVenue stores a venue, generating an ID when absent.
func (s *InMemoryStore) AddVenue(v *Venue) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	cp := *v
	cp.Point = copyPoint(v.Point)
	s.venues[cp.ID] = &cp
	s.insertion[EntityVenue] = append(s.insertion[EntityVenue], cp.ID)
	return cp.ID
}

// AddPost stores a post, generating an ID when absent.
func (s *InMemoryStore) AddPost(p *Post) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	s.posts[cp.ID] = &cp
	s.insertion[EntityPost] = append(s.insertion[EntityPost], cp.ID)
	return cp.ID
}

// SetFollows records the organizers a user follows.
func (s *InMemoryStore) SetFollows(userID string, organizerIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[userID] = append([]string(nil), organizerIDs...)
}

// SetUserCategories records a user's engaged categories, most-engaged first.
func (s *InMemoryStore) SetUserCategories(userID string, categories []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[userID] = append([]string(nil), categories...)
}

// Fetch returns raw candidates of one entity type matching the filter.
// Candidates are returned in insertion order; ranking owns final ordering.
func (s *InMemoryStore) Fetch(ctx context.Context, entity EntityType, f Filter) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.EffectiveLimit()
	var out []Candidate

	for _, id := range s.insertion[entity] {
		if len(out) >= limit {
			break
		}

		var c Candidate
		switch entity {
		case EntityEvent:
			e, ok := s.events[id]
			if !ok || !s.eventMatches(e, f) {
				continue
			}
			c = e.AsCandidate()
		case EntityOrganization:
			o, ok := s.organizations[id]
			if !ok || !s.organizationMatches(o, f) {
				continue
			}
			c = o.AsCandidate()
		case EntityVenue:
			v, ok := s.venues[id]
			if !ok || !s.venueMatches(v, f) {
				continue
			}
			c = v.AsCandidate()
		case EntityPost:
			p, ok := s.posts[id]
			if !ok || !s.postMatches(p, f) {
				continue
			}
			c = p.AsCandidate()
		default:
			return nil, ErrUnknownEntityType
		}

		out = append(out, c)
	}

	return out, nil
}

// FollowedOrganizers returns the organizer IDs a user follows.
func (s *InMemoryStore) FollowedOrganizers(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.follows[userID]...), nil
}

// UserCategories returns the categories a user has engaged with.
func (s *InMemoryStore) UserCategories(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.categories[userID]...), nil
}

func (s *InMemoryStore) eventMatches(e *Event, f Filter) bool {
	if e.Visibility != "public" || e.Status != "published" {
		return false
	}
	now := f.EffectiveNow()
	if !f.IncludePast && e.StartsAt.Before(now) {
		return false
	}
	if f.DateFrom != nil && e.StartsAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && e.StartsAt.After(*f.DateTo) {
		return false
	}
	if f.VerifiedOnly && !e.Verified {
		return false
	}
	if !categoryMatches(e.Category, f) {
		return false
	}
	if len(f.OrganizerIDs) > 0 && !containsString(f.OrganizerIDs, e.OrganizerID) {
		return false
	}
	if f.Box != nil {
		if e.Point == nil || !f.Box.Contains(e.Point.Lat, e.Point.Lng) {
			return false
		}
	}
	return textMatches(f.Text, e.Title, e.Description, e.VenueName, e.City, e.Category, strings.Join(e.Tags, " "))
}

func (s *InMemoryStore) organizationMatches(o *Organization, f Filter) bool {
	if o.Visibility != "public" {
		return false
	}
	if f.VerifiedOnly && !o.Verified {
		return false
	}
	if !categoryMatches(o.Category, f) {
		return false
	}
	if f.Box != nil {
		if o.Point == nil || !f.Box.Contains(o.Point.Lat, o.Point.Lng) {
			return false
		}
	}
	return textMatches(f.Text, o.Name, o.Description, o.Category, o.City, strings.Join(o.Tags, " "))
}

func (s *InMemoryStore) venueMatches(v *Venue, f Filter) bool {
	if v.Visibility != "public" {
		return false
	}
	if f.VerifiedOnly && !v.Verified {
		return false
	}
	if f.Box != nil {
		if v.Point == nil || !f.Box.Contains(v.Point.Lat, v.Point.Lng) {
			return false
		}
	}
	return textMatches(f.Text, v.Name, v.Description, v.City)
}

func (s *InMemoryStore) postMatches(p *Post, f Filter) bool {
	if p.Visibility != "public" {
		return false
	}
	// Posts carry no coordinates; a geo-constrained fetch excludes them.
	if f.Box != nil {
		return false
	}
	return textMatches(f.Text, p.Title, p.Text, strings.Join(p.Tags, " "))
}

// textMatches reports whether the normalized query text is a
// case-insensitive substring of any of the given fields. An empty query
// matches everything.
func textMatches(text string, fields ...string) bool {
	if text == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

func categoryMatches(category string, f Filter) bool {
	if f.Category != "" && !strings.EqualFold(category, f.Category) {
		return false
	}
	if len(f.Categories) > 0 {
		for _, c := range f.Categories {
			if strings.EqualFold(category, c) {
				return true
			}
		}
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
