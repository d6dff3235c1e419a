package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/eventide-app/eventide/internal/geo"
)

func testNow() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func publishedEvent(title string, startsAt time.Time) *Event {
	return &Event{
		Title:      title,
		StartsAt:   startsAt,
		Visibility: "public",
		Status:     "published",
		CreatedAt:  testNow().Add(-time.Hour),
	}
}

// TestFetch_TextMatchingAcrossFields verifies case-insensitive substring
// matching over the event field set.
func TestFetch_TextMatchingAcrossFields(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	e1 := publishedEvent("Summer Music Festival", now.Add(72*time.Hour))
	store.AddEvent(e1)

	e2 := publishedEvent("Warehouse Rave", now.Add(72*time.Hour))
	e2.City = "Musikstadt"
	store.AddEvent(e2)

	e3 := publishedEvent("Poetry Slam", now.Add(72*time.Hour))
	store.AddEvent(e3)

	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "music", Now: now})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Title != "Summer Music Festival" {
		t.Errorf("unexpected candidate: %s", got[0].Title)
	}

	// "musik" matches the city field of the second event.
	got, err = store.Fetch(context.Background(), EntityEvent, Filter{Text: "musik", Now: now})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Warehouse Rave" {
		t.Errorf("expected city match for Warehouse Rave, got %v", got)
	}
}

// TestFetch_ExcludesNonPublicCandidates verifies visibility and status
// filters always apply.
func TestFetch_ExcludesNonPublicCandidates(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	draft := publishedEvent("Secret Listening Party", now.Add(24*time.Hour))
	draft.Status = "draft"
	store.AddEvent(draft)

	private := publishedEvent("Private Listening Party", now.Add(24*time.Hour))
	private.Visibility = "private"
	store.AddEvent(private)

	store.AddOrganization(&Organization{Name: "Hidden Collective", Visibility: "private"})

	events, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "listening", Now: now})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}

	orgs, err := store.Fetch(context.Background(), EntityOrganization, Filter{Text: "hidden", Now: now})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(orgs) != 0 {
		t.Errorf("expected no organizations, got %d", len(orgs))
	}
}

// TestFetch_PastEventsExcludedByDefault verifies the include_past switch.
func TestFetch_PastEventsExcludedByDefault(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	store.AddEvent(publishedEvent("Last Month Jam", now.Add(-30*24*time.Hour)))
	store.AddEvent(publishedEvent("Next Week Jam", now.Add(7*24*time.Hour)))

	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "jam", Now: now})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Next Week Jam" {
		t.Errorf("expected only the upcoming event, got %v", got)
	}

	got, err = store.Fetch(context.Background(), EntityEvent, Filter{Text: "jam", Now: now, IncludePast: true})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected both events with IncludePast, got %d", len(got))
	}
}

// TestFetch_DateRange verifies date-range filtering on event start times.
func TestFetch_DateRange(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	store.AddEvent(publishedEvent("Early Show", now.Add(2*24*time.Hour)))
	store.AddEvent(publishedEvent("Late Show", now.Add(20*24*time.Hour)))

	from := now.Add(10 * 24 * time.Hour)
	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "show", Now: now, DateFrom: &from})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Late Show" {
		t.Errorf("expected only the late show, got %v", got)
	}

	to := now.Add(10 * 24 * time.Hour)
	got, err = store.Fetch(context.Background(), EntityEvent, Filter{Text: "show", Now: now, DateTo: &to})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Early Show" {
		t.Errorf("expected only the early show, got %v", got)
	}
}

// TestFetch_BoundingBox verifies the geo pre-filter and that candidates
// without coordinates are excluded from geo-constrained fetches.
func TestFetch_BoundingBox(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	near := publishedEvent("Close Gig", now.Add(24*time.Hour))
	near.Point = &Point{Lat: 40.72, Lng: -74.0}
	store.AddEvent(near)

	far := publishedEvent("Distant Gig", now.Add(24*time.Hour))
	far.Point = &Point{Lat: 51.5, Lng: -0.12}
	store.AddEvent(far)

	noCoords := publishedEvent("Nowhere Gig", now.Add(24*time.Hour))
	store.AddEvent(noCoords)

	box := geo.NewBoundingBox(40.7128, -74.0060, 25)
	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "gig", Now: now, Box: &box})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Close Gig" {
		t.Errorf("expected only the close gig, got %v", got)
	}
}

// TestFetch_VerifiedOnly verifies the verified filter across entity types.
func TestFetch_VerifiedOnly(t *testing.T) {
	store := NewInMemoryStore()

	store.AddOrganization(&Organization{Name: "Verified Collective", Verified: true, Visibility: "public"})
	store.AddOrganization(&Organization{Name: "Upstart Collective", Visibility: "public"})

	got, err := store.Fetch(context.Background(), EntityOrganization, Filter{Text: "collective", VerifiedOnly: true})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Verified Collective" {
		t.Errorf("expected only the verified collective, got %v", got)
	}
}

// TestFetch_OrganizerFilter verifies restriction to specific organizers.
func TestFetch_OrganizerFilter(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	mine := publishedEvent("Crew Night", now.Add(24*time.Hour))
	mine.OrganizerID = "org-1"
	store.AddEvent(mine)

	other := publishedEvent("Other Night", now.Add(24*time.Hour))
	other.OrganizerID = "org-2"
	store.AddEvent(other)

	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Now: now, OrganizerIDs: []string{"org-1"}})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Crew Night" {
		t.Errorf("expected only org-1 events, got %v", got)
	}
}

// TestFetch_InsertionOrderStable verifies candidates come back in
// insertion order, the last-resort tie-break for ranking.
func TestFetch_InsertionOrderStable(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	for _, title := range []string{"Set A", "Set B", "Set C"} {
		store.AddEvent(publishedEvent(title, now.Add(24*time.Hour)))
	}

	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "set", Now: now})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	for i, want := range []string{"Set A", "Set B", "Set C"} {
		if got[i].Title != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].Title, want)
		}
	}
}

// TestFetch_CandidateCap verifies the per-fetch candidate cap applies.
func TestFetch_CandidateCap(t *testing.T) {
	store := NewInMemoryStore()
	now := testNow()

	for i := 0; i < 10; i++ {
		store.AddEvent(publishedEvent("Capped Show", now.Add(24*time.Hour)))
	}

	got, err := store.Fetch(context.Background(), EntityEvent, Filter{Text: "capped", Now: now, Limit: 4})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("expected 4 candidates, got %d", len(got))
	}
}

// TestFetch_ContextCancellation verifies a cancelled context aborts the fetch.
func TestFetch_ContextCancellation(t *testing.T) {
	store := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Fetch(ctx, EntityEvent, Filter{}); err == nil {
		t.Error("expected error from cancelled context")
	}
}

// TestFollowedOrganizers_ReturnsCopy verifies follow data round-trips and
// callers cannot mutate internal state.
func TestFollowedOrganizers_ReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	store.SetFollows("user-1", []string{"org-1", "org-2"})

	got, err := store.FollowedOrganizers(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FollowedOrganizers failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 organizers, got %d", len(got))
	}

	got[0] = "mutated"
	again, _ := store.FollowedOrganizers(context.Background(), "user-1")
	if again[0] != "org-1" {
		t.Error("internal follow state was mutated through the returned slice")
	}
}

// TestAsCandidate_PostGeoExclusion verifies posts are excluded from
// geo-constrained fetches since they carry no coordinates.
func TestAsCandidate_PostGeoExclusion(t *testing.T) {
	store := NewInMemoryStore()
	store.AddPost(&Post{Title: "Festival recap", Text: "what a night", Visibility: "public"})

	box := geo.NewBoundingBox(40.7, -74.0, 10)
	got, err := store.Fetch(context.Background(), EntityPost, Filter{Text: "festival", Box: &box})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no posts under geo constraint, got %d", len(got))
	}
}
