package stats

import (
	"sync"
	"testing"
)

// TestCacheStats_Counters verifies basic counting.
func TestCacheStats_Counters(t *testing.T) {
	s := NewCacheStats()

	s.RecordHit()
	s.RecordHit()
	s.RecordMiss()
	s.RecordError()

	if s.Hits() != 2 {
		t.Errorf("hits = %d, want 2", s.Hits())
	}
	if s.Misses() != 1 {
		t.Errorf("misses = %d, want 1", s.Misses())
	}
	if s.Errors() != 1 {
		t.Errorf("errors = %d, want 1", s.Errors())
	}
	if s.Total() != 3 {
		t.Errorf("total = %d, want 3", s.Total())
	}
}

// TestCacheStats_ConcurrentIncrements verifies counters are safe under
// concurrent use.
func TestCacheStats_ConcurrentIncrements(t *testing.T) {
	s := NewCacheStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordHit()
			}
		}()
	}
	wg.Wait()

	if s.Hits() != 5000 {
		t.Errorf("hits = %d, want 5000", s.Hits())
	}
}

// TestCacheStats_Reset verifies counters reset to zero.
func TestCacheStats_Reset(t *testing.T) {
	s := NewCacheStats()
	s.RecordHit()
	s.RecordMiss()
	s.Reset()

	if s.Total() != 0 || s.Errors() != 0 {
		t.Errorf("expected zeroed counters after reset, got %s", s.String())
	}
}
