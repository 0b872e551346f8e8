package scraper

import "closet_backup/models"

// Session is the process-scoped aggregate of one discovery run. It is owned
// and mutated only by the paginator; nothing reads it concurrently. Seen ids
// live only for the run; incremental dedup across runs belongs to storage.
type Session struct {
	// PageGroupID is discovered once per run and cached for the fallback
	// cursor path.
	PageGroupID string

	seenIDs map[string]struct{}
	linkSet map[string]struct{}
	links   []string
}

func NewSession() *Session {
	return &Session{
		seenIDs: make(map[string]struct{}),
		linkSet: make(map[string]struct{}),
	}
}

// Add records a discovered listing. Deduplication is by exact absolute URL:
// two ids that resolve to the same synthesized URL collapse into one entry,
// an accepted precision loss. Returns true when the link was new.
func (s *Session) Add(ref models.ListingRef) bool {
	if ref.ID != "" {
		s.seenIDs[ref.ID] = struct{}{}
	}
	return s.AddURL(ref.URL)
}

// AddURL records a bare URL, as produced by the raw HTML fallback scan.
func (s *Session) AddURL(url string) bool {
	if url == "" {
		return false
	}
	if _, dup := s.linkSet[url]; dup {
		return false
	}
	s.linkSet[url] = struct{}{}
	s.links = append(s.links, url)
	return true
}

// Links returns the accumulated URLs in discovery order.
func (s *Session) Links() []string {
	return s.links
}

func (s *Session) Len() int {
	return len(s.links)
}
