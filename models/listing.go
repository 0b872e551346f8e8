package models

// ListingRef is the minimal identity record for a listing discovered in the
// closet feed. Uniqueness is keyed by ID when the feed supplies one, otherwise
// by the resolved URL. A ListingRef is never mutated after construction.
type ListingRef struct {
	ID  string
	URL string
}

// ListingDetail is the per-listing document persisted to storage. Field names
// match the JSON documents written by earlier backup runs, so they must not
// change without a migration of the stored objects.
type ListingDetail struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ScrapedAt   string `json:"scraped_at,omitempty"`
}
