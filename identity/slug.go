package identity

import (
	"net/url"
	"regexp"
	"strings"
)

const maxSlugLen = 100

var (
	hexIDSuffix = regexp.MustCompile(`-([a-f0-9]+)$`)
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// ListingSlug derives the storage key for a listing from its URL. The remote
// ends listing paths with a hex object id after the last dash; that id alone
// is the stable identity, so prefer it. Anything else falls back to the
// sanitized path, capped so it stays usable as a filename or object key.
func ListingSlug(listingURL string) string {
	if m := hexIDSuffix.FindStringSubmatch(listingURL); m != nil {
		return m[1]
	}

	path := listingURL
	if parsed, err := url.Parse(listingURL); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	slug := unsafeChars.ReplaceAllString(strings.Trim(path, "/"), "_")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}
