package scraper

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"closet_backup/models"
)

// maxExtractDepth bounds the recursive document search so malformed payloads
// cannot blow the stack or burn time in pathological nesting.
const maxExtractDepth = 10

// Key sets that drive the shape heuristics. The feed has been observed to
// nest the listing array under different keys across app versions, so the
// extractor sniffs shapes instead of trusting a schema.
var (
	listingArrayKeys = []string{"posts", "data", "listings"}
	listingShapeKeys = []string{"canonical_path", "path", "id", "title", "listing_id", "post_id"}
	skipKeys         = map[string]bool{"metadata": true, "facets": true, "summaries": true}
)

// isListingShaped reports whether a mapping carries any of the keys
// characteristic of a single listing object.
func isListingShaped(m map[string]any) bool {
	for _, key := range listingShapeKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// hasListingArray returns the first listing array found directly under one of
// the well-known keys. First match wins; sibling candidates are not merged.
func hasListingArray(m map[string]any) ([]any, bool) {
	for _, key := range listingArrayKeys {
		if arr, ok := m[key].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// FindListings recovers the flat list of listing-shaped objects from an
// arbitrarily nested document. Map keys are visited in sorted order so the
// search is deterministic. Sequences are probed by their first element only:
// listing arrays are shape-homogeneous in practice, and probing every element
// would cost more than it catches.
func FindListings(doc any) []any {
	return findListings(doc, 0)
}

func findListings(node any, depth int) []any {
	if depth > maxExtractDepth {
		return nil
	}

	switch v := node.(type) {
	case map[string]any:
		if arr, ok := hasListingArray(v); ok {
			return arr
		}
		if isListingShaped(v) {
			return []any{v}
		}
		var out []any
		for _, key := range sortedKeys(v) {
			if skipKeys[key] {
				continue
			}
			out = append(out, findListings(v[key], depth+1)...)
		}
		return out

	case []any:
		if len(v) > 0 {
			if first, ok := v[0].(map[string]any); ok && isListingShaped(first) {
				return v
			}
		}
		var out []any
		for _, item := range v {
			out = append(out, findListings(item, depth+1)...)
		}
		return out
	}

	return nil
}

// ResolveRef turns a listing-shaped object into a ListingRef with an absolute
// URL. Path precedence: canonical_path, path, url, then a slug synthesized
// from title+id, then the bare id. Returns false when nothing routable can be
// derived. Malformed fields degrade to absence rather than erroring.
func ResolveRef(listing map[string]any) (models.ListingRef, bool) {
	id := listingID(listing)

	path := stringField(listing, "canonical_path")
	if path == "" {
		path = stringField(listing, "path")
	}
	if path == "" {
		path = stringField(listing, "url")
	}
	if path == "" && id != "" {
		if title := stringField(listing, "title"); title != "" {
			path = "/listing/" + slugifyTitle(title) + "-" + id
		} else {
			path = "/listing/" + id
		}
	}
	if path == "" {
		return models.ListingRef{}, false
	}

	return models.ListingRef{ID: id, URL: AbsoluteURL(path)}, true
}

// listingID returns the listing's remote identifier under any of its known
// key spellings, or "".
func listingID(listing map[string]any) string {
	for _, key := range []string{"id", "listing_id", "post_id"} {
		if s := stringField(listing, key); s != "" {
			return s
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9 -]+`)

// slugifyTitle lowercases the title, strips everything that is not
// alphanumeric, space, or hyphen, and turns spaces into hyphens.
func slugifyTitle(title string) string {
	s := strings.ToLower(title)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, " ", "-")
}

// AbsoluteURL resolves a path against the fixed site origin. Paths that
// already carry a scheme pass through untouched.
func AbsoluteURL(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return Origin + path
}

// FindNextCursor searches the whole document for the token to use on the next
// request: a next_max_id key wins, otherwise a max_id whose value differs from
// the cursor just used. First match in sorted-key traversal order wins.
func FindNextCursor(doc any, used Cursor) Cursor {
	if value := findNextMaxID(doc, used.Value, 0); value != "" {
		return ServerCursor(value)
	}
	return NoCursor()
}

func findNextMaxID(node any, usedValue string, depth int) string {
	if depth > maxExtractDepth {
		return ""
	}

	switch v := node.(type) {
	case map[string]any:
		if s := stringField(v, "next_max_id"); s != "" {
			return s
		}
		if s := stringField(v, "max_id"); s != "" && s != usedValue {
			return s
		}
		for _, key := range sortedKeys(v) {
			if result := findNextMaxID(v[key], usedValue, depth+1); result != "" {
				return result
			}
		}
	case []any:
		for _, item := range v {
			if result := findNextMaxID(item, usedValue, depth+1); result != "" {
				return result
			}
		}
	}
	return ""
}

// FindPageGroupID searches the document for a page_group_id value. It is
// discovered opportunistically once per run and cached for the fallback
// cursor path.
func FindPageGroupID(doc any) string {
	return findPageGroupID(doc, 0)
}

func findPageGroupID(node any, depth int) string {
	if depth > maxExtractDepth {
		return ""
	}

	switch v := node.(type) {
	case map[string]any:
		if s := stringField(v, "page_group_id"); s != "" {
			return s
		}
		for _, key := range sortedKeys(v) {
			if result := findPageGroupID(v[key], depth+1); result != "" {
				return result
			}
		}
	case []any:
		for _, item := range v {
			if result := findPageGroupID(item, depth+1); result != "" {
				return result
			}
		}
	}
	return ""
}

var (
	listingPathRe = regexp.MustCompile(`/listing/[^"'<>\s]+`)
	pageGroupRe   = regexp.MustCompile(`["']page_group_id["']\s*:\s*["']([^"']+)["']`)
)

// ScanListingPaths is the second-strategy extractor: a raw pattern scan over
// a page body for listing paths, used when the structured feed yields
// implausibly little.
func ScanListingPaths(body []byte) []string {
	matches := listingPathRe.FindAllString(string(body), -1)
	var paths []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			paths = append(paths, m)
		}
	}
	return paths
}

// ScanPageGroupID recovers a page_group_id from raw markup or script text.
func ScanPageGroupID(body []byte) string {
	if m := pageGroupRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
