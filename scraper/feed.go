package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"closet_backup/httputil"
)

const (
	// Origin is the fixed site origin; relative listing paths are resolved
	// against it.
	Origin = "https://poshmark.com"

	// PageSize is the per-page listing count the feed is asked for. The
	// short-page termination heuristic compares against this value.
	PageSize = 48

	appVersion = "2.55"
	pmVersion  = "2025.45.0"
)

// FetchErrorKind classifies how a page fetch failed.
type FetchErrorKind int

const (
	FetchNetwork FetchErrorKind = iota
	FetchStatus
	FetchDecode
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchNetwork:
		return "network"
	case FetchStatus:
		return "status"
	case FetchDecode:
		return "decode"
	}
	return "unknown"
}

// FetchError is the typed failure returned by FeedClient.FetchPage.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("feed fetch: status %d", e.StatusCode)
	}
	return fmt.Sprintf("feed fetch: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same request could plausibly
// succeed. Decode failures are not transient: the body already arrived.
func (e *FetchError) Transient() bool {
	return e.Kind == FetchNetwork || (e.Kind == FetchStatus && e.StatusCode >= 500)
}

// FeedClient performs exactly one network call per FetchPage invocation
// against the closet's filtered-posts feed. It holds no session state and
// never retries; both belong to the paginator.
type FeedClient struct {
	Username string
	Origin   string
	Client   *http.Client
}

func NewFeedClient(username string, client *http.Client) *FeedClient {
	return &FeedClient{Username: username, Origin: Origin, Client: client}
}

// feedRequest is the fixed filter template the feed expects, merged with the
// cursor when one is held. The shape was reverse-engineered from the site's
// own frontend calls and may drift without notice.
type feedRequest struct {
	Filters      feedFilters `json:"filters"`
	Experience   string      `json:"experience"`
	Count        int         `json:"count"`
	StaticFacets bool        `json:"static_facets"`
	MaxID        string      `json:"max_id,omitempty"`
}

type feedFilters struct {
	Department      string   `json:"department"`
	InventoryStatus []string `json:"inventory_status"`
}

func (f *FeedClient) pageURL(cursor Cursor) string {
	req := feedRequest{
		Filters: feedFilters{
			Department:      "All",
			InventoryStatus: []string{"available"},
		},
		Experience: "all",
		Count:      PageSize,
	}
	if cursor.Kind != CursorNone {
		req.MaxID = cursor.Value
	}
	payload, _ := json.Marshal(req)

	return fmt.Sprintf("%s/vm-rest/users/%s/posts/filtered?request=%s&summarize=true&app_version=%s&pm_version=%s",
		f.Origin, f.Username, url.QueryEscape(string(payload)), appVersion, pmVersion)
}

// FetchPage requests one page of the feed. It returns the decoded document
// and raw body on 2xx, or a *FetchError classifying the failure.
func (f *FeedClient) FetchPage(ctx context.Context, cursor Cursor) (any, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.pageURL(cursor), nil)
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	httputil.BrowserHeaders(req)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, body, &FetchError{Kind: FetchStatus, StatusCode: resp.StatusCode}
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, body, &FetchError{Kind: FetchDecode, Err: err}
	}

	return doc, body, nil
}

// ClosetURL is the public storefront page for the closet, used for the raw
// HTML fallback scan.
func (f *FeedClient) ClosetURL() string {
	return fmt.Sprintf("%s/closet/%s?availability=available", f.Origin, f.Username)
}

// FetchClosetHTML fetches the storefront HTML page.
func (f *FeedClient) FetchClosetHTML(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ClosetURL(), nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	httputil.BrowserHeaders(req)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &FetchError{Kind: FetchStatus, StatusCode: resp.StatusCode}
	}
	return body, nil
}
