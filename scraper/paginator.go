package scraper

import (
	"context"
	"errors"
	"log"
	"time"

	"closet_backup/models"
)

// TerminalState is how a discovery run ended.
type TerminalState string

const (
	// StateExhausted is the expected, non-error termination: the feed ran out
	// of listings.
	StateExhausted TerminalState = "exhausted"
	// StateCeiling means the page ceiling was reached; the result may be
	// partial but is not an error.
	StateCeiling TerminalState = "ceiling"
	// StateFailed means a fetch failure ended the run early; accumulated
	// links are still returned.
	StateFailed TerminalState = "failed"
)

// fallbackThreshold: a closet yielding fewer links than this is implausible
// enough to justify the raw-HTML second strategy.
const fallbackThreshold = 50

// PageResult is the outcome of one fetch+extract cycle, pre-deduplication.
type PageResult struct {
	Listings   []models.ListingRef
	NextCursor Cursor
	// RawCount is the number of listing-shaped objects found before
	// resolution and dedup; an all-duplicates page still counts as non-empty
	// for the empty-streak heuristic.
	RawCount int
}

// ExtractPage mines one decoded feed document for listings and the cursor to
// use on the following request.
func ExtractPage(doc any, used Cursor) PageResult {
	items := FindListings(doc)
	result := PageResult{RawCount: len(items)}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if ref, ok := ResolveRef(m); ok {
			result.Listings = append(result.Listings, ref)
		}
	}
	result.NextCursor = FindNextCursor(doc, used)
	return result
}

// RetryPolicy bounds optional retry of transient fetch failures. A zero
// policy disables retries and a failed page ends the run with partial data.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Paginator drives repeated fetch+extract cycles against one closet's feed
// until exhaustion or the page ceiling, strictly sequentially, with a
// politeness delay after every page.
type Paginator struct {
	Feed     *FeedClient
	Diag     DiagnosticsSink
	MaxPages int
	Delay    time.Duration
	Retry    RetryPolicy
}

func NewPaginator(feed *FeedClient, maxPages int, delay time.Duration) *Paginator {
	return &Paginator{Feed: feed, MaxPages: maxPages, Delay: delay}
}

// Result is the aggregate outcome of a discovery run.
type Result struct {
	Links []string
	Pages int
	State TerminalState
	Err   error
}

// Run enumerates all listing links behind the feed. If the primary pass
// yields implausibly little, it scans the raw page body for listing paths,
// tries to recover pagination tokens, and restarts paging once from page 2
// using the fallback-cursor strategy before giving up.
func (p *Paginator) Run(ctx context.Context) *Result {
	sess := NewSession()
	res := &Result{}

	lastBody := p.paginate(ctx, sess, res, 1, NoCursor())

	if sess.Len() < fallbackThreshold && res.State != StateFailed {
		p.recoverFromRawBody(ctx, sess, res, lastBody)
	}

	res.Links = sess.Links()
	log.Printf("Feed: discovery finished: %d links across %d pages (%s)", len(res.Links), res.Pages, res.State)
	return res
}

// paginate runs the paging state machine from startPage with the given
// cursor, updating res in place and returning the last fetched body for the
// fallback scan. The same loop serves both the primary pass and the
// fallback restart; only the starting cursor strategy differs.
func (p *Paginator) paginate(ctx context.Context, sess *Session, res *Result, startPage int, cursor Cursor) []byte {
	emptyStreak := 0
	var lastBody []byte

	for page := startPage; page <= p.MaxPages; page++ {
		// No native cursor: synthesize one, but only once a page group id is
		// known. The very first page is always sent bare.
		if cursor.Kind == CursorNone && page > 1 && sess.PageGroupID != "" {
			cursor = FallbackCursor(sess.PageGroupID, page, PageSize)
		}

		doc, body, err := p.fetch(ctx, cursor)
		if err != nil {
			log.Printf("Feed: page %d failed: %v", page, err)
			res.State = StateFailed
			res.Err = err
			return lastBody
		}
		res.Pages++
		lastBody = body

		if page == startPage && p.Diag != nil {
			p.Diag.DumpResponse(page, body)
		}
		if sess.PageGroupID == "" {
			if id := FindPageGroupID(doc); id != "" {
				sess.PageGroupID = id
				log.Printf("Feed: discovered page_group_id")
			}
		}

		pr := ExtractPage(doc, cursor)

		if pr.RawCount == 0 {
			emptyStreak++
			if emptyStreak >= 2 {
				log.Printf("Feed: no listings for two pages, stopping at page %d", page)
				res.State = StateExhausted
				return lastBody
			}
			cursor = pr.NextCursor
			if err := sleepCtx(ctx, p.Delay); err != nil {
				res.State = StateFailed
				res.Err = err
				return lastBody
			}
			continue
		}
		emptyStreak = 0

		newCount := 0
		for _, ref := range pr.Listings {
			if sess.Add(ref) {
				newCount++
			}
		}
		log.Printf("Feed: page %d: %d listings, %d new (total %d)", page, pr.RawCount, newCount, sess.Len())

		// Short page: the tail of the listing set, even when a next cursor is
		// technically present. Observed cursors are not reliably terminal.
		if newCount < PageSize {
			res.State = StateExhausted
			return lastBody
		}

		cursor = pr.NextCursor
		if err := sleepCtx(ctx, p.Delay); err != nil {
			res.State = StateFailed
			res.Err = err
			return lastBody
		}
	}

	res.State = StateCeiling
	return lastBody
}

// recoverFromRawBody is the degrade-and-retry pass: scan a raw body for
// listing paths, recover pagination tokens, and restart paging from page 2.
// Every avenue is tried once; none of it can fail the run.
func (p *Paginator) recoverFromRawBody(ctx context.Context, sess *Session, res *Result, lastBody []byte) {
	log.Printf("Feed: only %d links from the feed, trying raw page scan", sess.Len())

	body := lastBody
	if len(body) == 0 {
		var err error
		body, err = p.Feed.FetchClosetHTML(ctx)
		if err != nil {
			log.Printf("Warning: closet page fetch for fallback scan: %v", err)
			return
		}
	}

	scanned := 0
	for _, path := range ScanListingPaths(body) {
		if sess.AddURL(AbsoluteURL(path)) {
			scanned++
		}
	}
	log.Printf("Feed: raw scan added %d links", scanned)

	if sess.PageGroupID == "" {
		sess.PageGroupID = ScanPageGroupID(body)
	}

	// Try one bare feed call to recover a cursor for the restart.
	cursor := NoCursor()
	if doc, _, err := p.Feed.FetchPage(ctx, NoCursor()); err == nil {
		cursor = FindNextCursor(doc, NoCursor())
		if sess.PageGroupID == "" {
			sess.PageGroupID = FindPageGroupID(doc)
		}
	} else {
		log.Printf("Warning: token recovery fetch: %v", err)
	}

	if cursor.Kind == CursorNone && sess.PageGroupID == "" {
		log.Printf("Feed: no pagination tokens recoverable, keeping %d links", sess.Len())
		return
	}

	log.Printf("Feed: restarting pagination from page 2 (cursor: %v, page_group_id: %v)",
		cursor.Kind != CursorNone, sess.PageGroupID != "")
	p.paginate(ctx, sess, res, 2, cursor)
}

func (p *Paginator) fetch(ctx context.Context, cursor Cursor) (any, []byte, error) {
	doc, body, err := p.Feed.FetchPage(ctx, cursor)
	if err == nil || p.Retry.Attempts <= 0 {
		return doc, body, err
	}

	for attempt := 1; attempt < p.Retry.Attempts; attempt++ {
		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Transient() {
			break
		}
		wait := p.Retry.Backoff * time.Duration(attempt)
		log.Printf("Feed: transient failure (%v), retry %d/%d in %s", err, attempt, p.Retry.Attempts-1, wait)
		if serr := sleepCtx(ctx, wait); serr != nil {
			return nil, nil, serr
		}
		doc, body, err = p.Feed.FetchPage(ctx, cursor)
		if err == nil {
			break
		}
	}
	return doc, body, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
