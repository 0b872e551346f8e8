package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// feedPage builds a minimal feed response: count listings starting at id
// start, an optional next cursor, and an optional page group id.
func feedPage(t *testing.T, start, count int, next, pageGroupID string) []byte {
	t.Helper()
	items := make([]map[string]any, count)
	for i := 0; i < count; i++ {
		items[i] = map[string]any{
			"id":             fmt.Sprintf("%d", start+i),
			"canonical_path": fmt.Sprintf("/listing/item-%d", start+i),
		}
	}
	doc := map[string]any{"data": items}
	if next != "" {
		doc["more"] = map[string]any{"next_max_id": next}
	}
	if pageGroupID != "" {
		doc["req_info"] = map[string]any{"page_group_id": pageGroupID}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	return data
}

// requestMaxID pulls the max_id out of the request query's filter payload.
func requestMaxID(t *testing.T, r *http.Request) string {
	t.Helper()
	raw := r.URL.Query().Get("request")
	if raw == "" {
		return ""
	}
	var req struct {
		MaxID string `json:"max_id"`
	}
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("decode request param %q: %v", raw, err)
	}
	return req.MaxID
}

func testFeedClient(srv *httptest.Server) *FeedClient {
	f := NewFeedClient("testcloset", srv.Client())
	f.Origin = srv.URL
	return f
}

func TestPaginatorRunThreePages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requestMaxID(t, r) {
		case "":
			w.Write(feedPage(t, 0, 48, "t2", "pg-1"))
		case "t2":
			w.Write(feedPage(t, 48, 48, "t3", ""))
		case "t3":
			w.Write(feedPage(t, 96, 10, "", ""))
		default:
			t.Errorf("unexpected max_id %q", requestMaxID(t, r))
			w.Write(feedPage(t, 0, 0, "", ""))
		}
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	res := p.Run(context.Background())

	if res.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s (err %v)", res.State, res.Err)
	}
	if len(res.Links) != 106 {
		t.Fatalf("expected 106 links, got %d", len(res.Links))
	}
	if res.Pages != 3 {
		t.Fatalf("expected 3 pages, got %d", res.Pages)
	}
	if res.Links[0] != "https://poshmark.com/listing/item-0" {
		t.Fatalf("unexpected first link %s", res.Links[0])
	}
}

func TestPaginateStopsAfterTwoEmptyPages(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(feedPage(t, 0, 0, fmt.Sprintf("t%d", requests+1), ""))
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	sess := NewSession()
	res := &Result{}
	p.paginate(context.Background(), sess, res, 1, NoCursor())

	if res.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", res.State)
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests before giving up, got %d", requests)
	}
	if sess.Len() != 0 {
		t.Fatalf("expected no links, got %d", sess.Len())
	}
}

func TestPaginateShortPageStopsDespiteCursor(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// A short page that still advertises a next cursor.
		w.Write(feedPage(t, 0, 5, "t2", ""))
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	sess := NewSession()
	res := &Result{}
	p.paginate(context.Background(), sess, res, 1, NoCursor())

	if res.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", res.State)
	}
	if requests != 1 {
		t.Fatalf("expected the cursor to be ignored after a short page, got %d requests", requests)
	}
	if sess.Len() != 5 {
		t.Fatalf("expected 5 links, got %d", sess.Len())
	}
}

func TestPaginateAllDuplicatePageStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every page repeats the same 48 listings.
		w.Write(feedPage(t, 0, 48, "t2", ""))
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	sess := NewSession()
	res := &Result{}
	p.paginate(context.Background(), sess, res, 1, NoCursor())

	if res.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", res.State)
	}
	if sess.Len() != 48 {
		t.Fatalf("expected 48 unique links, got %d", sess.Len())
	}
	if res.Pages != 2 {
		t.Fatalf("expected to stop on the second, all-duplicate page, got %d pages", res.Pages)
	}
}

func TestPaginatorRunHitsPageCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requestMaxID(t, r) {
		case "":
			w.Write(feedPage(t, 0, 48, "t2", ""))
		case "t2":
			w.Write(feedPage(t, 48, 48, "t3", ""))
		default:
			t.Errorf("request past the ceiling: max_id %q", requestMaxID(t, r))
		}
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 2, 0)
	res := p.Run(context.Background())

	if res.State != StateCeiling {
		t.Fatalf("expected ceiling, got %s", res.State)
	}
	if len(res.Links) != 96 {
		t.Fatalf("expected 96 links, got %d", len(res.Links))
	}
}

func TestPaginatorRunKeepsPartialLinksOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestMaxID(t, r) == "" {
			w.Write(feedPage(t, 0, 48, "t2", ""))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	res := p.Run(context.Background())

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.Err == nil {
		t.Fatal("expected an error on the result")
	}
	if len(res.Links) != 48 {
		t.Fatalf("expected 48 partial links, got %d", len(res.Links))
	}
}

func TestPaginatorFallbackRestart(t *testing.T) {
	var fallbackCursor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxID := requestMaxID(t, r)
		switch {
		case maxID == "":
			// Implausibly small closet page, but with a page group id.
			w.Write(feedPage(t, 0, 2, "", "pg-1"))
		case len(maxID) > 4 && maxID[:4] == "ENC_":
			fallbackCursor = maxID
			_, pageNum, _, err := DecodeFallbackCursor(maxID)
			if err != nil {
				t.Errorf("bad fallback cursor: %v", err)
			}
			if pageNum == 2 {
				w.Write(feedPage(t, 100, 5, "", ""))
				return
			}
			w.Write(feedPage(t, 0, 0, "", ""))
		default:
			t.Errorf("unexpected max_id %q", maxID)
		}
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	res := p.Run(context.Background())

	if res.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", res.State)
	}
	if len(res.Links) != 7 {
		t.Fatalf("expected 2 primary + 5 fallback links, got %d", len(res.Links))
	}
	if fallbackCursor == "" {
		t.Fatal("expected a synthesized ENC_ cursor on the restart")
	}
	pageGroupID, pageNum, offset, err := DecodeFallbackCursor(fallbackCursor)
	if err != nil {
		t.Fatalf("decode restart cursor: %v", err)
	}
	if pageGroupID != "pg-1" || pageNum != 2 || offset != 48 {
		t.Fatalf("unexpected restart cursor: pg %s page %d offset %d", pageGroupID, pageNum, offset)
	}
}

func TestPaginatorRetriesTransientFailures(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(feedPage(t, 0, 10, "", ""))
	}))
	defer srv.Close()

	p := NewPaginator(testFeedClient(srv), 200, 0)
	p.Retry = RetryPolicy{Attempts: 3, Backoff: 0}
	sess := NewSession()
	res := &Result{}
	p.paginate(context.Background(), sess, res, 1, NoCursor())

	if res.State != StateExhausted {
		t.Fatalf("expected exhausted after retry, got %s (err %v)", res.State, res.Err)
	}
	if sess.Len() != 10 {
		t.Fatalf("expected 10 links, got %d", sess.Len())
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
}

func TestFeedClientPageURL(t *testing.T) {
	f := NewFeedClient("emily2636", nil)

	u, err := url.Parse(f.pageURL(NoCursor()))
	if err != nil {
		t.Fatalf("bad URL: %v", err)
	}
	if u.Path != "/vm-rest/users/emily2636/posts/filtered" {
		t.Fatalf("unexpected path %s", u.Path)
	}
	q := u.Query()
	if q.Get("summarize") != "true" {
		t.Fatalf("expected summarize=true")
	}

	var req map[string]any
	if err := json.Unmarshal([]byte(q.Get("request")), &req); err != nil {
		t.Fatalf("request param is not JSON: %v", err)
	}
	if req["count"] != float64(48) {
		t.Fatalf("expected count 48, got %v", req["count"])
	}
	if _, ok := req["max_id"]; ok {
		t.Fatal("bare first page must not carry max_id")
	}

	u, _ = url.Parse(f.pageURL(ServerCursor("tok-9")))
	_ = json.Unmarshal([]byte(u.Query().Get("request")), &req)
	if req["max_id"] != "tok-9" {
		t.Fatalf("expected max_id tok-9, got %v", req["max_id"])
	}
}
