package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"closet_backup/httputil"
	"closet_backup/models"
)

// DetailFetcher fetches an individual listing page and extracts its name and
// description. The engine treats it as a black box invoked once per listing.
type DetailFetcher struct {
	Client *http.Client
}

func NewDetailFetcher(client *http.Client) *DetailFetcher {
	return &DetailFetcher{Client: client}
}

// Fetch retrieves listingURL and extracts the detail fields. Missing fields
// degrade to empty strings; only transport-level problems are errors.
func (d *DetailFetcher) Fetch(ctx context.Context, listingURL string) (*models.ListingDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("detail request: %w", err)
	}
	httputil.BrowserHeaders(req)

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detail fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detail fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("detail read: %w", err)
	}

	detail := ParseListingPage(body)
	detail.URL = listingURL
	return detail, nil
}

// ParseListingPage extracts {name, description} from a listing page document.
func ParseListingPage(body []byte) *models.ListingDetail {
	detail := &models.ListingDetail{}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return detail
	}

	detail.Name = strings.TrimSpace(doc.Find(`h1[class*="listing__title-container"]`).First().Text())
	// Description keeps its internal line breaks; only outer whitespace goes.
	detail.Description = strings.Trim(doc.Find(`div[class*="listing__description"]`).First().Text(), " \t\n")

	return detail
}
