package httputil

import (
	"net/http"
	"time"
)

// Per-request timeouts. The feed endpoint answers quickly or not at all; the
// listing pages are heavier HTML documents.
const (
	feedTimeout   = 10 * time.Second
	detailTimeout = 15 * time.Second
)

type Clients struct {
	Feed   *http.Client // closet feed API
	Detail *http.Client // individual listing pages
}

func NewClients() *Clients {
	return &Clients{
		Feed:   &http.Client{Timeout: feedTimeout},
		Detail: &http.Client{Timeout: detailTimeout},
	}
}

// BrowserHeaders sets the request headers the remote expects from a regular
// browser session. Requests without them get served a bot interstitial.
func BrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
}
