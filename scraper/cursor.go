package scraper

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// CursorKind distinguishes where a pagination token came from.
type CursorKind int

const (
	// CursorNone means pagination has not started or is exhausted.
	CursorNone CursorKind = iota
	// CursorServer is a token returned by the feed verbatim; it is passed
	// straight back without interpretation.
	CursorServer
	// CursorFallback is a locally synthesized token, used when the feed stops
	// returning native cursors but a page group id is known.
	CursorFallback
)

// fallbackPrefix marks a synthesized token so the remote can tell it apart
// from its own cursors.
const fallbackPrefix = "ENC_"

// Cursor is an opaque pagination token. Treat values as immutable.
type Cursor struct {
	Kind  CursorKind
	Value string
}

func NoCursor() Cursor {
	return Cursor{Kind: CursorNone}
}

func ServerCursor(value string) Cursor {
	return Cursor{Kind: CursorServer, Value: value}
}

type fallbackToken struct {
	MaxIDs      []int  `json:"max_ids"`
	PageNum     int    `json:"page_num"`
	PageGroupID string `json:"page_group_id"`
}

// FallbackCursor synthesizes a token for the given page using the page group
// id discovered earlier in the run. The wire format is the ENC_ marker plus
// base64 (padding stripped) of a small JSON object carrying the offset for
// that page.
func FallbackCursor(pageGroupID string, pageNum, pageSize int) Cursor {
	payload, _ := json.Marshal(fallbackToken{
		MaxIDs:      []int{pageSize * (pageNum - 1)},
		PageNum:     pageNum,
		PageGroupID: pageGroupID,
	})
	return Cursor{
		Kind:  CursorFallback,
		Value: fallbackPrefix + base64.RawStdEncoding.EncodeToString(payload),
	}
}

// DecodeFallbackCursor reverses FallbackCursor.
func DecodeFallbackCursor(value string) (pageGroupID string, pageNum, offset int, err error) {
	if !strings.HasPrefix(value, fallbackPrefix) {
		return "", 0, 0, fmt.Errorf("not a fallback cursor: %q", value)
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, fallbackPrefix))
	if err != nil {
		return "", 0, 0, fmt.Errorf("decode fallback cursor: %w", err)
	}
	var tok fallbackToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", 0, 0, fmt.Errorf("decode fallback cursor: %w", err)
	}
	if len(tok.MaxIDs) > 0 {
		offset = tok.MaxIDs[0]
	}
	return tok.PageGroupID, tok.PageNum, offset, nil
}
