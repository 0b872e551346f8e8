package scraper

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestFallbackCursorRoundTrip(t *testing.T) {
	c := FallbackCursor("abc123", 3, 48)

	if c.Kind != CursorFallback {
		t.Fatalf("expected fallback kind, got %v", c.Kind)
	}
	if !strings.HasPrefix(c.Value, "ENC_") {
		t.Fatalf("expected ENC_ prefix, got %q", c.Value)
	}
	if strings.Contains(c.Value, "=") {
		t.Fatalf("expected stripped padding, got %q", c.Value)
	}

	pageGroupID, pageNum, offset, err := DecodeFallbackCursor(c.Value)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if pageGroupID != "abc123" {
		t.Fatalf("expected page group abc123, got %s", pageGroupID)
	}
	if pageNum != 3 {
		t.Fatalf("expected page 3, got %d", pageNum)
	}
	if offset != 96 {
		t.Fatalf("expected offset 96, got %d", offset)
	}
}

func TestFallbackCursorWireFormat(t *testing.T) {
	c := FallbackCursor("pg", 2, 48)

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(c.Value, "ENC_"))
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	want := `{"max_ids":[48],"page_num":2,"page_group_id":"pg"}`
	if string(raw) != want {
		t.Fatalf("unexpected payload %s, want %s", raw, want)
	}
}

func TestFallbackCursorFirstPageOffsetZero(t *testing.T) {
	c := FallbackCursor("pg", 1, 48)
	_, pageNum, offset, err := DecodeFallbackCursor(c.Value)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if pageNum != 1 || offset != 0 {
		t.Fatalf("expected page 1 offset 0, got page %d offset %d", pageNum, offset)
	}
}

func TestDecodeFallbackCursorRejectsServerTokens(t *testing.T) {
	if _, _, _, err := DecodeFallbackCursor("plain-server-token"); err == nil {
		t.Fatal("expected error for token without ENC_ prefix")
	}
	if _, _, _, err := DecodeFallbackCursor("ENC_%%%not-base64%%%"); err == nil {
		t.Fatal("expected error for invalid base64 payload")
	}
}
