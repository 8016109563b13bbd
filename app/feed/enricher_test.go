package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ianmintz/pourover/app/database"
)

func TestEnricherSanitizesSummary(t *testing.T) {
	enricher := NewEnricher()
	fd := &database.Feed{ID: 1, Language: "en-US"}

	item := ParsedItem{
		GUID:    "g1",
		Title:   "Plain <b>Title</b>",
		Summary: `<p>Hello <script>alert('x')</script><a href="https://evil.example">world</a></p>`,
		Link:    "https://example.com/a",
	}

	entry := enricher.Run(context.Background(), item, fd)
	if entry == nil {
		t.Fatal("Expected an enriched entry")
	}

	if strings.Contains(entry.Summary, "<") {
		t.Errorf("Expected all markup stripped from summary, got %q", entry.Summary)
	}
	if !strings.Contains(entry.Summary, "Hello") || !strings.Contains(entry.Summary, "world") {
		t.Errorf("Expected text content preserved, got %q", entry.Summary)
	}
	if strings.Contains(entry.Summary, "alert") {
		t.Errorf("Expected script content removed, got %q", entry.Summary)
	}
	if entry.Title != "Plain Title" {
		t.Errorf("Expected sanitized title, got %q", entry.Title)
	}
	if entry.Language != "en" {
		t.Errorf("Expected canonical language 'en', got %q", entry.Language)
	}
	if entry.GUID != "g1" {
		t.Errorf("Expected guid preserved, got %q", entry.GUID)
	}
}

func TestEnricherTruncatesLongSummary(t *testing.T) {
	enricher := NewEnricher()
	fd := &database.Feed{ID: 1}

	item := ParsedItem{
		Title:   "Long",
		Summary: strings.Repeat("a", 2000),
		Link:    "https://example.com/a",
	}

	entry := enricher.Run(context.Background(), item, fd)
	if len([]rune(entry.Summary)) != maxSummaryLength {
		t.Errorf("Expected summary truncated to %d runes, got %d", maxSummaryLength, len([]rune(entry.Summary)))
	}
}

func TestEnricherRejectsEmptyItem(t *testing.T) {
	enricher := NewEnricher()
	if entry := enricher.Run(context.Background(), ParsedItem{GUID: "g"}, &database.Feed{}); entry != nil {
		t.Errorf("Expected nil for unusable item, got %+v", entry)
	}
}

func TestEnricherThumbnailFallsBackToImage(t *testing.T) {
	enricher := NewEnricher()
	item := ParsedItem{
		Title:       "Pic",
		Link:        "https://example.com/pic",
		ImageURL:    "https://example.com/pic.jpg",
		ImageWidth:  640,
		ImageHeight: 480,
	}

	entry := enricher.Run(context.Background(), item, &database.Feed{ID: 1})
	if entry.ThumbnailURL != "https://example.com/pic.jpg" {
		t.Errorf("Expected thumbnail to fall back to image, got %q", entry.ThumbnailURL)
	}
	if entry.ThumbnailWidth != 200 || entry.ThumbnailHeight != 150 {
		t.Errorf("Expected thumbnail fitted to box, got %dx%d", entry.ThumbnailWidth, entry.ThumbnailHeight)
	}
	if entry.ImageWidth != 640 || entry.ImageHeight != 480 {
		t.Errorf("Expected image dimensions untouched, got %dx%d", entry.ImageWidth, entry.ImageHeight)
	}
}

func TestEnricherExtractsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><head><title>Page</title></head><body>
			<article>
				<h1>Article Heading</h1>
				<p>This is the main body of the article with enough substantial text for the
				readability extraction to consider it the primary content of the page.</p>
				<p>A second paragraph keeps the extraction comfortably above any minimum
				content thresholds the algorithm applies to candidate nodes.</p>
			</article>
		</body></html>`))
	}))
	defer server.Close()

	enricher := NewEnricher()
	fd := &database.Feed{ID: 1, ExtractContent: true}
	item := ParsedItem{Title: "Article", Link: server.URL}

	entry := enricher.Run(context.Background(), item, fd)
	if !entry.ContentExtracted {
		t.Fatal("Expected content to be extracted")
	}
	if !strings.Contains(entry.Content, "main body of the article") {
		t.Errorf("Expected extracted article text, got %q", entry.Content)
	}
}

func TestEnricherExtractFailureLeavesContentEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	enricher := NewEnricher()
	fd := &database.Feed{ID: 1, ExtractContent: true}
	entry := enricher.Run(context.Background(), ParsedItem{Title: "Gone", Link: server.URL}, fd)

	if entry == nil {
		t.Fatal("Expected entry even when extraction fails")
	}
	if entry.ContentExtracted || entry.Content != "" {
		t.Errorf("Expected empty content after failed extraction, got %+v", entry)
	}
}

func TestCanonicalLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en-US", "en"},
		{"en_us", "en"},
		{"de", "de"},
		{"", ""},
		{"not a language at all", "not a language at all"},
	}

	for _, tt := range tests {
		if got := CanonicalLanguage(tt.input); got != tt.expected {
			t.Errorf("CanonicalLanguage(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestFitToBox(t *testing.T) {
	tests := []struct {
		w, h           int
		expectW, expectH int
	}{
		{640, 480, 200, 150},
		{480, 640, 150, 200},
		{100, 100, 100, 100},
		{0, 0, 0, 0},
		{200, 200, 200, 200},
	}

	for _, tt := range tests {
		w, h := FitToBox(tt.w, tt.h, 200, 200)
		if w != tt.expectW || h != tt.expectH {
			t.Errorf("FitToBox(%d, %d) = (%d, %d), expected (%d, %d)", tt.w, tt.h, w, h, tt.expectW, tt.expectH)
		}
	}
}
