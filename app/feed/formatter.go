package feed

import (
	"strings"

	"github.com/ianmintz/pourover/app/database"
)

const maxPostLength = 256

// Formatter builds the JSON payload for the external posting API.
// Dispatch is by feed type tag; both variants produce the same post
// shape (text, link entity, optional media annotation).
type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Run(entry *database.Entry, fd *database.Feed) map[string]any {
	switch fd.Type {
	case database.FeedTypeInstagram:
		return f.formatInstagram(entry, fd)
	default:
		return f.formatRSS(entry, fd)
	}
}

func (f *Formatter) formatRSS(entry *database.Entry, fd *database.Feed) map[string]any {
	body := entry.Title
	if fd.IncludeSummary && entry.Summary != "" {
		body = body + "\n" + entry.Summary
	}

	post := f.buildPost(body, entry.Link)

	annotations := []map[string]any{crosspostAnnotation(entry.Link)}
	if fd.IncludeThumb && entry.ThumbnailURL != "" {
		annotations = append(annotations, thumbAnnotation(entry))
	}
	post["annotations"] = annotations

	return post
}

func (f *Formatter) formatInstagram(entry *database.Entry, _ *database.Feed) map[string]any {
	post := f.buildPost(entry.Title, entry.Link)

	annotations := []map[string]any{crosspostAnnotation(entry.Link)}
	if entry.ThumbnailURL != "" {
		annotations = append(annotations, thumbAnnotation(entry))
	}
	post["annotations"] = annotations

	return post
}

// buildPost assembles text + trailing link, truncating the text so the
// whole post fits the post-length limit, and records the link entity
// positions in runes.
func (f *Formatter) buildPost(body, link string) map[string]any {
	body = strings.TrimSpace(body)

	post := map[string]any{}

	if link == "" {
		post["text"] = truncateRunes(body, maxPostLength)
		return post
	}

	linkRunes := len([]rune(link))
	budget := maxPostLength - linkRunes - 1
	if budget < 0 {
		budget = 0
	}
	body = truncateRunes(body, budget)

	text := link
	pos := 0
	if body != "" {
		text = body + " " + link
		pos = len([]rune(body)) + 1
	}

	post["text"] = text
	post["entities"] = map[string]any{
		"links": []map[string]any{
			{"pos": pos, "len": linkRunes, "url": link},
		},
	}

	return post
}

func crosspostAnnotation(link string) map[string]any {
	return map[string]any{
		"type":  "net.app.core.crosspost",
		"value": map[string]any{"canonical_url": link},
	}
}

func thumbAnnotation(entry *database.Entry) map[string]any {
	value := map[string]any{
		"type":          "photo",
		"version":       "1.0",
		"url":           entry.ImageURL,
		"width":         entry.ImageWidth,
		"height":        entry.ImageHeight,
		"thumbnail_url": entry.ThumbnailURL,
	}
	if entry.ThumbnailWidth > 0 {
		value["thumbnail_width"] = entry.ThumbnailWidth
		value["thumbnail_height"] = entry.ThumbnailHeight
	}

	return map[string]any{
		"type":  "net.app.core.oembed",
		"value": value,
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return ""
	}
	return string(runes[:limit-1]) + "…"
}
