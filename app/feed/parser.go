package feed

import (
	"bytes"
	"cmp"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*ParsedFeed, error) {
	source, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	parsed := &ParsedFeed{
		Title:       source.Title,
		Link:        source.Link,
		Description: source.Description,
		Language:    source.Language,
		Hub:         discoverHub(data),
	}

	parsed.Items = make([]ParsedItem, 0, len(source.Items))
	for _, item := range source.Items {
		parsed.Items = append(parsed.Items, p.normalizeItem(item))
	}

	return parsed, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) ParsedItem {
	normalized := ParsedItem{
		GUID:    cmp.Or(item.GUID, item.Link),
		Title:   item.Title,
		Summary: item.Description,
		Link:    item.Link,
		Content: item.Content,
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	}

	if item.Author != nil {
		normalized.Author = cmp.Or(item.Author.Name, item.Author.Email)
	}

	if item.Image != nil {
		normalized.ImageURL = item.Image.URL
	}

	// Fall back to the first image enclosure when the item carries no
	// explicit image (RSS 2.0 spec allows only one enclosure per item)
	if normalized.ImageURL == "" {
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
				normalized.ImageURL = enclosure.URL
				break
			}
		}
	}

	return normalized
}

// discoverHub scans the raw document for a link with rel="hub". gofeed
// drops link rel attributes during normalization, so this reads the XML
// tokens directly.
func discoverHub(data []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false

	for {
		token, err := decoder.Token()
		if err != nil {
			return ""
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "link" {
			continue
		}

		var rel, href string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "rel":
				rel = attr.Value
			case "href":
				href = attr.Value
			}
		}
		if rel == "hub" && href != "" {
			return href
		}
	}
}

// Instagram media API response, reduced to the fields the pipeline uses.

type instagramEnvelope struct {
	Data []instagramMedia `json:"data"`
}

type instagramMedia struct {
	ID          string `json:"id"`
	Link        string `json:"link"`
	CreatedTime string `json:"created_time"`
	Caption     *struct {
		Text string `json:"text"`
	} `json:"caption"`
	User struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
	} `json:"user"`
	Images struct {
		StandardResolution instagramImage `json:"standard_resolution"`
		Thumbnail          instagramImage `json:"thumbnail"`
	} `json:"images"`
}

type instagramImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ParseInstagram normalizes an Instagram media API response into the
// same shape the RSS path produces.
func (p *Parser) ParseInstagram(data []byte) (*ParsedFeed, error) {
	var envelope instagramEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse instagram response: %w", err)
	}

	parsed := &ParsedFeed{
		Items: make([]ParsedItem, 0, len(envelope.Data)),
	}

	for _, media := range envelope.Data {
		item := ParsedItem{
			GUID:            media.ID,
			Link:            media.Link,
			Author:          cmp.Or(media.User.FullName, media.User.Username),
			ImageURL:        media.Images.StandardResolution.URL,
			ImageWidth:      media.Images.StandardResolution.Width,
			ImageHeight:     media.Images.StandardResolution.Height,
			ThumbnailURL:    media.Images.Thumbnail.URL,
			ThumbnailWidth:  media.Images.Thumbnail.Width,
			ThumbnailHeight: media.Images.Thumbnail.Height,
		}

		if media.Caption != nil {
			item.Title = media.Caption.Text
		}

		if seconds, err := strconv.ParseInt(media.CreatedTime, 10, 64); err == nil {
			created := time.Unix(seconds, 0).UTC()
			item.PublishedAt = &created
		}

		if parsed.Title == "" && media.User.Username != "" {
			parsed.Title = media.User.Username
		}

		parsed.Items = append(parsed.Items, item)
	}

	return parsed, nil
}
