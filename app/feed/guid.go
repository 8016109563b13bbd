package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GUIDForItem derives the stable dedup identity for an item: the source
// guid when the feed provides one, otherwise a hash of link and title.
// The result must be deterministic across fetches of the same item.
func GUIDForItem(item ParsedItem) string {
	if item.GUID != "" {
		return item.GUID
	}

	content := fmt.Sprintf("%s|%s", item.Link, item.Title)
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
