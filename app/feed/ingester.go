package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ianmintz/pourover/app/database"
)

// Ingester deduplicates a parsed feed against stored entries, reserves
// identity for new items and persists the enriched results. The
// (feed_id, guid) unique key is the sole dedup mechanism; the
// conflict-target insert in ReservePlaceholders makes the claim atomic
// across concurrent ingestions of the same feed.
type Ingester struct {
	entries  database.EntryRepository
	enricher *Enricher
}

func NewIngester(entries database.EntryRepository, enricher *Enricher) *Ingester {
	return &Ingester{
		entries:  entries,
		enricher: enricher,
	}
}

// Run processes a parsed feed and returns the guids that were new and
// the guids already known. When overflow is set (first import), every
// new entry is additionally marked published+overflow(reason) so the
// historical backlog is never posted.
func (i *Ingester) Run(ctx context.Context, parsed *ParsedFeed, fd *database.Feed, overflow bool, reason database.OverflowReason) ([]string, []string, error) {
	itemsByGUID := make(map[string]ParsedItem, len(parsed.Items))
	guids := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		guid := GUIDForItem(item)
		if _, seen := itemsByGUID[guid]; seen {
			continue
		}
		itemsByGUID[guid] = item
		guids = append(guids, guid)
	}

	existing, err := i.entries.GetByGUIDs(fd.ID, guids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up existing entries: %w", err)
	}

	oldGUIDs := make([]string, 0, len(existing))
	oldSet := make(map[string]bool, len(existing))
	for _, e := range existing {
		oldGUIDs = append(oldGUIDs, e.GUID)
		oldSet[e.GUID] = true
	}

	candidates := make([]string, 0, len(guids)-len(oldGUIDs))
	for _, guid := range guids {
		if !oldSet[guid] {
			candidates = append(candidates, guid)
		}
	}

	// Reservation must land before enrichment so a concurrent ingestion
	// of the same feed cannot double-create an identity. Guids lost to
	// another writer are treated as old.
	newGUIDs, err := i.entries.ReservePlaceholders(fd.ID, candidates)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reserve entries: %w", err)
	}
	if len(newGUIDs) < len(candidates) {
		wonSet := make(map[string]bool, len(newGUIDs))
		for _, guid := range newGUIDs {
			wonSet[guid] = true
		}
		for _, guid := range candidates {
			if !wonSet[guid] {
				oldGUIDs = append(oldGUIDs, guid)
			}
		}
	}

	enriched := i.enrichAll(ctx, newGUIDs, itemsByGUID, fd)

	if overflow {
		now := time.Now().UTC()
		for _, e := range enriched {
			e.Published = true
			e.PublishedAt = &now
			e.Overflow = true
			e.OverflowReason = reason
		}
	}

	if err := i.entries.UpdateEnriched(enriched); err != nil {
		return nil, nil, fmt.Errorf("failed to persist enriched entries: %w", err)
	}

	slog.Debug("Feed ingested", "feed_id", fd.ID,
		"new", len(newGUIDs), "old", len(oldGUIDs), "enriched", len(enriched))

	return newGUIDs, oldGUIDs, nil
}

// enrichAll fans enrichment out across goroutines and collects the
// results. Items yielding nil keep their reservation; the stale
// reservation sweep reclaims those later.
func (i *Ingester) enrichAll(ctx context.Context, guids []string, itemsByGUID map[string]ParsedItem, fd *database.Feed) []*database.Entry {
	results := make([]*database.Entry, len(guids))

	var wg sync.WaitGroup
	for idx, guid := range guids {
		item, ok := itemsByGUID[guid]
		if !ok {
			continue
		}

		wg.Add(1)
		go func(idx int, item ParsedItem) {
			defer wg.Done()
			results[idx] = i.enricher.Run(ctx, item, fd)
		}(idx, item)
	}
	wg.Wait()

	enriched := make([]*database.Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			enriched = append(enriched, e)
		}
	}

	return enriched
}
