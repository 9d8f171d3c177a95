package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	pageBatchSize = 50
	// batchInterval paces the metadata listing requests.
	batchInterval   = 50 * time.Millisecond
	batchRetryDelay = 3 * time.Second
)

// Ancestor is one entry of a page's ancestor chain, ordered root first.
type Ancestor struct {
	ID    string
	Title string
}

// PageRecord is the metadata the exporter keeps for every current page in the
// space. The index of records is built once, before any page is exported, so
// link resolution can look up any sibling page.
type PageRecord struct {
	ID        string
	Title     string
	URL       string
	Ancestors []Ancestor
	SpaceKey  string
	SpaceName string
	CreatedBy string
	Status    string
}

// PageIndex maps page IDs to their records.
type PageIndex map[string]*PageRecord

// buildPageIndex fetches the metadata of every page in the space in fixed
// size batches and fills the scraper's index with the current ones. The
// returned slice keeps the API's listing order. A failed batch is retried
// from the same offset after a delay; MaxRetries of zero keeps retrying
// until the server recovers.
func (s *Scraper) buildPageIndex(spaceName string) ([]*PageRecord, error) {
	logInfo("Fetching all pages metadata from space %s...", s.spaceKey)

	var all []pageMeta
	start := 0
	attempts := 0
	for {
		if err := s.batchLimiter.Wait(context.Background()); err != nil {
			return nil, err
		}
		batch, err := s.client.listPages(s.spaceKey, start, pageBatchSize)
		if err != nil {
			attempts++
			if s.cfg.MaxRetries > 0 && attempts > s.cfg.MaxRetries {
				return nil, fmt.Errorf("page listing at offset %d failed after %d attempts: %w", start, attempts, err)
			}
			logRateLimit("Error fetching page batch (start=%d): %v. Retrying in %s...", start, err, s.retryDelay)
			time.Sleep(s.retryDelay)
			continue
		}
		attempts = 0
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < pageBatchSize {
			break
		}
		start += pageBatchSize
	}

	var records []*PageRecord
	skippedArchived := 0
	for _, meta := range all {
		status := meta.Status
		if status == "" {
			status = "current"
		}
		if status != "current" {
			skippedArchived++
			continue
		}
		if meta.ID == "" {
			continue
		}
		rec := s.recordFromMeta(meta, spaceName)
		records = append(records, rec)
		s.index[rec.ID] = rec
	}
	logInfo("Processed %d current pages. Skipped %d non-current pages.", len(records), skippedArchived)
	return records, nil
}

func (s *Scraper) recordFromMeta(meta pageMeta, spaceName string) *PageRecord {
	title := meta.Title
	if title == "" {
		title = "Untitled"
	}

	webui := meta.Links.WebUI
	if webui == "" {
		webui = "/spaces/" + s.spaceKey + "/pages/" + meta.ID
	}
	pageURL := s.baseURL + webui
	if !strings.HasPrefix(webui, "/") {
		pageURL = s.baseURL + "/" + webui
	}

	ancestors := make([]Ancestor, 0, len(meta.Ancestors))
	for _, anc := range meta.Ancestors {
		if anc.ID == "" {
			continue
		}
		ancTitle := anc.Title
		if ancTitle == "" {
			ancTitle = "Untitled Ancestor"
		}
		ancestors = append(ancestors, Ancestor{ID: anc.ID, Title: ancTitle})
	}

	createdBy := meta.History.CreatedBy.DisplayName
	if createdBy == "" {
		createdBy = "Unknown"
	}

	return &PageRecord{
		ID:        meta.ID,
		Title:     title,
		URL:       pageURL,
		Ancestors: ancestors,
		SpaceKey:  s.spaceKey,
		SpaceName: spaceName,
		CreatedBy: createdBy,
		Status:    "current",
	}
}

// pageNode is one node of the page hierarchy rendered on the index page.
type pageNode struct {
	record   *PageRecord
	children []*pageNode
}

// buildPageTree links every record under its immediate ancestor. Pages whose
// parent is outside the index (archived, trashed, or in another space) become
// roots. Siblings are sorted by title, case-insensitively, so the tree is
// deterministic regardless of API ordering.
func buildPageTree(index PageIndex) []*pageNode {
	nodes := make(map[string]*pageNode, len(index))
	for id, rec := range index {
		nodes[id] = &pageNode{record: rec}
	}

	var roots []*pageNode
	for id, node := range nodes {
		rec := index[id]
		if len(rec.Ancestors) == 0 {
			roots = append(roots, node)
			continue
		}
		parentID := rec.Ancestors[len(rec.Ancestors)-1].ID
		if parent, ok := nodes[parentID]; ok {
			parent.children = append(parent.children, node)
		} else {
			roots = append(roots, node)
		}
	}

	var sortTree func([]*pageNode)
	sortTree = func(ns []*pageNode) {
		slices.SortStableFunc(ns, func(a, b *pageNode) int {
			return cmp.Compare(strings.ToLower(a.record.Title), strings.ToLower(b.record.Title))
		})
		for _, n := range ns {
			sortTree(n.children)
		}
	}
	sortTree(roots)
	return roots
}
