package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultWorkers = 5

// Counters summarizes a run. Skipped counts pages left alone because their
// output file already existed.
type Counters struct {
	Scraped int
	Failed  int
	Skipped int
}

// Scraper exports one Confluence space to a directory of static HTML.
type Scraper struct {
	cfg       Config
	baseURL   string
	spaceKey  string
	outputDir string

	client *confluenceClient
	store  *attachmentStore
	index  PageIndex

	retryDelay   time.Duration
	batchLimiter *rate.Limiter
	startedAt    time.Time

	mu            sync.Mutex
	counters      Counters
	progressTotal int
	progressDone  int
}

// NewScraper validates the configuration, loads the session cookies and
// prepares the output directory.
func NewScraper(cfg Config) (*Scraper, error) {
	baseURL, spaceKey, err := extractSpaceInfo(cfg.SpaceURL)
	if err != nil {
		return nil, err
	}

	cookies, err := loadCookies(cfg.CookiesFile, cfg.CookieString)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeSiteCSS(cfg.OutputDir); err != nil {
		return nil, err
	}

	client, err := newConfluenceClient(baseURL, cookies)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	cfg.Workers = workers

	fetcher, err := newAttachmentFetcher(baseURL, cookies, workers)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:       cfg,
		baseURL:   baseURL,
		spaceKey:  spaceKey,
		outputDir: cfg.OutputDir,
		client:    client,
		store: &attachmentStore{
			fetcher: fetcher,
			baseURL: baseURL,
			dir:     filepath.Join(cfg.OutputDir, "attachments"),
			verbose: cfg.Verbose,
		},
		index:        make(PageIndex),
		retryDelay:   batchRetryDelay,
		batchLimiter: rate.NewLimiter(rate.Every(batchInterval), 1),
		startedAt:    time.Now(),
	}, nil
}

// ScrapeSpace runs the whole export: metadata for every page first, then the
// pages through a bounded worker pool, then the space index. The returned
// counters are complete even when the run ends in an error.
func (s *Scraper) ScrapeSpace() (Counters, error) {
	logInfo("Fetching and filtering page list for space %s...", s.spaceKey)
	spaceName := s.fetchSpaceName()

	records, err := s.buildPageIndex(spaceName)
	if err != nil {
		return s.snapshot(), err
	}
	if len(records) == 0 {
		logWarn("No current pages found in space %s", s.spaceKey)
		return s.snapshot(), nil
	}
	logInfo("Found %d current pages to scrape", len(records))

	if err := materializeIcons(s.outputDir); err != nil {
		return s.snapshot(), err
	}
	if err := os.MkdirAll(s.store.dir, 0755); err != nil {
		return s.snapshot(), fmt.Errorf("creating attachments directory: %w", err)
	}

	s.mu.Lock()
	s.progressTotal = len(records)
	s.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, rec := range records {
		outFile := filepath.Join(s.outputDir, pageFilename(rec.Title, rec.ID))
		if s.cfg.SkipExisting {
			if _, statErr := os.Stat(outFile); statErr == nil {
				if s.cfg.Verbose {
					logSkip("Skipping existing page: %s", filepath.Base(outFile))
				}
				s.markSkipped()
				continue
			}
		}
		g.Go(func() error {
			s.runPageTask(rec, outFile)
			return nil
		})
	}
	g.Wait()

	if err := s.writeIndexFile(spaceName); err != nil {
		return s.snapshot(), err
	}

	c := s.snapshot()
	logSuccess("Scraping completed. %d pages scraped, %d skipped, %d failed.", c.Scraped, c.Skipped, c.Failed)
	return c, nil
}

// runPageTask exports a single page. Every failure mode, including a panic
// out of a transform pass on pathological markup, is contained here so one
// bad page never takes down the pool.
func (s *Scraper) runPageTask(rec *PageRecord, outFile string) {
	defer func() {
		if r := recover(); r != nil {
			logError("Page %s (%s) panicked: %v", rec.ID, rec.Title, r)
			s.markFailed()
		}
	}()

	if s.cfg.Verbose {
		logVisit(rec.URL)
	}
	if err := s.exportPage(rec, outFile); err != nil {
		logError("Page %s (%s): %v", rec.ID, rec.Title, err)
		s.markFailed()
		return
	}
	if s.cfg.Verbose {
		logSuccess("Saved: %s -> %s", rec.Title, filepath.Base(outFile))
	}
	s.markScraped()
}

// exportPage fetches one page, runs the transform pipeline over its body,
// localizes its attachments and writes the assembled document.
func (s *Scraper) exportPage(rec *PageRecord, outFile string) error {
	page, err := s.client.getPage(rec.ID)
	if err != nil {
		return fmt.Errorf("fetching content: %w", err)
	}

	doc, err := parseFragment(page.Body.View.Value)
	if err != nil {
		return fmt.Errorf("parsing body: %w", err)
	}

	resolveInternalLinks(doc, s.index, s.baseURL)
	s.store.localizeImages(doc, rec.ID)
	transformLayoutTables(doc)
	simplifyMarkup(doc)

	attachments := attachmentsFromMeta(page)
	localized := s.store.localizeAll(rec.ID, attachments)

	title := page.Title
	if title == "" {
		title = "Untitled Page"
	}
	spaceName := page.Space.Name
	if spaceName == "" {
		spaceName = "Confluence Page"
	}
	ancestors := make([]Ancestor, 0, len(page.Ancestors))
	for _, anc := range page.Ancestors {
		ancestors = append(ancestors, Ancestor{ID: anc.ID, Title: anc.Title})
	}

	out, err := buildPageDocument(documentInfo{
		ID:           rec.ID,
		Title:        title,
		SpaceName:    spaceName,
		Creator:      page.History.CreatedBy.DisplayName,
		LastModifier: page.History.LastUpdated.By.DisplayName,
		Modified:     formatDate(page.History.LastUpdated.When),
		Ancestors:    ancestors,
		Attachments:  attachments,
		Localized:    localized,
		Generated:    s.startedAt,
	}, doc)
	if err != nil {
		return fmt.Errorf("assembling document: %w", err)
	}
	if err := os.WriteFile(outFile, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outFile, err)
	}
	return nil
}

// writeIndexFile renders index.html from the accumulated page index.
func (s *Scraper) writeIndexFile(spaceName string) error {
	roots := buildPageTree(s.index)
	out, err := buildIndexDocument(s.spaceKey, spaceName, roots, s.startedAt)
	if err != nil {
		return fmt.Errorf("assembling index: %w", err)
	}
	path := filepath.Join(s.outputDir, "index.html")
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	logSuccess("Created index file: %s", path)
	return nil
}

// fetchSpaceName asks the API for the space's display name, falling back to
// the key when the space endpoint is unavailable.
func (s *Scraper) fetchSpaceName() string {
	space, err := s.client.getSpace(s.spaceKey)
	if err != nil {
		logWarn("Could not get space details: %v", err)
		return s.spaceKey
	}
	if space.Name == "" {
		return s.spaceKey
	}
	return space.Name
}

func (s *Scraper) markScraped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Scraped++
	s.progressDone++
	s.logProgressLocked()
}

func (s *Scraper) markFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Failed++
	s.progressDone++
	s.logProgressLocked()
}

func (s *Scraper) markSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Skipped++
	s.progressDone++
	s.logProgressLocked()
}

func (s *Scraper) logProgressLocked() {
	if s.progressTotal == 0 {
		return
	}
	logProgress(s.progressDone, s.progressTotal, float64(s.progressDone)/float64(s.progressTotal)*100)
}

func (s *Scraper) snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}
