package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	attachmentTimeout = 60 * time.Second

	// Keys for the per-request context carried through the collector.
	ctxKeySavePath = "savePath"
	ctxKeySaveErr  = "saveErr"
)

// Attachment is the metadata of one attachment as listed by the API.
type Attachment struct {
	ID        string
	Title     string
	MediaType string
}

// LocalAttachment describes an attachment that exists on disk after
// localization.
type LocalAttachment struct {
	ID       string
	Title    string
	Path     string
	Filename string
}

// attachmentStore downloads attachment and embedded image bytes into the
// attachments/ directory of the export.
type attachmentStore struct {
	fetcher *colly.Collector
	baseURL string
	dir     string
	verbose bool
}

// newAttachmentFetcher builds the collector used for attachment bytes. The
// collector revisits URLs freely since several attachments can share endpoint
// shapes, ignores robots.txt like the authenticated browser session it
// impersonates, and has no body size cap so large exports survive.
func newAttachmentFetcher(baseURL string, cookies []*http.Cookie, parallelism int) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(userAgent),
		colly.MaxBodySize(0),
	)
	c.SetRequestTimeout(attachmentTimeout)

	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: parallelism}); err != nil {
		return nil, fmt.Errorf("setting download limits: %w", err)
	}
	if len(cookies) > 0 {
		if err := c.SetCookies(baseURL, cookies); err != nil {
			return nil, fmt.Errorf("seeding session cookies: %w", err)
		}
	}

	c.OnResponse(func(r *colly.Response) {
		dest := r.Ctx.Get(ctxKeySavePath)
		if dest == "" {
			return
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			r.Ctx.Put(ctxKeySaveErr, err.Error())
			return
		}
		if err := r.Save(dest); err != nil {
			r.Ctx.Put(ctxKeySaveErr, err.Error())
		}
	})
	return c, nil
}

// attachmentCandidates returns the download URLs to try, in order. Confluence
// has served attachment bytes under a few endpoint shapes over the years;
// the plain api=v2 form works on current Cloud sites and the rest cover
// older instances and images addressed by attachment ID.
func attachmentCandidates(baseURL, pageID, attachmentID, title string) []string {
	escaped := url.PathEscape(title)
	stem := baseURL + "/download/attachments/" + pageID + "/" + escaped

	candidates := []string{
		stem + "?api=v2",
		stem,
		baseURL + "/download/attachments/" + pageID + "/" + attachmentID + "/" + escaped,
	}
	if trimmed := strings.TrimSuffix(baseURL, "/wiki"); trimmed != baseURL {
		candidates = append(candidates, trimmed+"/download/attachments/"+pageID+"/"+escaped)
	}
	return candidates
}

// localize downloads a single attachment to attachments/{pageID}/{filename},
// trying each candidate URL until one answers with the bytes. A file already
// on disk is reused without any request. The boolean reports whether the
// local file exists when localize returns.
func (a *attachmentStore) localize(pageID, attachmentID, title, filename string) (string, bool) {
	dest := filepath.Join(a.dir, pageID, filename)
	if _, err := os.Stat(dest); err == nil {
		return dest, true
	}

	for _, candidate := range attachmentCandidates(a.baseURL, pageID, attachmentID, title) {
		ctx := colly.NewContext()
		ctx.Put(ctxKeySavePath, dest)
		if err := a.fetcher.Request(http.MethodGet, candidate, nil, ctx, nil); err != nil {
			if a.verbose {
				logDim("  no luck at %s: %v", candidate, err)
			}
			continue
		}
		if msg := ctx.Get(ctxKeySaveErr); msg != "" {
			if a.verbose {
				logDim("  saving %s failed: %s", dest, msg)
			}
			continue
		}
		return dest, true
	}
	return "", false
}

// localizeAll downloads every listed attachment of a page and reports the
// ones that exist locally afterwards. Failures are logged and skipped so a
// single dead attachment never fails the page.
func (a *attachmentStore) localizeAll(pageID string, attachments []Attachment) []LocalAttachment {
	if len(attachments) == 0 {
		return nil
	}
	locals := make([]LocalAttachment, 0, len(attachments))
	for _, att := range attachments {
		if att.ID == "" || att.Title == "" {
			continue
		}
		filename := attachmentFilename(att.ID, att.Title)
		path, ok := a.localize(pageID, att.ID, att.Title, filename)
		if !ok {
			logWarn("Attachment %s (%s) on page %s: no download URL answered", att.ID, att.Title, pageID)
			continue
		}
		locals = append(locals, LocalAttachment{
			ID:       att.ID,
			Title:    att.Title,
			Path:     path,
			Filename: filename,
		})
	}
	return locals
}

// droppedImageAttrs are editor leftovers removed from an image tag once its
// source points at the local copy.
var droppedImageAttrs = map[string]bool{
	"srcset":                        true,
	"data-base-url":                 true,
	"data-height":                   true,
	"data-width":                    true,
	"data-unresolved-comment-count": true,
	"data-media-id":                 true,
	"data-media-type":               true,
}

// localizeImages downloads the embedded images of a page and rewrites their
// sources to the local attachments/ copy. Images that cannot be downloaded
// keep their remote source untouched.
func (a *attachmentStore) localizeImages(doc *goquery.Document, pageID string) {
	doc.Find("img[data-linked-resource-id][data-linked-resource-default-alias]").Each(func(_ int, img *goquery.Selection) {
		attachmentID, _ := img.Attr("data-linked-resource-id")
		alias, _ := img.Attr("data-linked-resource-default-alias")
		if attachmentID == "" || alias == "" {
			return
		}

		filename := attachmentFilename(attachmentID, alias)
		if _, ok := a.localize(pageID, attachmentID, alias, filename); !ok {
			return
		}

		local := "attachments/" + pageID + "/" + filename
		img.SetAttr("src", local)
		if _, has := img.Attr("data-image-src"); has {
			img.SetAttr("data-image-src", local)
		}
		for _, node := range img.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if strings.HasPrefix(attr.Key, "data-linked-resource-") || droppedImageAttrs[attr.Key] {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})
}
