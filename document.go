package main

import (
	"bytes"
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// documentInfo carries everything the assembler needs to wrap one page's
// transformed content into a standalone document.
type documentInfo struct {
	ID           string
	Title        string
	SpaceName    string
	Creator      string
	LastModifier string
	// Modified is the human formatted modification date, or "" when the API
	// did not report one.
	Modified    string
	Ancestors   []Ancestor
	Attachments []Attachment
	Localized   []LocalAttachment
	Generated   time.Time
}

// buildPageDocument wraps transformed page content in the full Confluence
// export chrome: breadcrumbs, title heading, metadata line, content area,
// attachment listing and footer. It returns the rendered document bytes.
func buildPageDocument(info documentInfo, content *goquery.Document) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<html><head><title>`)
	b.WriteString(html.EscapeString(info.Title))
	b.WriteString(`</title><link href="styles/site.css" rel="stylesheet" type="text/css"/>`)
	b.WriteString(`<meta http-equiv="Content-Type" content="text/html; charset=UTF-8"/></head>`)
	b.WriteString(`<body class="theme-default aui-theme-default"><div id="page"><div id="main" class="aui-page-panel">`)

	b.WriteString(`<div id="main-header"><div id="breadcrumb-section"><ol id="breadcrumbs">`)
	b.WriteString(`<li class="first"><span><a href="index.html">`)
	b.WriteString(html.EscapeString(info.SpaceName))
	b.WriteString(`</a></span></li>`)
	for _, anc := range info.Ancestors {
		if anc.ID == "" || anc.Title == "" {
			continue
		}
		b.WriteString(`<li><span><a href="`)
		b.WriteString(html.EscapeString(pageFilename(anc.Title, anc.ID)))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(anc.Title))
		b.WriteString(`</a></span></li>`)
	}
	b.WriteString(`</ol></div><h1 id="title-heading" class="pagetitle"><span id="title-text">`)
	b.WriteString(html.EscapeString(info.Title))
	b.WriteString(`</span></h1></div>`)

	b.WriteString(`<div id="content" class="view">`)
	writeMetadataLine(&b, info)
	b.WriteString(`<div id="main-content" class="wiki-content group"></div>`)
	writeAttachmentsSection(&b, info)
	b.WriteString(`</div></div>`)

	writeFooter(&b, info.Generated)
	b.WriteString(`</div></body></html>`)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		return nil, err
	}
	if content != nil {
		doc.Find("#main-content").AppendSelection(content.Find("body").Contents())
	}
	return renderDocument(doc)
}

func writeMetadataLine(b *strings.Builder, info documentInfo) {
	b.WriteString(`<div class="page-metadata">Created by <span class="author">`)
	b.WriteString(html.EscapeString(info.Creator))
	b.WriteString(`</span>`)
	switch {
	case info.LastModifier != "" && info.Modified != "":
		b.WriteString(`, last modified by <span class="editor">`)
		b.WriteString(html.EscapeString(info.LastModifier))
		b.WriteString(`</span> on `)
		b.WriteString(html.EscapeString(info.Modified))
	case info.Modified != "":
		b.WriteString(`, last modified on `)
		b.WriteString(html.EscapeString(info.Modified))
	}
	b.WriteString(`</div>`)
}

// writeAttachmentsSection lists the page's attachments. The section only
// appears when at least one attachment was localized, but then it lists the
// full attachment metadata so the reader sees what the page carried.
func writeAttachmentsSection(b *strings.Builder, info documentInfo) {
	if len(info.Localized) == 0 {
		return
	}
	localNames := make(map[string]string, len(info.Localized))
	for _, l := range info.Localized {
		localNames[l.ID] = l.Filename
	}

	sorted := slices.Clone(info.Attachments)
	slices.SortStableFunc(sorted, func(a, b Attachment) int {
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})

	b.WriteString(`<div class="pageSection group"><div class="pageSectionHeader">`)
	b.WriteString(`<h2 id="attachments" class="pageSectionTitle">Attachments:</h2></div>`)
	b.WriteString(`<div align="left" class="greybox">`)
	for _, att := range sorted {
		filename := localNames[att.ID]
		if filename == "" {
			filename = attachmentFilename(att.ID, att.Title)
		}
		b.WriteString(`<img src="images/icons/bullet_blue.gif" height="8" width="8" alt=""/>`)
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString("attachments/" + info.ID + "/" + filename))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(att.Title))
		b.WriteString(`</a> (`)
		b.WriteString(html.EscapeString(att.MediaType))
		b.WriteString(`)<br/>`)
	}
	b.WriteString(`</div></div>`)
}

func writeFooter(b *strings.Builder, generated time.Time) {
	b.WriteString(`<div id="footer" role="contentinfo"><section class="footer-body"><p>`)
	b.WriteString(`Document generated by Confluence on `)
	b.WriteString(generated.Format("Jan 02, 2006 15:04"))
	b.WriteString(`</p><div id="footer-logo"><a href="http://www.atlassian.com/">Atlassian</a></div></section></div>`)
}

// buildIndexDocument renders the space home page: the space details table and
// the page hierarchy as a nested list.
func buildIndexDocument(spaceKey, spaceName string, roots []*pageNode, generated time.Time) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<html><head><title>`)
	b.WriteString(html.EscapeString(spaceName))
	b.WriteString(` - Space Home</title><link href="styles/site.css" rel="stylesheet" type="text/css"/>`)
	b.WriteString(`<meta http-equiv="Content-Type" content="text/html; charset=UTF-8"/></head>`)
	b.WriteString(`<body class="theme-default aui-theme-default"><div id="page"><div id="main" class="aui-page-panel">`)
	b.WriteString(`<div id="main-header"><h1 id="title-heading" class="pagetitle"><span id="title-text">Space Details:</span></h1></div>`)

	b.WriteString(`<div id="content"><div id="main-content" class="pageSection">`)
	b.WriteString(`<table class="confluenceTable">`)
	details := []struct{ label, value string }{
		{"Key", spaceKey},
		{"Name", spaceName},
		{"Description", ""},
		{"Created by", ""},
	}
	for _, row := range details {
		b.WriteString(`<tr><th class="confluenceTh">`)
		b.WriteString(html.EscapeString(row.label))
		b.WriteString(`</th><td class="confluenceTd">`)
		b.WriteString(html.EscapeString(row.value))
		b.WriteString(`</td></tr>`)
	}
	b.WriteString(`</table></div><br/><br/>`)

	b.WriteString(`<div class="pageSection"><div class="pageSectionHeader">`)
	b.WriteString(`<h2 class="pageSectionTitle">Available Pages:</h2></div>`)
	if len(roots) > 0 {
		b.WriteString(`<ul>`)
		writePageTree(&b, roots)
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</div></div></div>`)

	writeFooter(&b, generated)
	b.WriteString(`</div></body></html>`)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		return nil, err
	}
	return renderDocument(doc)
}

func writePageTree(b *strings.Builder, nodes []*pageNode) {
	for _, node := range nodes {
		rec := node.record
		b.WriteString(`<li><a href="`)
		b.WriteString(html.EscapeString(pageFilename(rec.Title, rec.ID)))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(rec.Title))
		b.WriteString(`</a>`)
		b.WriteString(`<img src="images/icons/contenttypes/page_16.png" height="16" width="16" border="0" align="absmiddle"/>`)
		if len(node.children) > 0 {
			b.WriteString(`<ul>`)
			writePageTree(b, node.children)
			b.WriteString(`</ul>`)
		}
		b.WriteString(`</li>`)
	}
}

// renderDocument serializes a document with a leading doctype. The document
// is rendered from its html element so the parser's bookkeeping nodes never
// leak into the output.
func renderDocument(doc *goquery.Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n")
	for _, node := range doc.Find("html").Nodes {
		if err := html.Render(&buf, node); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// dateLayouts cover the timestamp shapes Confluence emits across Cloud and
// Server versions.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
}

// formatDate renders an API timestamp as "Jan 02, 2006". Unparseable input
// is returned unchanged so the metadata line still shows something useful.
func formatDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("Jan 02, 2006")
		}
	}
	return raw
}
