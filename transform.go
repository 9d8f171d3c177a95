package main

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseFragment wraps a server-rendered body fragment in a full document so
// the transform passes can operate on it. The fragment's nodes end up under
// the document's body element.
func parseFragment(fragment string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(fragment))
}

// resolveInternalLinks rewrites links between pages of the space into
// relative links to the exported files. Smart card embeds go first since
// they are replaced wholesale with plain anchors.
func resolveInternalLinks(doc *goquery.Document, index PageIndex, baseURL string) {
	resolveSmartCards(doc, index)
	resolveAnchors(doc, index, baseURL)
}

// resolveSmartCards replaces Confluence smart card embeds with plain anchors
// to the exported page. Cards pointing outside the index are left for the
// anchor pass to handle.
func resolveSmartCards(doc *goquery.Document, index PageIndex) {
	doc.Find("[data-card-url]").Each(func(_ int, card *goquery.Selection) {
		cardURL, _ := card.Attr("data-card-url")
		id := pageIDFromURLPath(cardURL)
		if id == "" {
			return
		}
		rec, ok := index[id]
		if !ok {
			return
		}

		text := strings.TrimSpace(card.Find("a").First().Text())
		if text == "" {
			text = rec.Title
		}
		link := newElement(atom.A, "a", html.Attribute{Key: "href", Val: pageFilename(rec.Title, id)})
		link.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		card.ReplaceWithNodes(link)
	})
}

// anchorIDRules extract a page ID from an anchor, tried in priority order.
// The first rule that yields an ID wins.
var anchorIDRules = []func(link *goquery.Selection, href string) string{
	linkedResourceID,
	func(_ *goquery.Selection, href string) string { return pageIDFromURLPath(href) },
	pageIDFromLocalFilename,
	pageIDFromBareNumeric,
}

func anchorPageID(link *goquery.Selection, href string) string {
	for _, rule := range anchorIDRules {
		if id := rule(link, href); id != "" {
			return id
		}
	}
	return ""
}

func linkedResourceID(link *goquery.Selection, _ string) string {
	if link.AttrOr("data-linked-resource-type", "") != "page" {
		return ""
	}
	return link.AttrOr("data-linked-resource-id", "")
}

// pageIDFromURLPath pulls a numeric page ID out of a URL whose path contains
// a "pages" segment, covering both ".../pages/123456/Title" and
// ".../pages/viewpage.action/123456" shapes.
func pageIDFromURLPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := splitPathSegments(u.Path)
	for i, seg := range segments {
		if seg != "pages" {
			continue
		}
		if i+1 < len(segments) && isAllDigits(segments[i+1]) {
			return segments[i+1]
		}
		if i+2 < len(segments) && isAllDigits(segments[i+2]) {
			return segments[i+2]
		}
		return ""
	}
	return ""
}

// pageIDFromLocalFilename recognizes hrefs already in {slug}_{id}.html form,
// which appear when exported pages are re-imported into Confluence.
func pageIDFromLocalFilename(_ *goquery.Selection, href string) string {
	if !strings.HasSuffix(href, ".html") {
		return ""
	}
	name := href
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".html")
	if i := strings.LastIndex(name, "_"); i >= 0 {
		if id := name[i+1:]; isAllDigits(id) {
			return id
		}
		return ""
	}
	if isAllDigits(name) {
		return name
	}
	return ""
}

func pageIDFromBareNumeric(_ *goquery.Selection, href string) string {
	if strings.Contains(href, "/") {
		return ""
	}
	if isAllDigits(href) {
		return href
	}
	return ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// resolveAnchors rewrites anchors that point at indexed pages to the local
// {slug}_{id}.html file and marks genuinely external links with
// rel="nofollow". Links into the local attachments tree are never touched.
func resolveAnchors(doc *goquery.Document, index PageIndex, baseURL string) {
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")

		if strings.HasPrefix(href, "attachments/") || strings.HasPrefix(href, "../attachments/") {
			return
		}
		external := strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") ||
			strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:")
		if external && !strings.HasPrefix(href, baseURL) {
			if _, has := link.Attr("rel"); !has {
				link.SetAttr("rel", "nofollow")
			}
			return
		}

		if id := anchorPageID(link, href); id != "" {
			if rec, ok := index[id]; ok {
				target := pageFilename(rec.Title, id)
				if href != target {
					link.SetAttr("href", target)
				}
				stripResolvedLinkAttrs(link)
				return
			}
		}
		// Under the site base but not resolvable to an exported page.
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			if _, has := link.Attr("rel"); !has {
				link.SetAttr("rel", "nofollow")
			}
		}
	})
}

func stripResolvedLinkAttrs(link *goquery.Selection) {
	for _, node := range link.Nodes {
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			switch {
			case strings.HasPrefix(attr.Key, "data-linked-resource-"):
			case strings.HasPrefix(attr.Key, "data-testid"):
			case attr.Key == "tabindex":
			case attr.Key == "class":
			case attr.Key == "rel" && attr.Val == "nofollow":
			default:
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	}
}

// transformLayoutTables rewrites Confluence column layouts into real tables.
// Layout groups living inside a table marked with data-layout become rows of
// that table, with interleaved native rows preserved. Standalone layout
// containers are wrapped into a fresh single-row table. The strict HTML
// parser foster-parents stray divs out of table content, so raw exports
// mostly hit the standalone path.
func transformLayoutTables(doc *goquery.Document) {
	doc.Find("table[data-layout]").Each(func(_ int, table *goquery.Selection) {
		restructureLayoutTable(table.Nodes[0])
	})
	doc.Find("div.columnLayout").Each(func(_ int, layout *goquery.Selection) {
		if layout.Closest("table").Length() > 0 {
			return
		}
		convertStandaloneLayout(layout)
	})
}

func isColumnLayoutDiv(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "div" && nodeHasClass(n, "columnLayout")
}

// restructureLayoutTable rebuilds the row container of a layout-marked table
// when column layout groups sit between its rows. Native rows and meaningful
// text are preserved in order, layout groups become one row each, and other
// stray divs are dropped.
func restructureLayoutTable(table *html.Node) {
	container := table
	if tbody := firstChildElement(table, "tbody"); tbody != nil {
		container = tbody
	}

	hasLayoutRows := false
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if isColumnLayoutDiv(c) {
			hasLayoutRows = true
			break
		}
	}
	if !hasLayoutRows {
		return
	}

	headerCount := countDescendants(table, "th")
	var rebuilt []*html.Node
	for _, child := range detachChildren(container) {
		switch {
		case child.Type == html.ElementNode && child.Data == "tr":
			rebuilt = append(rebuilt, child)
		case isColumnLayoutDiv(child):
			rebuilt = append(rebuilt, layoutRow(child, headerCount))
		case child.Type == html.TextNode && strings.TrimSpace(child.Data) != "":
			rebuilt = append(rebuilt, child)
		case child.Type == html.ElementNode && child.Data != "div":
			rebuilt = append(rebuilt, child)
		}
	}
	for _, n := range rebuilt {
		container.AppendChild(n)
	}

	if container == table {
		tbody := newElement(atom.Tbody, "tbody")
		moveChildren(tbody, table)
		table.AppendChild(tbody)
	}
	removeAttr(table, "data-layout")
	addNodeClass(table, "confluenceTable")
}

// convertStandaloneLayout replaces a free-standing column layout container
// with a single-row table so the columns render side by side without the
// editor's grid styles.
func convertStandaloneLayout(layout *goquery.Selection) {
	tr := layoutRow(layout.Nodes[0], 0)
	tbody := newElement(atom.Tbody, "tbody")
	tbody.AppendChild(tr)
	table := newElement(atom.Table, "table", html.Attribute{Key: "class", Val: "confluenceTable"})
	table.AppendChild(tbody)
	layout.ReplaceWithNodes(table)
}

// layoutRow converts one column layout group into a table row with one cell
// per column. A group without recognizable cells collapses into a single
// cell spanning the table's headers when there are several.
func layoutRow(layout *html.Node, headerCount int) *html.Node {
	tr := newElement(atom.Tr, "tr")

	var cells []*html.Node
	for c := layout.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "div" && nodeHasClass(c, "cell") {
			cells = append(cells, c)
		}
	}

	if len(cells) == 0 {
		td := newElement(atom.Td, "td")
		if headerCount > 1 {
			setAttr(td, "colspan", strconv.Itoa(headerCount))
		}
		source := findInnerCell(layout)
		if source == nil {
			source = layout
		}
		moveChildren(td, source)
		tr.AppendChild(td)
		return tr
	}

	for _, cell := range cells {
		td := newElement(atom.Td, "td")
		if v, ok := getAttr(cell, "data-colspan"); ok {
			setAttr(td, "colspan", v)
		}
		if v, ok := getAttr(cell, "rowspan"); ok {
			setAttr(td, "rowspan", v)
		}
		source := findInnerCell(cell)
		if source == nil {
			source = cell
		}
		moveChildren(td, source)
		tr.AppendChild(td)
	}
	return tr
}

func findInnerCell(n *html.Node) *html.Node {
	return findDescendant(n, func(d *html.Node) bool {
		return d.Type == html.ElementNode && d.Data == "div" && nodeHasClass(d, "innerCell")
	})
}

// simplifyMarkup runs the cosmetic normalization passes that turn editor
// markup into the plain classes the bundled stylesheet knows about.
func simplifyMarkup(doc *goquery.Document) {
	normalizePanels(doc)
	simplifyCodePanels(doc)
	trimStatusLozenges(doc)
	sweepDataAttributes(doc)
}

// panelTypeByClass maps legacy information macro classes to the semantic
// panel type, checked in order.
var panelTypeByClass = []struct {
	class     string
	panelType string
}{
	{"confluence-information-macro-note", "note"},
	{"confluence-information-macro-warning", "warning"},
	{"confluence-information-macro-tip", "tip"},
	{"confluence-information-macro-info", "info"},
	{"confluence-information-macro-information", "info"},
	{"confluence-information-macro-error", "error"},
	{"confluence-information-macro-success", "success"},
}

var knownPanelTypes = map[string]bool{
	"note":    true,
	"warning": true,
	"tip":     true,
	"info":    true,
	"error":   true,
	"success": true,
}

var panelIcons = map[string]string{
	"note":    "aui-iconfont-warning",
	"warning": "aui-iconfont-error",
	"info":    "aui-iconfont-info",
	"tip":     "aui-iconfont-like",
	"error":   "aui-iconfont-error",
	"success": "aui-iconfont-approve",
}

// normalizePanels rewrites both panel generations, the legacy information
// macro and the newer editor panel, into one canonical information macro
// shape with an icon span and a body div. Panels without a resolvable type
// or content holder are left untouched.
func normalizePanels(doc *goquery.Document) {
	doc.Find("div.confluence-information-macro, div.ak-editor-panel").Each(func(_ int, panel *goquery.Selection) {
		panelType, body := panelParts(panel)
		if panelType == "" || body == nil {
			return
		}

		replacement := newElement(atom.Div, "div", html.Attribute{
			Key: "class",
			Val: "confluence-information-macro confluence-information-macro-" + panelType,
		})
		for _, key := range []string{"data-panel-type", "data-local-id"} {
			if v, ok := panel.Attr(key); ok {
				setAttr(replacement, key, v)
			}
		}

		iconSpan := newElement(atom.Span, "span", html.Attribute{
			Key: "class",
			Val: "aui-icon aui-icon-small " + panelIcons[panelType] + " confluence-information-macro-icon",
		})
		replacement.AppendChild(iconSpan)

		newBody := newElement(atom.Div, "div", html.Attribute{Key: "class", Val: "confluence-information-macro-body"})
		moveChildren(newBody, body)
		replacement.AppendChild(newBody)

		panel.ReplaceWithNodes(replacement)
	})
}

// panelParts identifies the semantic type and the content holder for either
// panel shape. Editor panels with an unrecognized declared type are exported
// as plain info panels rather than dropped.
func panelParts(panel *goquery.Selection) (string, *html.Node) {
	if panel.HasClass("confluence-information-macro") {
		panelType := ""
		for _, m := range panelTypeByClass {
			if panel.HasClass(m.class) {
				panelType = m.panelType
				break
			}
		}
		body := childDivWithClass(panel.Nodes[0], "confluence-information-macro-body")
		if panelType == "" || body == nil {
			return "", nil
		}
		return panelType, body
	}

	panelType := panel.AttrOr("data-panel-type", "")
	if panelType == "" {
		return "", nil
	}
	if !knownPanelTypes[panelType] {
		panelType = "info"
	}
	body := childDivWithClass(panel.Nodes[0], "ak-editor-panel__content")
	if body == nil {
		return "", nil
	}
	return panelType, body
}

// simplifyCodePanels strips the theming attributes off code blocks, keeping
// only the classes and the two data attributes the syntax highlighter styles
// key off.
func simplifyCodePanels(doc *goquery.Document) {
	doc.Find("div.code.panel").Each(func(_ int, block *goquery.Selection) {
		hasCodeContent := false
		block.Children().Each(func(_ int, child *goquery.Selection) {
			if cls, ok := child.Attr("class"); ok && strings.Contains(cls, "codeContent") {
				hasCodeContent = true
			}
		})
		if !hasCodeContent {
			return
		}

		classes := "code panel"
		if block.HasClass("pdl") {
			classes += " pdl"
		}
		for _, node := range block.Nodes {
			setAttr(node, "class", classes)
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if strings.HasPrefix(attr.Key, "data-") &&
					attr.Key != "data-syntaxhighlighter-params" && attr.Key != "data-theme" {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})
}

// trimStatusLozenges reduces status macros to the lozenge classes the
// stylesheet colors, dropping editor data attributes.
func trimStatusLozenges(doc *goquery.Document) {
	doc.Find("span.status-macro").Each(func(_ int, status *goquery.Selection) {
		classes := []string{"status-macro"}
		if status.HasClass("aui-lozenge") {
			classes = append(classes, "aui-lozenge")
		}
		for _, cls := range strings.Fields(status.AttrOr("class", "")) {
			if strings.HasPrefix(cls, "aui-lozenge-") && cls != "aui-lozenge-visual-refresh" {
				classes = append(classes, cls)
				break
			}
		}

		for _, node := range status.Nodes {
			setAttr(node, "class", strings.Join(classes, " "))
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if strings.HasPrefix(attr.Key, "data-") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})
}

// allowedDataAttrs survive the global sweep; the stylesheet and the code
// theming depend on them.
var allowedDataAttrs = map[string]bool{
	"data-syntaxhighlighter-params": true,
	"data-theme":                    true,
	"data-layout":                   true,
	"data-local-id":                 true,
	"data-type":                     true,
	"data-panel-type":               true,
}

// sweepDataAttributes removes vendor data attributes everywhere except the
// allow-list. Safety net for editor markup the targeted passes above did not
// recognize.
func sweepDataAttributes(doc *goquery.Document) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			kept := n.Attr[:0]
			for _, attr := range n.Attr {
				if strings.HasPrefix(attr.Key, "data-") && !allowedDataAttrs[attr.Key] {
					continue
				}
				kept = append(kept, attr)
			}
			n.Attr = kept
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range doc.Selection.Nodes {
		walk(root)
	}
}
