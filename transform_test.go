package main

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func mustParseFragment(t *testing.T, fragment string) *goquery.Document {
	t.Helper()
	doc, err := parseFragment(fragment)
	if err != nil {
		t.Fatalf("parsing fragment: %v", err)
	}
	return doc
}

func testIndex() PageIndex {
	return PageIndex{
		"123456": {ID: "123456", Title: "Target Page"},
		"789":    {ID: "789", Title: "Other Page"},
	}
}

const testBaseURL = "https://example.atlassian.net/wiki"

func TestResolveSmartCards(t *testing.T) {
	t.Run("card replaced with local link", func(t *testing.T) {
		doc := mustParseFragment(t, `<p><span data-card-url="https://example.atlassian.net/wiki/spaces/DOCS/pages/123456/Target+Page"><a href="https://example.atlassian.net/x">See here</a></span></p>`)
		resolveSmartCards(doc, testIndex())

		if doc.Find("[data-card-url]").Length() != 0 {
			t.Fatal("card element still present")
		}
		link := doc.Find("p a")
		if href, _ := link.Attr("href"); href != "Target-Page_123456.html" {
			t.Errorf("href = %q, want Target-Page_123456.html", href)
		}
		if got := link.Text(); got != "See here" {
			t.Errorf("link text = %q, want original card text", got)
		}
	})

	t.Run("card text falls back to page title", func(t *testing.T) {
		doc := mustParseFragment(t, `<span data-card-url="/wiki/spaces/DOCS/pages/123456"><a href="/x"> </a></span>`)
		resolveSmartCards(doc, testIndex())

		if got := doc.Find("a").Text(); got != "Target Page" {
			t.Errorf("link text = %q, want Target Page", got)
		}
	})

	t.Run("card to unknown page untouched", func(t *testing.T) {
		doc := mustParseFragment(t, `<span data-card-url="/wiki/spaces/DOCS/pages/555555/Elsewhere"><a href="/x">Elsewhere</a></span>`)
		resolveSmartCards(doc, testIndex())

		if doc.Find("[data-card-url]").Length() != 1 {
			t.Error("card to unindexed page should be left alone")
		}
	})

	t.Run("card without page segment untouched", func(t *testing.T) {
		doc := mustParseFragment(t, `<span data-card-url="https://other.example.com/blog/123"><a href="/x">Blog</a></span>`)
		resolveSmartCards(doc, testIndex())

		if doc.Find("[data-card-url]").Length() != 1 {
			t.Error("card without a pages path should be left alone")
		}
	})
}

func TestPageIDFromURLPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"title form", "https://example.atlassian.net/wiki/spaces/D/pages/123456/My+Page", "123456"},
		{"viewpage form", "/pages/viewpage.action/456", "456"},
		{"id directly after pages", "/wiki/spaces/D/pages/987", "987"},
		{"no pages segment", "/wiki/spaces/D/overview", ""},
		{"pages at end of path", "/wiki/spaces/D/pages", ""},
		{"non numeric after pages", "/pages/alpha/beta", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageIDFromURLPath(tt.input); got != tt.expected {
				t.Errorf("pageIDFromURLPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPageIDFromLocalFilename(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{"slugged filename", "Some-Page_123.html", "123"},
		{"with directory", "sub/Some-Page_456.html", "456"},
		{"bare numeric filename", "123.html", "123"},
		{"underscore but no id", "Some_Page.html", ""},
		{"plain filename", "page.html", ""},
		{"not html", "doc.pdf", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageIDFromLocalFilename(nil, tt.href); got != tt.expected {
				t.Errorf("pageIDFromLocalFilename(%q) = %q, want %q", tt.href, got, tt.expected)
			}
		})
	}
}

func TestResolveAnchors(t *testing.T) {
	t.Run("resource linkage attribute wins", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="/wiki/x" data-linked-resource-id="123456" data-linked-resource-type="page" data-testid="inline-link" class="confluence-link" tabindex="0" rel="nofollow">Go</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		link := doc.Find("a")
		if href, _ := link.Attr("href"); href != "Target-Page_123456.html" {
			t.Fatalf("href = %q", href)
		}
		for _, gone := range []string{"data-linked-resource-id", "data-linked-resource-type", "data-testid", "class", "tabindex", "rel"} {
			if v, ok := link.Attr(gone); ok {
				t.Errorf("attribute %s survived with value %q", gone, v)
			}
		}
	})

	t.Run("same space absolute URL resolved", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="https://example.atlassian.net/wiki/spaces/DOCS/pages/789/Other+Page">link</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		if href, _ := doc.Find("a").Attr("href"); href != "Other-Page_789.html" {
			t.Errorf("href = %q, want Other-Page_789.html", href)
		}
	})

	t.Run("bare numeric href resolved", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="789">Other</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		if href, _ := doc.Find("a").Attr("href"); href != "Other-Page_789.html" {
			t.Errorf("href = %q, want Other-Page_789.html", href)
		}
	})

	t.Run("external link tagged nofollow", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="https://golang.org/doc">docs</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		link := doc.Find("a")
		if rel, _ := link.Attr("rel"); rel != "nofollow" {
			t.Errorf("rel = %q, want nofollow", rel)
		}
		if href, _ := link.Attr("href"); href != "https://golang.org/doc" {
			t.Errorf("external href changed to %q", href)
		}
	})

	t.Run("existing rel preserved on external link", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="https://golang.org" rel="noopener">x</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		if rel, _ := doc.Find("a").Attr("rel"); rel != "noopener" {
			t.Errorf("rel = %q, want noopener untouched", rel)
		}
	})

	t.Run("fragment and mailto tagged nofollow", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="#section">down</a><a href="mailto:team@example.com">mail</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		doc.Find("a").Each(func(_ int, link *goquery.Selection) {
			if rel, _ := link.Attr("rel"); rel != "nofollow" {
				t.Errorf("rel = %q, want nofollow", rel)
			}
		})
	})

	t.Run("attachment links never touched", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="attachments/123/file.pdf">file</a><a href="../attachments/123/other.pdf">other</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		doc.Find("a").Each(func(_ int, link *goquery.Selection) {
			if _, ok := link.Attr("rel"); ok {
				t.Error("attachment link should not be tagged")
			}
			href, _ := link.Attr("href")
			if !strings.Contains(href, "attachments/") {
				t.Errorf("attachment href changed to %q", href)
			}
		})
	})

	t.Run("same space link to unknown page tagged nofollow", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="https://example.atlassian.net/wiki/spaces/DOCS/pages/555555/Gone">gone</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		if rel, _ := doc.Find("a").Attr("rel"); rel != "nofollow" {
			t.Errorf("rel = %q, want nofollow for unresolvable absolute link", rel)
		}
	})

	t.Run("relative link to unknown page left alone", func(t *testing.T) {
		doc := mustParseFragment(t, `<a href="/wiki/spaces/DOCS/pages/555555/Gone">gone</a>`)
		resolveAnchors(doc, testIndex(), testBaseURL)

		link := doc.Find("a")
		if _, ok := link.Attr("rel"); ok {
			t.Error("relative unresolvable link should not be tagged")
		}
		if href, _ := link.Attr("href"); href != "/wiki/spaces/DOCS/pages/555555/Gone" {
			t.Errorf("href changed to %q", href)
		}
	})
}

func TestConvertStandaloneLayout(t *testing.T) {
	t.Run("three columns become one row", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="columnLayout three-equal" data-layout="three-equal">`+
			`<div class="cell"><div class="innerCell"><p>one</p></div></div>`+
			`<div class="cell"><div class="innerCell"><p>two</p></div></div>`+
			`<div class="cell"><div class="innerCell"><p>three</p></div></div></div>`)
		transformLayoutTables(doc)

		table := doc.Find("table")
		if !table.HasClass("confluenceTable") {
			t.Fatal("converted table missing confluenceTable class")
		}
		if doc.Find("[data-layout]").Length() != 0 {
			t.Error("layout marker survived")
		}
		rows := table.Find("tbody > tr")
		if rows.Length() != 1 {
			t.Fatalf("row count = %d, want 1", rows.Length())
		}
		cells := rows.Find("td")
		if cells.Length() != 3 {
			t.Fatalf("cell count = %d, want 3", cells.Length())
		}
		var texts []string
		cells.Each(func(_ int, td *goquery.Selection) {
			texts = append(texts, strings.TrimSpace(td.Text()))
		})
		if texts[0] != "one" || texts[1] != "two" || texts[2] != "three" {
			t.Errorf("cell order = %v", texts)
		}
	})

	t.Run("colspan and rowspan carried over", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="columnLayout"><div class="cell" data-colspan="2" rowspan="3"><p>wide</p></div></div>`)
		transformLayoutTables(doc)

		td := doc.Find("td")
		if v, _ := td.Attr("colspan"); v != "2" {
			t.Errorf("colspan = %q, want 2", v)
		}
		if v, _ := td.Attr("rowspan"); v != "3" {
			t.Errorf("rowspan = %q, want 3", v)
		}
	})

	t.Run("cell without inner holder keeps its children", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="columnLayout"><div class="cell"><p>direct</p></div></div>`)
		transformLayoutTables(doc)

		if got := strings.TrimSpace(doc.Find("td").Text()); got != "direct" {
			t.Errorf("cell text = %q, want direct", got)
		}
	})

	t.Run("group without cells becomes single cell", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="columnLayout"><p>loose content</p></div>`)
		transformLayoutTables(doc)

		cells := doc.Find("td")
		if cells.Length() != 1 {
			t.Fatalf("cell count = %d, want 1", cells.Length())
		}
		if got := strings.TrimSpace(cells.Text()); got != "loose content" {
			t.Errorf("cell text = %q", got)
		}
	})
}

// buildLayoutTable assembles a layout-marked table whose tbody holds the
// given children, mimicking markup where layout groups sit between rows.
func buildLayoutTable(t *testing.T, doc *goquery.Document, children ...*html.Node) *html.Node {
	t.Helper()
	table := newElement(atom.Table, "table", html.Attribute{Key: "data-layout", Val: "default"})
	tbody := newElement(atom.Tbody, "tbody")
	table.AppendChild(tbody)
	for _, c := range children {
		tbody.AppendChild(c)
	}
	body := doc.Find("body").Nodes[0]
	body.AppendChild(table)
	return table
}

// adoptFirst parses a fragment and detaches its first body child for reuse.
func adoptFirst(t *testing.T, fragment string) *html.Node {
	t.Helper()
	doc := mustParseFragment(t, fragment)
	node := doc.Find("body").Children().Nodes[0]
	node.Parent.RemoveChild(node)
	return node
}

// adoptTableRow parses a single row in table context and detaches it.
func adoptTableRow(t *testing.T, rowHTML string) *html.Node {
	t.Helper()
	doc := mustParseFragment(t, "<table><tbody>"+rowHTML+"</tbody></table>")
	row := doc.Find("tr").Nodes[0]
	row.Parent.RemoveChild(row)
	return row
}

func TestRestructureLayoutTable(t *testing.T) {
	t.Run("layout groups between rows become rows", func(t *testing.T) {
		doc := mustParseFragment(t, "")
		nativeRow := adoptTableRow(t, "<tr><th>H1</th><th>H2</th></tr>")
		layout := adoptFirst(t, `<div class="columnLayout"><div class="cell"><div class="innerCell"><p>a</p></div></div><div class="cell"><p>b</p></div></div>`)

		table := buildLayoutTable(t, doc, nativeRow, layout)
		transformLayoutTables(doc)

		sel := doc.FindNodes(table)
		if !sel.HasClass("confluenceTable") {
			t.Error("table missing confluenceTable class")
		}
		if _, ok := sel.Attr("data-layout"); ok {
			t.Error("data-layout survived")
		}
		rows := sel.Find("tbody > tr")
		if rows.Length() != 2 {
			t.Fatalf("row count = %d, want 2", rows.Length())
		}
		if got := rows.First().Find("th").Length(); got != 2 {
			t.Errorf("native header row lost cells, th count = %d", got)
		}
		if got := rows.Last().Find("td").Length(); got != 2 {
			t.Errorf("layout row td count = %d, want 2", got)
		}
	})

	t.Run("cell-less group spans headers", func(t *testing.T) {
		doc := mustParseFragment(t, "")
		headerRow := adoptTableRow(t, "<tr><th>A</th><th>B</th><th>C</th></tr>")
		layout := adoptFirst(t, `<div class="columnLayout"><p>full width</p></div>`)

		table := buildLayoutTable(t, doc, headerRow, layout)
		transformLayoutTables(doc)

		td := doc.FindNodes(table).Find("td")
		if td.Length() != 1 {
			t.Fatalf("td count = %d, want 1", td.Length())
		}
		if v, _ := td.Attr("colspan"); v != "3" {
			t.Errorf("colspan = %q, want 3", v)
		}
	})

	t.Run("table without layout groups untouched", func(t *testing.T) {
		doc := mustParseFragment(t, `<table data-layout="wide"><tbody><tr><td>plain</td></tr></tbody></table>`)
		transformLayoutTables(doc)

		table := doc.Find("table")
		if _, ok := table.Attr("data-layout"); !ok {
			t.Error("data-layout should stay on a plain content table")
		}
		if table.HasClass("confluenceTable") {
			t.Error("plain content table should not be reclassed")
		}
	})
}

func TestNormalizePanels(t *testing.T) {
	t.Run("legacy macro normalized", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="confluence-information-macro confluence-information-macro-note has-no-icon" data-macro-name="note">`+
			`<div class="confluence-information-macro-body"><p>Watch out</p></div></div>`)
		normalizePanels(doc)

		panel := doc.Find("div.confluence-information-macro")
		if !panel.HasClass("confluence-information-macro-note") {
			t.Fatal("panel type class missing")
		}
		if panel.HasClass("has-no-icon") {
			t.Error("stale class survived")
		}
		icon := panel.Find("span.confluence-information-macro-icon")
		if !icon.HasClass("aui-iconfont-warning") {
			t.Errorf("note panel icon classes = %q", icon.AttrOr("class", ""))
		}
		body := panel.Find("div.confluence-information-macro-body")
		if got := strings.TrimSpace(body.Text()); got != "Watch out" {
			t.Errorf("body text = %q", got)
		}
	})

	t.Run("editor panel normalized", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="ak-editor-panel" data-panel-type="success" data-local-id="abc-123">`+
			`<div class="ak-editor-panel__content"><p>Done</p></div></div>`)
		normalizePanels(doc)

		panel := doc.Find("div.confluence-information-macro")
		if !panel.HasClass("confluence-information-macro-success") {
			t.Fatalf("panel classes = %q", panel.AttrOr("class", ""))
		}
		if v, _ := panel.Attr("data-local-id"); v != "abc-123" {
			t.Errorf("data-local-id = %q, want abc-123", v)
		}
		if v, _ := panel.Attr("data-panel-type"); v != "success" {
			t.Errorf("data-panel-type = %q, want success", v)
		}
		if !panel.Find("span").HasClass("aui-iconfont-approve") {
			t.Error("success icon missing")
		}
	})

	t.Run("unrecognized editor panel type becomes info", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="ak-editor-panel" data-panel-type="custom">`+
			`<div class="ak-editor-panel__content"><p>Hm</p></div></div>`)
		normalizePanels(doc)

		if !doc.Find("div.confluence-information-macro").HasClass("confluence-information-macro-info") {
			t.Error("unrecognized panel type should normalize to info")
		}
	})

	t.Run("panel without body untouched", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="ak-editor-panel" data-panel-type="note"><p>bare</p></div>`)
		normalizePanels(doc)

		if doc.Find("div.ak-editor-panel").Length() != 1 {
			t.Error("panel without a content holder should be left alone")
		}
	})

	t.Run("macro without type class untouched", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="confluence-information-macro"><div class="confluence-information-macro-body"><p>x</p></div></div>`)
		normalizePanels(doc)

		if doc.Find("span.confluence-information-macro-icon").Length() != 0 {
			t.Error("typeless macro should not gain an icon")
		}
	})
}

func TestSimplifyCodePanels(t *testing.T) {
	t.Run("code block cleaned", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="code panel pdl conf-macro output-block" data-hasbody="true" data-macro-name="code" data-theme="Confluence" data-syntaxhighlighter-params="brush: go">`+
			`<div class="codeContent panelContent pdl"><pre>x := 1</pre></div></div>`)
		simplifyCodePanels(doc)

		block := doc.Find("div.code.panel")
		if got := block.AttrOr("class", ""); got != "code panel pdl" {
			t.Errorf("class = %q, want %q", got, "code panel pdl")
		}
		if v, _ := block.Attr("data-syntaxhighlighter-params"); v != "brush: go" {
			t.Errorf("data-syntaxhighlighter-params = %q", v)
		}
		if v, _ := block.Attr("data-theme"); v != "Confluence" {
			t.Errorf("data-theme = %q", v)
		}
		for _, gone := range []string{"data-hasbody", "data-macro-name"} {
			if _, ok := block.Attr(gone); ok {
				t.Errorf("attribute %s survived", gone)
			}
		}
	})

	t.Run("panel without code content untouched", func(t *testing.T) {
		doc := mustParseFragment(t, `<div class="code panel extra" data-macro-name="code"><div class="panelContent"><pre>x</pre></div></div>`)
		simplifyCodePanels(doc)

		block := doc.Find("div.code.panel")
		if !block.HasClass("extra") {
			t.Error("block without a codeContent child should be left alone")
		}
	})
}

func TestTrimStatusLozenges(t *testing.T) {
	doc := mustParseFragment(t, `<span class="status-macro aui-lozenge aui-lozenge-visual-refresh aui-lozenge-success conf-macro" data-macro-name="status" data-local-id="x">DONE</span>`)
	trimStatusLozenges(doc)

	status := doc.Find("span.status-macro")
	if got := status.AttrOr("class", ""); got != "status-macro aui-lozenge aui-lozenge-success" {
		t.Errorf("class = %q", got)
	}
	for _, gone := range []string{"data-macro-name", "data-local-id"} {
		if _, ok := status.Attr(gone); ok {
			t.Errorf("attribute %s survived", gone)
		}
	}
	if got := status.Text(); got != "DONE" {
		t.Errorf("text = %q, want DONE", got)
	}
}

func TestSweepDataAttributes(t *testing.T) {
	doc := mustParseFragment(t, `<div data-theme="x" data-layout="y" data-macro-id="z" id="keep"><span data-testid="s">text</span></div>`)
	sweepDataAttributes(doc)

	div := doc.Find("div")
	if _, ok := div.Attr("data-theme"); !ok {
		t.Error("allow-listed data-theme removed")
	}
	if _, ok := div.Attr("data-layout"); !ok {
		t.Error("allow-listed data-layout removed")
	}
	if _, ok := div.Attr("data-macro-id"); ok {
		t.Error("data-macro-id survived the sweep")
	}
	if v, _ := div.Attr("id"); v != "keep" {
		t.Error("non-data attribute removed")
	}
	if _, ok := doc.Find("span").Attr("data-testid"); ok {
		t.Error("nested data-testid survived the sweep")
	}
}
